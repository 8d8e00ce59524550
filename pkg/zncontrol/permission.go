package zncontrol

import "strings"

// errPermissionDenied is the control channel's PermissionDenied error
// kind: surfaced to the caller, never retried.
const errPermissionDenied = "PermissionDenied"

// Privileged is the set of commands restricted to sites holding the
// ADMIN permission.
var Privileged = map[string]bool{
	"siteList":              true,
	"sitePause":             true,
	"siteResume":            true,
	"siteDelete":            true,
	"sitePermissionAdd":     true,
	"sitePermissionRemove":  true,
	"userSetGlobalSettings": true,
	"certSet":               true,
	"certList":              true,
	"announcerStats":        true,
}

// Unprivileged is the set of commands available to any site session
// regardless of its permission set.
var Unprivileged = map[string]bool{
	"ping":                  true,
	"serverInfo":            true,
	"siteInfo":              true,
	"fileGet":               true,
	"fileRules":             true,
	"fileNeed":              true,
	"dbQuery":               true,
	"channelJoin":           true,
	"certAdd":               true,
	"certSelect":            true,
	"userGetSettings":       true,
	"userSetSettings":       true,
	"userGetGlobalSettings": true,
	"announcerInfo":         true,
}

// PermissionSet is the permission set a site session holds. Only ADMIN is
// checked against the command taxonomy above; additional named
// permissions pass through unchecked (fileGet/fileNeed still consult the
// site's own per-file permission rules via fileRules, which is a
// site-content concern, not a control-channel one).
type PermissionSet struct {
	Admin bool
}

// Authorize checks cmd against taxonomy and perms:
// "every inbound command is checked against the site's permission set
// before dispatch; privileged commands on a non-ADMIN site fail with
// PermissionDenied."
func Authorize(cmd string, perms PermissionSet) error {
	if Privileged[cmd] && !perms.Admin {
		return &PermissionError{Cmd: cmd}
	}
	return nil
}

// AuthorizeDBQuery enforces "dbQuery must refuse any
// statement whose first token (upper-cased) is not SELECT."
func AuthorizeDBQuery(query string) error {
	fields := strings.Fields(query)
	if len(fields) == 0 || strings.ToUpper(fields[0]) != "SELECT" {
		return &PermissionError{Cmd: "dbQuery"}
	}
	return nil
}

// PermissionError is the control channel's PermissionDenied error kind.
type PermissionError struct {
	Cmd string
}

func (e *PermissionError) Error() string {
	return errPermissionDenied + ": " + e.Cmd
}
