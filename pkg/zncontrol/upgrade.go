package zncontrol

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
)

// ErrOriginMismatch is returned when an upgrade request's Origin header
// does not equal the gateway's own host.
var ErrOriginMismatch = errors.New("zncontrol: origin does not match gateway host")

var upgrader = websocket.Upgrader{
	// Origin is checked explicitly in Upgrade below (against the
	// gateway's own host, not an allowlist), so CheckOrigin always
	// defers to that check having already run.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Upgrade validates the wrapper nonce and Origin header, then upgrades
// the HTTP connection to a websocket-backed control-channel Session. A
// wrapper nonce is issued at page-load time and must be presented on the
// upgrade; otherwise the upgrade is refused. Origin must equal the
// gateway host.
func Upgrade(w http.ResponseWriter, r *http.Request, gatewayHost string, nonces *NonceIssuer, perms PermissionSet, dispatcher *Dispatcher, hub *Hub) (*Session, error) {
	if origin := r.Header.Get("Origin"); stripScheme(origin) != gatewayHost {
		http.Error(w, "origin mismatch", http.StatusForbidden)
		return nil, ErrOriginMismatch
	}

	nonce := r.URL.Query().Get("wrapper_nonce")
	if err := nonces.Consume(nonce); err != nil {
		http.Error(w, "wrapper nonce invalid", http.StatusForbidden)
		return nil, err
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, perms, dispatcher, hub), nil
}

// stripScheme strips a leading "http(s)://" so an Origin header
// ("http://gateway.local:43110") compares equal to a bare host
// ("gateway.local:43110").
func stripScheme(origin string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if len(origin) > len(prefix) && origin[:len(prefix)] == prefix {
			return origin[len(prefix):]
		}
	}
	return origin
}
