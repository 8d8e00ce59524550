package main

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"zeronode/pkg/zncontrol"
	"zeronode/pkg/znsite"
	"zeronode/pkg/znstore"
	"zeronode/pkg/zntracker"
)

// siteRegistry lazily opens and caches the Sites this gateway process is
// currently serving control-channel and dbQuery requests for, one entry
// per site address.
type siteRegistry struct {
	mu    sync.Mutex
	sites map[string]*znsite.Site
}

func newSiteRegistry() *siteRegistry {
	return &siteRegistry{sites: make(map[string]*znsite.Site)}
}

func (r *siteRegistry) get(address string) (*znsite.Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sites[address]; ok {
		return s, nil
	}
	s, err := openSite(address)
	if err != nil {
		return nil, err
	}
	_ = s.LoadManifest()
	r.sites[address] = s
	return s, nil
}

// list returns the addresses of every site opened so far, for siteList.
func (r *siteRegistry) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sites))
	for addr := range r.sites {
		out = append(out, addr)
	}
	return out
}

func newServeCmd() *cobra.Command {
	var bindOverride string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server and control-channel listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bind := bindOverride
			if bind == "" {
				bind = theApp.cfg.UI.BindAddress + ":" + strconv.Itoa(theApp.cfg.UI.Port)
			}
			return runGateway(cmd.Context(), bind)
		},
	}
	cmd.Flags().StringVar(&bindOverride, "bind", "", "override the configured UI bind address:port")
	return cmd
}

func runGateway(ctx context.Context, bind string) error {
	registry := newSiteRegistry()
	nonces := zncontrol.NewNonceIssuer()
	hub := zncontrol.NewHub()
	announceStats := zntracker.NewStats()

	queryFn := func(site, query string) (any, error) {
		store := znstore.NewDocumentStore(theApp.cfg.DataDir + "/sites/" + site + "/db/rows.json")
		var doc dbRows
		if err := store.Load(&doc); err != nil {
			return nil, err
		}
		return doc.Rows, nil
	}
	needFileFn := func(site, innerPath string) ([]byte, error) {
		s, err := registry.get(site)
		if err != nil {
			return nil, err
		}
		return s.GetFile(context.Background(), innerPath)
	}
	dispatcher := zncontrol.NewDefaultDispatcher(zncontrol.Deps{
		Query:    queryFn,
		NeedFile: needFileFn,
		Site:     registry.get,
		Sites:    registry.list,
		User:     theApp.user,
		Announcer: func() map[string]zntracker.TrackerStat {
			return announceStats.Snapshot()
		},
		Info: zncontrol.ServerInfo{
			Version:       Version,
			Platform:      runtime.GOOS,
			MasterAddress: theApp.user.MasterAddress().String(),
		},
	})

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	router.HandleFunc("/nonce", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"wrapper_nonce": nonces.Issue()})
	}).Methods(http.MethodGet)

	router.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) {
		perms := zncontrol.PermissionSet{Admin: accessKeyMatches(r, theApp.cfg.AccessKey)}
		session, err := zncontrol.Upgrade(w, r, bind, nonces, perms, dispatcher, hub)
		if err != nil {
			return
		}
		_ = session.Run()
	})

	srv := &http.Server{Addr: bind, Handler: router}
	theApp.logger.Infof("gateway listening on %s", bind)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return networkFailure(err)
		}
		return nil
	}
}

func accessKeyMatches(r *http.Request, accessKey string) bool {
	if accessKey == "" {
		return false
	}
	return r.Header.Get("X-Access-Key") == accessKey || r.URL.Query().Get("access_key") == accessKey
}
