package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"zeronode/pkg/zncrypto"
	"zeronode/pkg/znsite"
	"zeronode/pkg/znstore"
	"zeronode/pkg/zntracker"
)

func newSiteCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "site", Short: "Manage a single site's content and swarm"}
	cmd.AddCommand(
		siteCreateCmd(),
		siteDownloadCmd(),
		siteSignCmd(),
		siteNeedFileCmd(),
		siteVerifyCmd(),
		siteFindPeersCmd(),
		sitePeerExchangeCmd(),
		siteFetchChangesCmd(),
	)
	return cmd
}

// openSite opens (without downloading) the Site rooted at address under
// the node's data directory, backed by a per-node file cache.
func openSite(address string) (*znsite.Site, error) {
	addr, err := zncrypto.ParseAddress(address)
	if err != nil {
		return nil, invalidArgument("invalid site address %q: %v", address, err)
	}
	cache, err := znstore.NewFileCache(theApp.cfg.DataDir+"/cache", 4096)
	if err != nil {
		return nil, ioFailure(err)
	}
	return znsite.NewSite(addr, theApp.cfg.DataDir+"/sites", cache), nil
}

func connectPeers(ctx context.Context, site *znsite.Site, peerAddrs []string) error {
	for _, hostport := range peerAddrs {
		pa, err := parsePeerAddress(hostport)
		if err != nil {
			return invalidArgument("invalid peer address %q: %v", hostport, err)
		}
		peer := site.AddPeer(pa)
		client, err := theApp.connectPeer(ctx, pa.String())
		if err != nil {
			return networkFailure(fmt.Errorf("connect %s: %w", pa, err))
		}
		peer.Attach(client)
	}
	return nil
}

func siteCreateCmd() *cobra.Command {
	var wif string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate a new site keypair and a signed manifest listing a welcome page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var priv *zncrypto.PrivateKey
			var err error
			if wif != "" {
				priv, err = zncrypto.PrivateKeyFromWIF(wif)
				if err != nil {
					return invalidArgument("invalid private key: %v", err)
				}
			} else {
				seed, err := zncrypto.GenerateMasterSeed()
				if err != nil {
					return ioFailure(err)
				}
				priv, err = zncrypto.NewPrivateKeyFromSeed(seed[:])
				if err != nil {
					return ioFailure(err)
				}
			}
			addr, err := priv.Address()
			if err != nil {
				return ioFailure(err)
			}
			site, err := openSite(addr.String())
			if err != nil {
				return err
			}
			if err := site.Create(priv); err != nil {
				return ioFailure(err)
			}
			privWIF, err := priv.WIF()
			if err != nil {
				return ioFailure(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nprivate_key: %s\n", addr, privWIF)
			return nil
		},
	}
	cmd.Flags().StringVar(&wif, "private-key", "", "reuse an existing WIF-encoded private key instead of generating one")
	return cmd
}

func siteSignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign <address> <private-key-wif>",
		Short: "Re-sign the site's manifest with its private key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := openSite(args[0])
			if err != nil {
				return err
			}
			if err := site.LoadManifest(); err != nil {
				return ioFailure(err)
			}
			priv, err := zncrypto.PrivateKeyFromWIF(args[1])
			if err != nil {
				return invalidArgument("invalid private key: %v", err)
			}
			if err := site.SignContent(priv); err != nil {
				return verificationFailure(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed")
			return nil
		},
	}
	return cmd
}

func siteDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <address> <peer-host:port>...",
		Short: "Fetch a site's manifest and every file it references from the given peers",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := openSite(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			if err := connectPeers(ctx, site, args[1:]); err != nil {
				return err
			}
			if err := site.InitDownload(ctx); err != nil {
				return networkFailure(err)
			}
			if site.State() != znsite.StateServing {
				bad := site.BadFiles().Paths()
				return verificationFailure(fmt.Errorf("site left in state %s, bad files: %v", site.State(), bad))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "downloaded, state:", site.State())
			return nil
		},
	}
	return cmd
}

func siteNeedFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "need-file <address> <inner-path> <peer-host:port>...",
		Short: "Ensure a single file is present and verified, downloading it if necessary",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := openSite(args[0])
			if err != nil {
				return err
			}
			_ = site.LoadManifest()
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			if len(args) > 2 {
				if err := connectPeers(ctx, site, args[2:]); err != nil {
					return err
				}
			}
			ok, err := site.NeedFile(ctx, args[1])
			if err != nil {
				return networkFailure(err)
			}
			if !ok {
				return verificationFailure(fmt.Errorf("need_file %s: not satisfied", args[1]))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	return cmd
}

func siteVerifyCmd() *cobra.Command {
	var contentOnly bool
	cmd := &cobra.Command{
		Use:   "verify <address>",
		Short: "Verify every on-disk file against its manifest digest and signatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := openSite(args[0])
			if err != nil {
				return err
			}
			if err := site.LoadManifest(); err != nil {
				return ioFailure(err)
			}
			bad, err := site.VerifyFiles(contentOnly)
			if err != nil {
				return ioFailure(err)
			}
			mismatches, err := site.CheckSiteIntegrity()
			if err != nil {
				return ioFailure(err)
			}
			if len(bad) == 0 && len(mismatches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			}
			for _, innerPath := range bad {
				fmt.Fprintf(cmd.OutOrStdout(), "bad: %s\n", innerPath)
			}
			for _, m := range mismatches {
				fmt.Fprintf(cmd.OutOrStdout(), "mismatch: %s\n", m.InnerPath)
			}
			return verificationFailure(fmt.Errorf("%d bad file(s), %d mismatch(es)", len(bad), len(mismatches)))
		},
	}
	cmd.Flags().BoolVar(&contentOnly, "content-only", false, "limit the verify_files pass to the manifest signatures (the per-file integrity check still runs)")
	return cmd
}

func siteFindPeersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find-peers <address> <tracker-url>...",
		Short: "Announce to one or more trackers and print the peers they return",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := openSite(args[0])
			if err != nil {
				return err
			}
			resolver := zntracker.NewResolver()
			peerID := theApp.user.MasterAddress().SHA1()
			var found []string
			for _, tracker := range args[1:] {
				peers, err := site.AnnounceToTracker(resolver, tracker, peerID, uint16(theApp.cfg.Fileserver.PortRangeStart))
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "tracker %s failed: %v\n", tracker, err)
					continue
				}
				for _, p := range peers {
					found = append(found, p.String())
				}
			}
			if len(found) == 0 {
				return networkFailure(fmt.Errorf("no peers returned by any tracker"))
			}
			for _, p := range found {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	return cmd
}

func sitePeerExchangeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer-exchange <address> <peer-host:port>",
		Short: "Ask one connected peer for more peers via the pex verb",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := openSite(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := connectPeers(ctx, site, args[1:]); err != nil {
				return err
			}
			peers, err := site.FetchPeers(ctx)
			if err != nil {
				return networkFailure(err)
			}
			for _, p := range peers {
				fmt.Fprintln(cmd.OutOrStdout(), p.String())
			}
			return nil
		},
	}
	return cmd
}

func siteFetchChangesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch-changes <address> <since-unix> <peer-host:port>",
		Short: "List files a peer reports modified since the given timestamp",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := openSite(args[0])
			if err != nil {
				return err
			}
			var since int64
			if _, err := fmt.Sscanf(args[1], "%d", &since); err != nil {
				return invalidArgument("invalid timestamp %q", args[1])
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := connectPeers(ctx, site, args[2:]); err != nil {
				return err
			}
			changed, err := site.FetchChanges(ctx, since)
			if err != nil {
				return networkFailure(err)
			}
			for innerPath, modified := range changed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", innerPath, modified)
			}
			return nil
		},
	}
	return cmd
}
