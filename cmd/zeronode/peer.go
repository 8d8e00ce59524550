package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPeerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "peer", Short: "Low-level peer protocol operations"}
	cmd.AddCommand(peerPingCmd())
	return cmd
}

func peerPingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping <host:port>",
		Short: "Handshake with a peer and measure its ping response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pa, err := parsePeerAddress(args[0])
			if err != nil {
				return invalidArgument("invalid peer address %q: %v", args[0], err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			client, err := theApp.connectPeer(ctx, pa.String())
			if err != nil {
				return networkFailure(err)
			}
			start := time.Now()
			if err := client.Ping(ctx); err != nil {
				return networkFailure(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pong from %s in %s\n", pa, time.Since(start))
			return nil
		},
	}
	return cmd
}
