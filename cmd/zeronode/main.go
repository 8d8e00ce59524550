package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is the protocol/client version this node reports on handshake.
const Version = "zeronode/0.1"

func main() {
	root := &cobra.Command{
		Use:               "zeronode",
		Short:             "ZeroNet-compatible content distribution node",
		PersistentPreRunE: rootInit,
		SilenceUsage:      true,
	}

	root.AddCommand(
		newSiteCmd(),
		newPeerCmd(),
		newDBCmd(),
		newServeCmd(),
	)

	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, ee.Error())
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(ExitInvalidArgument)
	}
}
