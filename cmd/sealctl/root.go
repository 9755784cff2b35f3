package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sealctl",
		Short:         "Seal certification tool",
		Long:          "Compute and verify seal certificate digests, and chain or inspect seal ownerships through the admin API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newDigestCmd(),
		newVerifyCmd(),
		newTokenCmd(),
		newChainCmd(),
		newStatusCmd(),
		newProvidersCmd(),
	)
	return root
}
