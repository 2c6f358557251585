package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "democli",
		Short:         "Talk to the demo assistant from a terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("catalog", "", "path to a catalog YAML file (defaults to the embedded catalog)")
	root.PersistentFlags().String("log-level", "warn", "log level for stderr diagnostics")
	root.AddCommand(newDemosCmd(), newChatCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
