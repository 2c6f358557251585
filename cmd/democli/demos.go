package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/usmanalidev/demo-agent-ai/internal/catalog"
)

func loadCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	path, _ := cmd.Flags().GetString("catalog")
	return catalog.Load(path)
}

func newDemosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demos",
		Short: "List the guided walkthroughs in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range c.Demos() {
				fmt.Fprintf(out, "%-16s %-18s %s\n", d.Feature, d.Title, strings.Join(d.Steps, " -> "))
			}
			return nil
		},
	}
}
