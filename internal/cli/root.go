// Package cli wires the landingd commands.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
}

// NewRootCommand creates the root command for the landingd CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "landingd",
		Short: "Landing page ops service",
		Long:  "Generates, previews, audits and exports SEO landing pages through a gated run lifecycle.",
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to config file (yaml)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}
