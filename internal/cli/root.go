// Package cli implements the snaptrail command line.
package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"snaptrail/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	SchemaPath string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "snaptrail",
		Short: "Audit trail with restorable snapshots for a headless CMS document engine",
		Long: `snaptrail records every document mutation with full before/after snapshots,
restores documents from any recorded snapshot, and runs scheduled publish tasks.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (YAML); SNAPTRAIL_* env vars override it")
	cmd.PersistentFlags().StringVar(&opts.SchemaPath, "schema", "", "schema registry file, overrides schema.path")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewAuditsCommand(opts))
	cmd.AddCommand(NewTasksCommand(opts))

	return cmd
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.SchemaPath != "" {
		cfg.Schema.Path = opts.SchemaPath
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
