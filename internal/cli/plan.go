package cli

import (
	"github.com/spf13/cobra"

	"snaptrail/populate"
	"snaptrail/redact"
	"snaptrail/schema"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <type-uid>",
		Short: "Print the populate plan used for snapshots of a type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			registry, err := schema.LoadFile(cfg.Schema.Path)
			if err != nil {
				return err
			}
			planner := populate.NewPlanner(registry, redact.NewOmitSet(cfg.Audit.OmitFields...))
			return writeJSON(cmd.OutOrStdout(), planner.Plan(args[0]).Query())
		},
	}
}
