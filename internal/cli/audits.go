package cli

import (
	"github.com/spf13/cobra"

	"snaptrail/audit"
	"snaptrail/document"
	"snaptrail/server"
)

// NewAuditsCommand creates the audits command group.
func NewAuditsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audits",
		Short: "Inspect recorded audit entries",
	}
	cmd.AddCommand(newAuditsListCommand(rootOpts))
	return cmd
}

type auditsListOptions struct {
	contentType string
	documentID  string
	operation   string
	limit       int
	restorable  bool
}

func newAuditsListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &auditsListOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit records, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			stores, err := server.OpenStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			svc := audit.NewService(stores.Audit, nil, cfg.Audit.ListLimit, cfg.Audit.MaxListLimit)
			filter := audit.Filter{
				ContentType: opts.contentType,
				DocumentID:  opts.documentID,
				Operation:   document.Kind(opts.operation),
				Limit:       opts.limit,
			}
			var records []*audit.Record
			if opts.restorable {
				records, err = svc.Restorable(cmd.Context(), filter)
			} else {
				records, err = svc.List(cmd.Context(), filter)
			}
			if err != nil {
				return err
			}
			if records == nil {
				records = []*audit.Record{}
			}
			return writeJSON(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVar(&opts.contentType, "type", "", "content type uid")
	cmd.Flags().StringVar(&opts.documentID, "document", "", "document id")
	cmd.Flags().StringVar(&opts.operation, "operation", "", "create|update|delete|publish|unpublish")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum records (0 uses audit.list_limit)")
	cmd.Flags().BoolVar(&opts.restorable, "restorable", false, "only records with an after-snapshot")
	return cmd
}
