package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"snaptrail/server"
	"snaptrail/task"
)

// NewTasksCommand creates the tasks command group.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage scheduled publish tasks",
	}
	cmd.AddCommand(newTasksListCommand(rootOpts))
	cmd.AddCommand(newTasksRunPendingCommand(rootOpts))
	return cmd
}

func newTasksListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in scheduled order",
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

			tasks, err := task.NewService(stores.Tasks).List(cmd.Context(), task.Status(status))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tasks)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending|completed|partial|failed")
	return cmd
}

func newTasksRunPendingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-pending",
		Short: "Execute every pending task whose scheduled time has passed, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			// single pass; the scheduler loop stays off
			cfg.Tasks.Enabled = false
			components, err := server.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := components.Start(cmd.Context()); err != nil {
				return err
			}

			n, runErr := components.Executor.ProcessPending(cmd.Context(), time.Now())
			if err := components.Close(cmd.Context()); err != nil && runErr == nil {
				runErr = err
			}
			if runErr != nil {
				return runErr
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "processed %d due task(s)\n", n)
			return err
		},
	}
}
