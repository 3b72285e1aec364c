package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newReconcileCmd creates the 'reconcile' subcommand. It replays CRM sync for
// leads stuck in needs_sync (and stale pending leads) once, then exits.
func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Retry CRM sync for leads marked needs_sync",
		Args:  cobra.NoArgs,
		RunE:  runReconcileCommand,
	}
}

func runReconcileCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	report, err := appInstance.Reconcile(cmd.Context())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "attempted=%d synced=%d needs_sync=%d\n",
		report.Attempted, report.Synced, report.NeedsSync)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
