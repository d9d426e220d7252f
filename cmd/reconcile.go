package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Bring the live interface in line with the registry",
	Long: `Re-apply registry peers missing from the interface, remove keys left by
interrupted operations (or all unknown keys with reconcile.prune_unknown),
repair address pool flags and clear the intent journal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()
		rep, err := app.Reconcile(cmd.Context())
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(rep); encErr != nil {
			return encErr
		}
		return err
	},
}
