package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/matchd/internal/entity"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one retention sweep now",
	Long: `Sweep erases all entities whose last update precedes the configured
retention window and prunes expired match-event audit rows, without
waiting for the daemon's next scheduled run. Safe to re-run: already
erased entities no longer match the selection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.coordinator.Sweep(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		fmt.Printf("Jobs erased:        %d\n", result.Erased[entity.CategoryJob])
		fmt.Printf("Candidates erased:  %d\n", result.Erased[entity.CategoryCandidate])
		fmt.Printf("Audit rows pruned:  %d\n", result.AuditPruned)
		if result.Failed > 0 {
			fmt.Printf("Failed (will retry next sweep): %d\n", result.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
