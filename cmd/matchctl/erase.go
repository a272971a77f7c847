package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/matchd/internal/entity"
)

var eraseCmd = &cobra.Command{
	Use:   "erase <job|candidate> <external-id>",
	Short: "Erase an entity from both stores",
	Long: `Erase removes an entity's vector and its metadata row, including
dependent applications and match events. Idempotent: erasing an entity
that is already gone reports success.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		category := entity.Category(args[0])
		if !category.Valid() {
			return fmt.Errorf("category must be job or candidate, got %q", args[0])
		}

		e, err := newEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.coordinator.Erase(cmd.Context(), category, args[1]); err != nil {
			return fmt.Errorf("erasure failed: %w", err)
		}
		fmt.Printf("Erased %s %s\n", category, args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eraseCmd)
}
