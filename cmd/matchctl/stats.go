package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/matchd/internal/entity"
	"github.com/fyrsmithlabs/matchd/internal/vectorstore"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print entity and vector counts for both stores",
	Long: `Stats reports row counts from the entity store next to point counts
from the vector index. In a healthy deployment the embedded-entity count
and the point count agree per category; a gap means the next sweep or a
resubmission has reconciliation to do.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		for _, category := range []entity.Category{entity.CategoryJob, entity.CategoryCandidate} {
			rows, err := e.store.CountEntities(cmd.Context(), category)
			if err != nil {
				return fmt.Errorf("counting %s rows: %w", category, err)
			}

			collection := vectorstore.CollectionFor(category)
			info, err := e.index.CollectionInfo(cmd.Context(), collection)
			if err != nil {
				return fmt.Errorf("describing collection %s: %w", collection, err)
			}

			fmt.Printf("%-11s rows=%-6d vectors=%-6d (collection %s, dim %d)\n",
				category+":", rows, info.PointCount, info.Name, info.VectorSize)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
