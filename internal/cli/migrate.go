package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"clubatlas/internal/snapshot"
)

func getMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <snapshot.json>",
		Short: "Bulk-load an existing snapshot file into the authoritative store",
		Long: `Migrate imports a snapshot file produced by an earlier deployment into
the authoritative store. Entries are matched to existing published records by
name and university, so running the same migration twice creates no
duplicates.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := snapshot.Migrate(ctx, rt.store, args[0], logger)
			if err != nil {
				return err
			}
			fmt.Printf("scanned %d, created %d, updated %d, unchanged %d\n",
				stats.Scanned, stats.Created, stats.Updated, stats.Unchanged)
			return nil
		},
	}
}
