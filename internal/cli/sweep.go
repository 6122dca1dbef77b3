package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func getSweepCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Replay buffered submissions into the authoritative store",
		Long: `Sweep scans the durable intake buffer for records the live intake path
never managed to persist and replays them into the authoritative store.
Records already present (matched by buffer key) are consumed without creating
duplicates. With --follow the sweep repeats at the configured interval until
interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if follow {
				logger.Info("reconciliation sweep running", "interval", cfg.Sweep.Interval)
				rt.reconciler.Run(ctx, cfg.Sweep.Interval)
				return nil
			}
			stats, err := rt.reconciler.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("scanned %d, replayed %d, already persisted %d, consumed %d, failures %d\n",
				stats.Scanned, stats.Replayed, stats.AlreadyPersisted, stats.Consumed, stats.Failures)
			return nil
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "keep sweeping at the configured interval")
	return cmd
}

func getRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the read-optimized snapshot from the authoritative store",
		Long: `Rebuild regenerates the snapshot file from all published records. The
previous snapshot is kept as a backup next to the new one, and the replace is
atomic: readers see either the old or the new file, never a partial write.
Rebuilding from unchanged data produces byte-identical output.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.syncer.Rebuild(ctx); err != nil {
				return err
			}
			fmt.Printf("snapshot written to %s\n", cfg.Snapshot.Path)
			return nil
		},
	}
}
