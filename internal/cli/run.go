package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vietddude/syncer/internal/control"
	"github.com/vietddude/syncer/internal/sync/engine"
)

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run [sync_name]",
	Short: "Run one configured sync pipeline (or all when no name is given)",
	Args:  cobra.MaximumNArgs(1),
	Run:   runSync,
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate config and adapters without processing records")
	rootCmd.AddCommand(runCmd)
}

func runSync(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.NewSyncer(cfg)
	if err != nil {
		slog.Error("Failed to initialize Syncer", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	opts := engine.Options{DryRun: dryRun}

	var results []*engine.Result
	if len(args) == 1 {
		result, err := app.RunSync(ctx, args[0], opts)
		if err != nil {
			slog.Error("Sync failed", "name", args[0], "error", err)
			os.Exit(1)
		}
		results = append(results, result)
	} else {
		results, err = app.RunAll(ctx, opts)
		if err != nil {
			slog.Error("Sync failed", "error", err)
			os.Exit(1)
		}
	}

	for _, result := range results {
		fmt.Printf("%s: processed=%d created=%d updated=%d existing=%d errors=%d (%dms)\n",
			result.Status,
			result.Stats.Processed,
			result.Stats.Created,
			result.Stats.Updated,
			result.Stats.Existing,
			result.Stats.Errors,
			result.DurationMs,
		)
	}

	if err := app.Stop(ctx); err != nil {
		slog.Warn("Error during shutdown", "error", err)
	}
}
