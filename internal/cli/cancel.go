package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vietddude/syncer/internal/control"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [session_id]",
	Short: "Signal a running sync session to stop after its current batch",
	Args:  cobra.ExactArgs(1),
	Run:   runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.NewSyncer(cfg)
	if err != nil {
		slog.Error("Failed to initialize Syncer", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()
	defer func() { _ = app.Stop(ctx) }()

	if err := app.CancelSync(ctx, args[0]); err != nil {
		slog.Error("Failed to cancel session", "session_id", args[0], "error", err)
		os.Exit(1)
	}
	fmt.Printf("Cancellation requested for %s\n", args[0])
}
