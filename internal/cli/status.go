package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vietddude/syncer/internal/control"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [session_id]",
	Short: "Show recent sync sessions, or one session in detail",
	Args:  cobra.MaximumNArgs(1),
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of recent sessions to list")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.NewSyncer(cfg)
	if err != nil {
		slog.Error("Failed to initialize Syncer", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()
	defer func() { _ = app.Stop(ctx) }()

	if len(args) == 1 {
		sess, err := app.SyncStatus(ctx, args[0])
		if err != nil {
			slog.Error("Failed to load session", "session_id", args[0], "error", err)
			os.Exit(1)
		}
		fmt.Printf("Session:    %s\n", sess.ID)
		fmt.Printf("Type:       %s\n", sess.SyncType)
		fmt.Printf("Resource:   %s\n", sess.TargetResource)
		fmt.Printf("Status:     %s\n", sess.Status)
		fmt.Printf("Progress:   %d processed, %d created, %d updated, %d existing, %d errors\n",
			sess.Progress.Processed, sess.Progress.Created, sess.Progress.Updated,
			sess.Progress.Existing, sess.Progress.Errors)
		fmt.Printf("Completion: %.1f%%\n", sess.CompletionPercentage())
		fmt.Printf("Speed:      %.1f records/min\n", sess.RecordsPerMinute())
		return
	}

	sessions, err := app.RecentSessions(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SESSION\tSTATUS\tRESOURCE\tPROCESSED\tERRORS")
	for _, sess := range sessions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			sess.ID, sess.Status, sess.TargetResource,
			sess.Progress.Processed, sess.ErrorCount)
	}
	_ = w.Flush()
}
