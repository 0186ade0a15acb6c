package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vietddude/syncer/internal/control"
	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/sync/integrity"
)

var (
	verifyMode      string
	verifySample    int
	verifyReconcile bool
	verifyDryRun    bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run an integrity verification between sources and targets",
	Run:   runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyMode, "mode", "count_only", "verification mode: count_only, sample or full")
	verifyCmd.Flags().IntVar(&verifySample, "sample-size", 100, "records per resource in sample mode")
	verifyCmd.Flags().BoolVar(&verifyReconcile, "reconcile", false, "reconcile discrepancies after verification")
	verifyCmd.Flags().BoolVar(&verifyDryRun, "dry-run", false, "plan reconciliation without applying it")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.NewSyncer(cfg)
	if err != nil {
		slog.Error("Failed to initialize Syncer", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()
	defer func() { _ = app.Stop(ctx) }()

	report, err := app.Verify(ctx, domain.VerificationMode(verifyMode), integrity.Options{
		SampleSize: verifySample,
	})
	if err != nil {
		slog.Error("Verification failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Integrity: %.1f/100 (%s), %d issue(s)\n",
		report.IntegrityScore, report.OverallStatus, report.IssueCount())
	for _, rec := range report.Recommendations {
		fmt.Printf("  - %s\n", rec)
	}

	if !verifyReconcile {
		if report.IssueCount() > 0 {
			out, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(out))
		}
		return
	}

	summary, err := app.Reconcile(ctx, report, integrity.ReconcileOptions{
		DryRun: verifyDryRun,
		Actor:  "cli",
	})
	if err != nil {
		slog.Error("Reconciliation failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Reconciled %d/%d issue(s), resolution rate %.2f\n",
		summary.Resolved, summary.TotalIssues, summary.ResolutionRate)
	for _, action := range summary.Actions {
		fmt.Printf("  - %s\n", action)
	}
}
