// One-shot overdue sweep for cron or manual runs.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/okulib/circulate/internal/config"
	"github.com/okulib/circulate/internal/database"
	"github.com/okulib/circulate/internal/loan"
	loanStore "github.com/okulib/circulate/internal/loan/store"
	"github.com/okulib/circulate/internal/notify"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString(), cfg.Pool())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	tariff := loan.Tariff{
		GraceDays:  cfg.Fine.GraceDays,
		RatePerDay: cfg.Fine.RatePerDay,
		Cap:        cfg.Fine.Cap,
	}

	var notifier loan.Notifier = notify.NewLog()
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL)
	}

	ledger := loanStore.New(db)
	sweeper := loan.NewSweeper(ledger, notifier, tariff, cfg.Sweep.Interval)

	report := sweeper.RunOnce(context.Background())

	slog.Info("sweep finished",
		"scanned", report.Scanned,
		"updated", report.Updated,
		"blocked", report.Blocked,
		"reminded", report.Reminded,
	)

	for _, sweepErr := range report.Errors {
		slog.Error("sweep error", "loan_id", sweepErr.LoanID, "error", sweepErr.Err)
	}

	if len(report.Errors) > 0 {
		os.Exit(1)
	}
}
