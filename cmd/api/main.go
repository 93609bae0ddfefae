package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/okulib/circulate/internal/account"
	accountStore "github.com/okulib/circulate/internal/account/store"
	"github.com/okulib/circulate/internal/book"
	bookStore "github.com/okulib/circulate/internal/book/store"
	"github.com/okulib/circulate/internal/config"
	"github.com/okulib/circulate/internal/database"
	circulateHttp "github.com/okulib/circulate/internal/http"
	accountHandler "github.com/okulib/circulate/internal/http/account"
	loanHandler "github.com/okulib/circulate/internal/http/loan"
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

	var (
		accountService = account.NewService(accountStore.New(db), ledger)
		bookService    = book.NewService(bookStore.New(db))
		directory      = account.NewDirectory(accountService)
		catalog        = book.NewCatalog(bookService)
		loanService    = loan.NewService(ledger, directory, catalog, tariff)
		sweeper        = loan.NewSweeper(ledger, notifier, tariff, cfg.Sweep.Interval)
	)

	go sweeper.Start(context.Background())

	var (
		loansH    = loanHandler.NewHandler(loanService, sweeper)
		accountsH = accountHandler.NewHandler(accountService)
	)

	router := circulateHttp.New(loansH, accountsH, []byte(cfg.Auth.Secret))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	slog.Info("starting server", "port", server.Addr, "sweep_interval", cfg.Sweep.Interval)

	if err := server.ListenAndServe(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
