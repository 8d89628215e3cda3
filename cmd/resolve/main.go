package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/finvex/autotrader/internal/broker"
	"github.com/finvex/autotrader/internal/config"
	"github.com/finvex/autotrader/internal/executor"
	"github.com/finvex/autotrader/internal/ledger"
	"github.com/finvex/autotrader/internal/logger"
	"github.com/finvex/autotrader/internal/secrets"
	"github.com/finvex/autotrader/internal/storage"
	"github.com/finvex/autotrader/internal/telegram"
)

// One-shot pass over PENDING orders, for operators who want to drive
// resolution by hand instead of waiting for the scheduled job.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})

	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database error: %v\n", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db)

	cipher, err := secrets.NewCipher(os.Getenv("AUTOTRADER_ENCRYPTION_KEY"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "encryption key error: %v\n", err)
		os.Exit(1)
	}

	gateway := broker.NewGateway(repo, cipher, cfg, log)
	ldg := ledger.New(db, log)
	notifier := telegram.NewNotifier(cfg, log)
	resolver := executor.NewResolver(repo, ldg, gateway, notifier, cfg, log)

	result, err := resolver.ResolvePending(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Done: %d executed, %d failed, %d retried, %d cancelled.\n",
		result.Executed, result.Failed, result.Retried, result.Cancelled)
	if result.Failed > 0 {
		os.Exit(1)
	}
}
