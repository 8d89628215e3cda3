package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/finvex/autotrader/internal/audit"
	"github.com/finvex/autotrader/internal/broker"
	"github.com/finvex/autotrader/internal/config"
	"github.com/finvex/autotrader/internal/executor"
	"github.com/finvex/autotrader/internal/ledger"
	"github.com/finvex/autotrader/internal/logger"
	"github.com/finvex/autotrader/internal/scheduler"
	"github.com/finvex/autotrader/internal/secrets"
	"github.com/finvex/autotrader/internal/signals"
	"github.com/finvex/autotrader/internal/storage"
	"github.com/finvex/autotrader/internal/telegram"
	"github.com/finvex/autotrader/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dbPath := flag.String("db", "", "path to SQLite database (overrides config)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
	log.Info().Str("db", cfg.Database.Path).Msg("starting autotrader engine")

	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}
	repo := storage.NewRepository(db)

	cipher, err := secrets.NewCipher(os.Getenv("AUTOTRADER_ENCRYPTION_KEY"))
	if err != nil {
		log.Fatal().Err(err).Msg("encryption key invalid")
	}

	gateway := broker.NewGateway(repo, cipher, cfg, log)
	ldg := ledger.New(db, log)
	trail := audit.NewTrail(db, log)
	src := signals.NewSource(db, log)
	notifier := telegram.NewNotifier(cfg, log)

	exec := executor.NewExecutor(src, ldg, trail, repo, notifier, cfg, log)
	resolver := executor.NewResolver(repo, ldg, gateway, notifier, cfg, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.Trading.RunSchedule, &scheduler.AutoTradingJob{Executor: exec, Cfg: cfg, Log: log}); err != nil {
		log.Fatal().Err(err).Msg("invalid run schedule")
	}
	if err := sched.AddJob(cfg.Trading.ResolverSchedule, &scheduler.ResolveJob{Resolver: resolver, Log: log}); err != nil {
		log.Fatal().Err(err).Msg("invalid resolver schedule")
	}
	sched.Start()

	webServer := web.NewServer(repo, trail, ldg, exec, cfg, log)
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("web server error")
		}
	}()

	notifier.NotifyStatus("autotrader engine started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("web server shutdown error")
	}

	log.Info().Msg("autotrader engine stopped")
}
