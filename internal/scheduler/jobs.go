package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/finvex/autotrader/internal/config"
	"github.com/finvex/autotrader/internal/executor"
)

// AutoTradingJob runs the batch execution for "today" when the market is open.
type AutoTradingJob struct {
	Executor *executor.Executor
	Cfg      *config.Config
	Log      zerolog.Logger
}

func (j *AutoTradingJob) Name() string { return "auto-trading" }

func (j *AutoTradingJob) Run() error {
	if !IsWithinTradingHours(time.Now(), j.Cfg.MarketLocation()) {
		j.Log.Info().Msg("outside trading hours, skipping auto trading run")
		return nil
	}
	_, err := j.Executor.ExecuteAutoTrading(context.Background(), time.Now())
	return err
}

// ResolveJob drives PENDING orders to a final state.
type ResolveJob struct {
	Resolver *executor.Resolver
	Log      zerolog.Logger
}

func (j *ResolveJob) Name() string { return "resolve-pending" }

func (j *ResolveJob) Run() error {
	_, err := j.Resolver.ResolvePending(context.Background())
	return err
}
