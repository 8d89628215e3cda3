// Package executor turns a day's ranked signals into PENDING orders under the
// funds-availability invariant. Users are processed independently on a bounded
// worker pool; within one user, candidates run serially against a running
// cash remainder. Broker submission is decoupled and handled by the resolver.
package executor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/finvex/autotrader/internal/audit"
	"github.com/finvex/autotrader/internal/config"
	"github.com/finvex/autotrader/internal/ledger"
	"github.com/finvex/autotrader/internal/signals"
	"github.com/finvex/autotrader/internal/storage"
	"github.com/finvex/autotrader/internal/telegram"
)

const (
	reasonDuplicateOrder    = "duplicate pending order"
	reasonInsufficientFunds = "insufficient funds"
	reasonZeroQuantity      = "quantity would be zero"
	reasonLockFailed        = "failed to lock cash"
)

type Executor struct {
	signals  *signals.Source
	ledger   *ledger.Ledger
	trail    *audit.Trail
	repo     *storage.Repository
	notifier *telegram.Notifier
	cfg      *config.Config
	log      zerolog.Logger
}

func NewExecutor(
	src *signals.Source,
	ldg *ledger.Ledger,
	trail *audit.Trail,
	repo *storage.Repository,
	notifier *telegram.Notifier,
	cfg *config.Config,
	log zerolog.Logger,
) *Executor {
	return &Executor{
		signals:  src,
		ledger:   ldg,
		trail:    trail,
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "executor").Logger(),
	}
}

// RunResult is the per-run summary, independent of any single user's outcome.
type RunResult struct {
	Date           time.Time `json:"date"`
	UsersProcessed int       `json:"users_processed"`
	OrdersCreated  int       `json:"orders_created"`
	OrdersSkipped  int       `json:"orders_skipped"`
	OrdersFailed   int       `json:"orders_failed"`
}

type userStats struct {
	created int
	skipped int
	failed  int
}

// ExecuteAutoTrading runs one batch over all eligible users for the date.
// Failures inside a user never abort the others; only unreachable data
// sources abort the run, and those are checked before any reservation is made.
func (e *Executor) ExecuteAutoTrading(ctx context.Context, date time.Time) (*RunResult, error) {
	e.log.Info().Str("date", date.Format("2006-01-02")).Msg("starting auto trading run")

	sigs, err := e.signals.ForDate(date, e.cfg.Trading.ConfidenceFloor)
	if err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}
	if len(sigs) == 0 {
		e.log.Info().Msg("no high-confidence signals for today, skipping run")
		e.saveSummary(date, &RunResult{Date: date})
		return &RunResult{Date: date}, nil
	}
	for _, sig := range sigs {
		e.log.Debug().Str("symbol", sig.Symbol).Float64("price", sig.PredictedPrice).
			Float64("confidence", sig.Confidence).Float64("change_pct", sig.PredictedChangePercent).
			Msg("signal candidate")
	}

	configs, err := e.repo.ActiveTradingConfigs()
	if err != nil {
		return nil, fmt.Errorf("load trading configs: %w", err)
	}
	if len(configs) == 0 {
		e.log.Info().Msg("no users with auto trading enabled, skipping run")
		e.saveSummary(date, &RunResult{Date: date})
		return &RunResult{Date: date}, nil
	}

	e.log.Info().Int("signals", len(sigs)).Int("users", len(configs)).Msg("run inputs loaded")

	result := &RunResult{Date: date}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.Trading.UserConcurrency)

	for _, tc := range configs {
		if ctx.Err() != nil {
			e.log.Warn().Err(ctx.Err()).Msg("run cancelled, abandoning remaining users")
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(tc storage.TradingConfig) {
			defer wg.Done()
			defer func() { <-sem }()

			stats, err := e.processUser(ctx, tc, sigs)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.log.Error().Err(err).Uint("user_id", tc.UserID).Msg("user processing failed")
				return
			}
			result.UsersProcessed++
			result.OrdersCreated += stats.created
			result.OrdersSkipped += stats.skipped
			result.OrdersFailed += stats.failed
		}(tc)
	}
	wg.Wait()

	e.log.Info().Int("users", result.UsersProcessed).
		Int("created", result.OrdersCreated).Int("skipped", result.OrdersSkipped).
		Int("failed", result.OrdersFailed).
		Msg("auto trading run completed")

	e.saveSummary(date, result)
	e.notifier.NotifyRunSummary(result.OrdersCreated, result.OrdersSkipped, result.OrdersFailed)
	return result, nil
}

// ExecuteAutoTradingForUser is the targeted manual re-run for one user.
func (e *Executor) ExecuteAutoTradingForUser(ctx context.Context, externalUserID string, date time.Time) (*RunResult, error) {
	user, err := e.repo.GetUserByExternalID(externalUserID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %s", externalUserID)
	}
	tc, err := e.repo.TradingConfigForUser(user.ID)
	if err != nil || !tc.Enabled || !tc.AutoTradingEnabled {
		return nil, fmt.Errorf("auto trading not enabled for user: %s", externalUserID)
	}

	sigs, err := e.signals.ForDate(date, e.cfg.Trading.ConfidenceFloor)
	if err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}

	result := &RunResult{Date: date}
	if len(sigs) == 0 {
		return result, nil
	}

	stats, err := e.processUser(ctx, *tc, sigs)
	if err != nil {
		return nil, err
	}
	result.UsersProcessed = 1
	result.OrdersCreated = stats.created
	result.OrdersSkipped = stats.skipped
	result.OrdersFailed = stats.failed
	return result, nil
}

// processUser evaluates one user's candidates serially. The recover guard
// keeps a wedged user from taking the rest of the run down with it.
func (e *Executor) processUser(ctx context.Context, tc storage.TradingConfig, sigs []storage.Signal) (stats userStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing user %d: %v", tc.UserID, r)
		}
	}()

	user, err := e.repo.GetUser(tc.UserID)
	if err != nil {
		return stats, fmt.Errorf("load user %d: %w", tc.UserID, err)
	}
	log := e.log.With().Str("user", user.UserID).Logger()

	// Config taxonomy: no broker account means the user cannot trade at all.
	// Nothing was evaluated for them, so no audit entries either.
	if _, aerr := e.repo.ActiveBrokerAccount(tc.UserID); aerr != nil {
		log.Warn().Msg("no active broker account, skipping user")
		return stats, nil
	}

	available, err := e.ledger.AvailableCash(tc.UserID)
	if err != nil {
		return stats, fmt.Errorf("available cash for user %d: %w", tc.UserID, err)
	}
	log.Info().Float64("available_cash", available).Msg("processing user")

	if available <= 0 {
		log.Info().Msg("no available cash, skipping user")
		return stats, nil
	}

	candidates := selectCandidates(sigs, tc.MinConfidence, tc.MaxStocksToBuy)
	log.Debug().Int("candidates", len(candidates)).Msg("target signals after filtering")

	cashRemaining := available
	since := time.Now().Add(-e.cfg.DedupWindowDuration())

	for _, sig := range candidates {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		e.processSignal(log, tc, sig, since, &cashRemaining, &stats)
	}
	return stats, nil
}

// processSignal runs the decision chain for one candidate. Each candidate is
// isolated the same way users are: a failure records FAILED and moves on.
func (e *Executor) processSignal(log zerolog.Logger, tc storage.TradingConfig, sig storage.Signal, since time.Time, cashRemaining *float64, stats *userStats) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("symbol", sig.Symbol).Interface("panic", r).Msg("panic processing signal")
			stats.failed++
		}
	}()

	// Idempotency: a re-invoked run only acts on signals not yet decided.
	decided, err := e.trail.AlreadyDecided(tc.UserID, sig.SignalID, since)
	if err != nil {
		log.Error().Err(err).Str("symbol", sig.Symbol).Msg("audit lookup failed")
		stats.failed++
		return
	}
	if decided {
		log.Debug().Str("symbol", sig.Symbol).Msg("signal already decided, skipping")
		return
	}

	exists, err := e.repo.RecentBuyOrderExists(tc.UserID, sig.Symbol, since)
	if err != nil {
		log.Error().Err(err).Str("symbol", sig.Symbol).Msg("dedup lookup failed")
		stats.failed++
		return
	}
	if exists {
		log.Info().Str("symbol", sig.Symbol).Msg("skipping, already has live order")
		e.recordDecision(tc.UserID, sig, storage.DecisionSkipped, reasonDuplicateOrder, "")
		stats.skipped++
		return
	}

	price := sig.PredictedPrice
	orderAmount := math.Min(tc.MaxAmountPerStock, *cashRemaining)
	if orderAmount < price {
		log.Info().Str("symbol", sig.Symbol).Float64("need", price).Float64("have", orderAmount).
			Msg("insufficient funds for signal")
		e.recordDecision(tc.UserID, sig, storage.DecisionSkipped, reasonInsufficientFunds, "")
		stats.skipped++
		return
	}

	quantity := int64(math.Floor(orderAmount / price))
	if quantity <= 0 {
		log.Warn().Str("symbol", sig.Symbol).Msg("calculated quantity is zero")
		e.recordDecision(tc.UserID, sig, storage.DecisionSkipped, reasonZeroQuantity, "")
		stats.skipped++
		return
	}
	totalAmount := float64(quantity) * price

	ok, err := e.ledger.Reserve(tc.UserID, totalAmount)
	if err != nil {
		log.Error().Err(err).Str("symbol", sig.Symbol).Msg("reserve failed")
		stats.failed++
		return
	}
	if !ok {
		// Lost the race with a concurrent reservation: a funds condition,
		// not a fatal one.
		log.Warn().Str("symbol", sig.Symbol).Float64("amount", totalAmount).Msg("failed to lock cash")
		e.recordDecision(tc.UserID, sig, storage.DecisionFailed, reasonLockFailed, "")
		stats.skipped++
		return
	}

	order := &storage.Order{
		OrderID:     uuid.NewString(),
		UserID:      tc.UserID,
		Symbol:      sig.Symbol,
		Side:        storage.SideBuy,
		Quantity:    quantity,
		Price:       price,
		TotalAmount: totalAmount,
		Status:      storage.StatusPending,
	}
	if err := e.repo.CreateOrder(order); err != nil {
		log.Error().Err(err).Str("symbol", sig.Symbol).Msg("create order failed, releasing reservation")
		if _, rerr := e.ledger.Release(tc.UserID, totalAmount); rerr != nil {
			log.Error().Err(rerr).Str("symbol", sig.Symbol).Msg("release after failed create")
		}
		e.recordDecision(tc.UserID, sig, storage.DecisionFailed, "failed to create order", "")
		stats.failed++
		return
	}

	e.recordDecision(tc.UserID, sig, storage.DecisionExecuted, "", order.OrderID)
	log.Info().Str("symbol", sig.Symbol).Int64("quantity", quantity).
		Float64("price", price).Float64("total", totalAmount).Float64("confidence", sig.Confidence).
		Msg("created BUY order")

	e.notifier.NotifyOrderCreated(tc.UserID, sig.Symbol, quantity, price, totalAmount)
	stats.created++
	*cashRemaining -= totalAmount
}

// recordDecision appends the audit record. Audit write failures are logged and
// swallowed: losing one record must not abort a live trading decision.
func (e *Executor) recordDecision(userID uint, sig storage.Signal, decision storage.Decision, skipReason, orderID string) {
	rec := &storage.SignalExecution{
		UserID:     userID,
		SignalID:   sig.SignalID,
		Symbol:     sig.Symbol,
		Confidence: sig.Confidence,
		Decision:   decision,
		SkipReason: skipReason,
		OrderID:    orderID,
	}
	if err := e.trail.Record(rec); err != nil {
		e.log.Error().Err(err).Uint("user_id", userID).Str("symbol", sig.Symbol).
			Msg("failed to record signal execution")
	}
}

// selectCandidates filters to the user's confidence bar and takes the top N
// by descending confidence.
func selectCandidates(sigs []storage.Signal, minConfidence float64, maxStocks int) []storage.Signal {
	out := make([]storage.Signal, 0, len(sigs))
	for _, s := range sigs {
		if s.Confidence >= minConfidence {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if maxStocks > 0 && len(out) > maxStocks {
		out = out[:maxStocks]
	}
	return out
}

func (e *Executor) saveSummary(date time.Time, result *RunResult) {
	summary := &storage.RunSummary{
		RunDate:        date,
		UsersProcessed: result.UsersProcessed,
		OrdersCreated:  result.OrdersCreated,
		OrdersSkipped:  result.OrdersSkipped,
		OrdersFailed:   result.OrdersFailed,
	}
	if err := e.repo.SaveRunSummary(summary); err != nil {
		e.log.Error().Err(err).Msg("save run summary")
	}
}
