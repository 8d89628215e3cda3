package executor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/finvex/autotrader/internal/audit"
	"github.com/finvex/autotrader/internal/config"
	"github.com/finvex/autotrader/internal/ledger"
	"github.com/finvex/autotrader/internal/signals"
	"github.com/finvex/autotrader/internal/storage"
	"github.com/finvex/autotrader/internal/telegram"
)

type testEnv struct {
	db     *gorm.DB
	repo   *storage.Repository
	ledger *ledger.Ledger
	trail  *audit.Trail
	cfg    *config.Config
	exec   *Executor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Trading.ConfidenceFloor = 0.70
	cfg.Trading.DedupWindow = "24h"
	cfg.Trading.UserConcurrency = 4
	cfg.Trading.StaleOrderTimeout = "24h"

	log := zerolog.Nop()
	repo := storage.NewRepository(db)
	ldg := ledger.New(db, log)
	trail := audit.NewTrail(db, log)
	src := signals.NewSource(db, log)
	notifier := telegram.NewNotifier(cfg, log)

	return &testEnv{
		db:     db,
		repo:   repo,
		ledger: ldg,
		trail:  trail,
		cfg:    cfg,
		exec:   NewExecutor(src, ldg, trail, repo, notifier, cfg, log),
	}
}

// seedUser creates a tradable user: row, enabled config, active broker
// account, and a funded balance.
func (env *testEnv) seedUser(t *testing.T, externalID string, cash, maxPerStock float64, maxStocks int, minConfidence float64) uint {
	t.Helper()

	user := &storage.User{UserID: externalID, Name: externalID}
	require.NoError(t, env.db.Create(user).Error)

	require.NoError(t, env.db.Create(&storage.TradingConfig{
		UserID:             user.ID,
		Enabled:            true,
		AutoTradingEnabled: true,
		MaxStocksToBuy:     maxStocks,
		MaxAmountPerStock:  maxPerStock,
		MinConfidence:      minConfidence,
	}).Error)

	require.NoError(t, env.db.Create(&storage.BrokerAccount{
		UserID:        user.ID,
		AccountType:   storage.AccountMock,
		AccountNumber: "12345678",
		ProductCode:   "01",
		AppKey:        "key",
		Active:        true,
	}).Error)

	_, err := env.ledger.InitializeBalance(user.ID, cash)
	require.NoError(t, err)
	return user.ID
}

func (env *testEnv) seedSignal(t *testing.T, symbol string, price, confidence float64, date time.Time) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, env.db.Create(&storage.Signal{
		SignalID:       id,
		Symbol:         symbol,
		PredictedPrice: price,
		Confidence:     confidence,
		Date:           date,
	}).Error)
	return id
}

func TestExecuteAutoTradingCreatesOrders(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	userID := env.seedUser(t, "alice", 10000, 3000, 5, 0.75)
	env.seedSignal(t, "AAPL", 150, 0.90, now)
	env.seedSignal(t, "MSFT", 400, 0.80, now)
	env.seedSignal(t, "LOWC", 50, 0.60, now) // below the user's confidence bar

	result, err := env.exec.ExecuteAutoTrading(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UsersProcessed)
	assert.Equal(t, 2, result.OrdersCreated)
	assert.Equal(t, 0, result.OrdersSkipped)
	assert.Equal(t, 0, result.OrdersFailed)

	orders, err := env.repo.PendingOrders()
	require.NoError(t, err)
	require.Len(t, orders, 2)

	// AAPL: min(3000, 10000)/150 = 20 shares, 3000 reserved.
	// MSFT: min(3000, 7000)/400 = 7 shares, 2800 reserved.
	var totalReserved float64
	for _, o := range orders {
		assert.Equal(t, storage.SideBuy, o.Side)
		assert.Equal(t, storage.StatusPending, o.Status)
		totalReserved += o.TotalAmount
	}
	assert.Equal(t, 5800.0, totalReserved)

	balance, err := env.ledger.Balance(userID)
	require.NoError(t, err)
	assert.Equal(t, 5800.0, balance.LockedCash)
	assert.Equal(t, 10000.0, balance.Cash)

	recs, err := env.trail.RecentForUser(userID, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, storage.DecisionExecuted, rec.Decision)
		assert.NotEmpty(t, rec.OrderID)
	}
}

func TestExecuteAutoTradingIdempotentRerun(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	userID := env.seedUser(t, "alice", 10000, 3000, 5, 0.75)
	env.seedSignal(t, "AAPL", 150, 0.90, now)

	first, err := env.exec.ExecuteAutoTrading(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, first.OrdersCreated)

	// The same invocation again: every signal is already decided, so nothing
	// new is created, skipped, or recorded.
	second, err := env.exec.ExecuteAutoTrading(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, second.OrdersCreated)
	assert.Equal(t, 0, second.OrdersSkipped)
	assert.Equal(t, 0, second.OrdersFailed)

	orders, err := env.repo.RecentOrders(10)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	recs, err := env.trail.RecentForUser(userID, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	balance, err := env.ledger.Balance(userID)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, balance.LockedCash)
}

func TestDuplicateOrderWindow(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	userID := env.seedUser(t, "alice", 10000, 3000, 5, 0.75)

	// An hour-old EXECUTED buy is still inside the 24h window.
	executed := now.Add(-time.Hour)
	require.NoError(t, env.repo.CreateOrder(&storage.Order{
		OrderID:     uuid.NewString(),
		UserID:      userID,
		Symbol:      "AAPL",
		Side:        storage.SideBuy,
		Quantity:    10,
		Price:       150,
		TotalAmount: 1500,
		Status:      storage.StatusExecuted,
		ExecutedAt:  &executed,
	}))

	sigID := env.seedSignal(t, "AAPL", 155, 0.90, now)

	result, err := env.exec.ExecuteAutoTrading(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, result.OrdersCreated)
	assert.Equal(t, 1, result.OrdersSkipped)

	recs, err := env.trail.ForUserSymbol(userID, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, storage.DecisionSkipped, recs[0].Decision)
	assert.Equal(t, "duplicate pending order", recs[0].SkipReason)
	assert.Equal(t, sigID, recs[0].SignalID)
}

func TestInsufficientFundsSkip(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	userID := env.seedUser(t, "alice", 1000, 600, 5, 0.70)
	env.seedSignal(t, "AAPL", 550, 0.90, now)
	env.seedSignal(t, "NVDA", 700, 0.80, now)

	result, err := env.exec.ExecuteAutoTrading(context.Background(), now)
	require.NoError(t, err)

	// AAPL: min(600, 1000) = 600, one share at 550, 550 reserved.
	// NVDA: min(600, 450) = 450 < price 700, skipped for funds.
	assert.Equal(t, 1, result.OrdersCreated)
	assert.Equal(t, 1, result.OrdersSkipped)

	recs, err := env.trail.ForUserSymbol(userID, "NVDA", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, storage.DecisionSkipped, recs[0].Decision)
	assert.Equal(t, "insufficient funds", recs[0].SkipReason)

	balance, err := env.ledger.Balance(userID)
	require.NoError(t, err)
	assert.Equal(t, 550.0, balance.LockedCash)
}

func TestQuantityFloorsAndExactReservation(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	userID := env.seedUser(t, "alice", 1000, 999, 5, 0.70)
	env.seedSignal(t, "AAPL", 334, 0.90, now)

	result, err := env.exec.ExecuteAutoTrading(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, result.OrdersCreated)

	orders, err := env.repo.PendingOrders()
	require.NoError(t, err)
	require.Len(t, orders, 1)

	// floor(999/334) = 2 shares; only 668 is reserved, never the full 999.
	assert.Equal(t, int64(2), orders[0].Quantity)
	assert.Equal(t, 668.0, orders[0].TotalAmount)

	balance, err := env.ledger.Balance(userID)
	require.NoError(t, err)
	assert.Equal(t, 668.0, balance.LockedCash)
}

func TestUserFailureDoesNotAbortRun(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	env.seedUser(t, "alice", 5000, 2000, 5, 0.70)
	brokenID := env.seedUser(t, "bob", 5000, 2000, 5, 0.70)
	env.seedUser(t, "carol", 5000, 2000, 5, 0.70)

	// Break bob mid-pipeline: his config row survives but his user row is gone.
	require.NoError(t, env.db.Unscoped().Delete(&storage.User{}, brokenID).Error)

	env.seedSignal(t, "AAPL", 150, 0.90, now)

	result, err := env.exec.ExecuteAutoTrading(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, result.UsersProcessed)
	assert.Equal(t, 2, result.OrdersCreated)
}

func TestUserWithoutBrokerAccountSkipped(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	userID := env.seedUser(t, "alice", 5000, 2000, 5, 0.70)
	require.NoError(t, env.db.Model(&storage.BrokerAccount{}).
		Where("user_id = ?", userID).Update("active", false).Error)

	env.seedSignal(t, "AAPL", 150, 0.90, now)

	result, err := env.exec.ExecuteAutoTrading(context.Background(), now)
	require.NoError(t, err)

	// The user is processed but evaluates nothing, so no audit rows appear.
	assert.Equal(t, 1, result.UsersProcessed)
	assert.Equal(t, 0, result.OrdersCreated)

	recs, err := env.trail.RecentForUser(userID, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestNoSignalsIsANormalRun(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	env.seedUser(t, "alice", 5000, 2000, 5, 0.70)

	result, err := env.exec.ExecuteAutoTrading(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, result.UsersProcessed)
	assert.Equal(t, 0, result.OrdersCreated)

	summaries, err := env.repo.RecentRunSummaries(10)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestNoEligibleUsersIsANormalRun(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	env.seedSignal(t, "AAPL", 150, 0.90, now)

	result, err := env.exec.ExecuteAutoTrading(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, result.UsersProcessed)
}

func TestExecuteAutoTradingForUser(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	env.seedUser(t, "alice", 5000, 2000, 5, 0.70)
	env.seedSignal(t, "AAPL", 150, 0.90, now)

	result, err := env.exec.ExecuteAutoTradingForUser(context.Background(), "alice", now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.UsersProcessed)
	assert.Equal(t, 1, result.OrdersCreated)

	_, err = env.exec.ExecuteAutoTradingForUser(context.Background(), "nobody", now)
	assert.Error(t, err)
}

func TestSelectCandidates(t *testing.T) {
	sigs := []storage.Signal{
		{Symbol: "A", Confidence: 0.72},
		{Symbol: "B", Confidence: 0.95},
		{Symbol: "C", Confidence: 0.65},
		{Symbol: "D", Confidence: 0.88},
	}

	out := selectCandidates(sigs, 0.70, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].Symbol)
	assert.Equal(t, "D", out[1].Symbol)

	out = selectCandidates(sigs, 0.70, 0)
	assert.Len(t, out, 3)

	out = selectCandidates(nil, 0.70, 5)
	assert.Empty(t, out)
}
