package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return NewRepository(db)
}

func createOrder(t *testing.T, repo *Repository, userID uint, symbol string, side OrderSide, status OrderStatus) *Order {
	t.Helper()
	order := &Order{
		OrderID:     uuid.NewString(),
		UserID:      userID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    10,
		Price:       100,
		TotalAmount: 1000,
		Status:      status,
	}
	require.NoError(t, repo.CreateOrder(order))
	return order
}

func TestActiveTradingConfigs(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.db.Create(&TradingConfig{UserID: 1, Enabled: true, AutoTradingEnabled: true}).Error)
	require.NoError(t, repo.db.Create(&TradingConfig{UserID: 2, Enabled: true, AutoTradingEnabled: false}).Error)
	require.NoError(t, repo.db.Create(&TradingConfig{UserID: 3, Enabled: false, AutoTradingEnabled: true}).Error)

	configs, err := repo.ActiveTradingConfigs()
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, uint(1), configs[0].UserID)
}

func TestRecentBuyOrderExists(t *testing.T) {
	repo := newTestRepo(t)
	since := time.Now().Add(-24 * time.Hour)

	exists, err := repo.RecentBuyOrderExists(1, "AAPL", since)
	require.NoError(t, err)
	assert.False(t, exists)

	createOrder(t, repo, 1, "AAPL", SideBuy, StatusPending)

	exists, err = repo.RecentBuyOrderExists(1, "AAPL", since)
	require.NoError(t, err)
	assert.True(t, exists)

	// Other symbol and other user are unaffected.
	exists, err = repo.RecentBuyOrderExists(1, "MSFT", since)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.RecentBuyOrderExists(2, "AAPL", since)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRecentBuyOrderExistsStatusFilter(t *testing.T) {
	repo := newTestRepo(t)
	since := time.Now().Add(-24 * time.Hour)

	// FAILED and CANCELLED orders do not block a new attempt; sells never do.
	createOrder(t, repo, 1, "AAPL", SideBuy, StatusFailed)
	createOrder(t, repo, 1, "AAPL", SideBuy, StatusCancelled)
	createOrder(t, repo, 1, "MSFT", SideSell, StatusPending)

	exists, err := repo.RecentBuyOrderExists(1, "AAPL", since)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.RecentBuyOrderExists(1, "MSFT", since)
	require.NoError(t, err)
	assert.False(t, exists)

	// EXECUTED still counts as a live position inside the window.
	createOrder(t, repo, 1, "AAPL", SideBuy, StatusExecuted)

	exists, err = repo.RecentBuyOrderExists(1, "AAPL", since)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRecentBuyOrderExistsWindow(t *testing.T) {
	repo := newTestRepo(t)

	order := createOrder(t, repo, 1, "AAPL", SideBuy, StatusExecuted)
	require.NoError(t, repo.db.Model(&Order{}).
		Where("order_id = ?", order.OrderID).
		Update("created_at", time.Now().Add(-48*time.Hour)).Error)

	exists, err := repo.RecentBuyOrderExists(1, "AAPL", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUpdateOrderStatus(t *testing.T) {
	repo := newTestRepo(t)
	order := createOrder(t, repo, 1, "AAPL", SideBuy, StatusPending)

	require.NoError(t, repo.UpdateOrderStatus(order.OrderID, StatusExecuted, "BRK-1"))

	got, err := repo.GetOrder(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)
	assert.Equal(t, "BRK-1", got.BrokerOrderID)
	require.NotNil(t, got.ExecutedAt)

	// Non-executed transitions do not stamp an execution time.
	order2 := createOrder(t, repo, 1, "MSFT", SideBuy, StatusPending)
	require.NoError(t, repo.UpdateOrderStatus(order2.OrderID, StatusFailed, ""))
	got2, err := repo.GetOrder(order2.OrderID)
	require.NoError(t, err)
	assert.Nil(t, got2.ExecutedAt)

	// Unknown order is an error, not a silent no-op.
	assert.Error(t, repo.UpdateOrderStatus("missing", StatusExecuted, ""))
}

func TestPendingOrders(t *testing.T) {
	repo := newTestRepo(t)

	createOrder(t, repo, 1, "AAPL", SideBuy, StatusPending)
	createOrder(t, repo, 2, "MSFT", SideBuy, StatusPending)
	createOrder(t, repo, 1, "NVDA", SideBuy, StatusExecuted)

	orders, err := repo.PendingOrders()
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestSessionLifecycle(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.LatestActiveSession(1, AccountMock)
	assert.Error(t, err)

	require.NoError(t, repo.CreateSession(&BrokerSession{
		UserID:      1,
		AccountType: AccountMock,
		AccessToken: "tok-old",
		ExpiresAt:   time.Now().Add(time.Hour),
		Active:      true,
	}))
	require.NoError(t, repo.DeactivateSessions(1, AccountMock))
	require.NoError(t, repo.CreateSession(&BrokerSession{
		UserID:      1,
		AccountType: AccountMock,
		AccessToken: "tok-new",
		ExpiresAt:   time.Now().Add(time.Hour),
		Active:      true,
	}))

	session, err := repo.LatestActiveSession(1, AccountMock)
	require.NoError(t, err)
	assert.Equal(t, "tok-new", session.AccessToken)

	// A different account type sees nothing.
	_, err = repo.LatestActiveSession(1, AccountReal)
	assert.Error(t, err)
}

func TestActiveBrokerAccount(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.db.Create(&BrokerAccount{
		UserID: 1, AccountType: AccountMock, AccountNumber: "111", Active: false,
	}).Error)

	_, err := repo.ActiveBrokerAccount(1)
	assert.Error(t, err)

	require.NoError(t, repo.db.Create(&BrokerAccount{
		UserID: 1, AccountType: AccountReal, AccountNumber: "222", Active: true,
	}).Error)

	acct, err := repo.ActiveBrokerAccount(1)
	require.NoError(t, err)
	assert.Equal(t, "222", acct.AccountNumber)
}

func TestRunSummaries(t *testing.T) {
	repo := newTestRepo(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.SaveRunSummary(&RunSummary{
			RunDate:       time.Now().AddDate(0, 0, -i),
			OrdersCreated: i,
		}))
	}

	summaries, err := repo.RecentRunSummaries(2)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}
