package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Users and configs

func (r *Repository) GetUser(id uint) (*User, error) {
	var user User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserByExternalID(userID string) (*User, error) {
	var user User
	if err := r.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ActiveTradingConfigs returns configs eligible for auto trading.
func (r *Repository) ActiveTradingConfigs() ([]TradingConfig, error) {
	var configs []TradingConfig
	err := r.db.Where("enabled = ? AND auto_trading_enabled = ?", true, true).
		Order("user_id ASC").Find(&configs).Error
	return configs, err
}

func (r *Repository) TradingConfigForUser(userID uint) (*TradingConfig, error) {
	var cfg TradingConfig
	if err := r.db.Where("user_id = ?", userID).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Orders

func (r *Repository) CreateOrder(order *Order) error {
	return r.db.Create(order).Error
}

func (r *Repository) GetOrder(orderID string) (*Order, error) {
	var order Order
	if err := r.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// RecentBuyOrderExists reports whether a live BUY order for the symbol was
// created within the dedup window. PENDING and EXECUTED both count: either one
// means the signal was already acted on.
func (r *Repository) RecentBuyOrderExists(userID uint, symbol string, since time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&Order{}).
		Where("user_id = ? AND symbol = ? AND side = ? AND status IN ? AND created_at >= ?",
			userID, symbol, SideBuy, []OrderStatus{StatusPending, StatusExecuted}, since).
		Count(&count).Error
	return count > 0, err
}

// UpdateOrderStatus resolves an order out of PENDING. ExecutedAt is stamped
// only on the EXECUTED transition.
func (r *Repository) UpdateOrderStatus(orderID string, status OrderStatus, brokerOrderID string) error {
	updates := map[string]interface{}{"status": status}
	if brokerOrderID != "" {
		updates["broker_order_id"] = brokerOrderID
	}
	if status == StatusExecuted {
		now := time.Now()
		updates["executed_at"] = &now
	}
	res := r.db.Model(&Order{}).Where("order_id = ?", orderID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("order not found: " + orderID)
	}
	return nil
}

func (r *Repository) PendingOrders() ([]Order, error) {
	var orders []Order
	err := r.db.Where("status = ?", StatusPending).Order("created_at ASC").Find(&orders).Error
	return orders, err
}

func (r *Repository) OrdersByStatus(status OrderStatus, limit int) ([]Order, error) {
	var orders []Order
	err := r.db.Where("status = ?", status).Order("created_at DESC").Limit(limit).Find(&orders).Error
	return orders, err
}

func (r *Repository) RecentOrders(limit int) ([]Order, error) {
	var orders []Order
	err := r.db.Order("created_at DESC").Limit(limit).Find(&orders).Error
	return orders, err
}

// Broker accounts and sessions

func (r *Repository) ActiveBrokerAccount(userID uint) (*BrokerAccount, error) {
	var acct BrokerAccount
	err := r.db.Where("user_id = ? AND active = ?", userID, true).
		Order("updated_at DESC").First(&acct).Error
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *Repository) LatestActiveSession(userID uint, accountType AccountType) (*BrokerSession, error) {
	var session BrokerSession
	err := r.db.Where("user_id = ? AND account_type = ? AND active = ?", userID, accountType, true).
		Order("created_at DESC").First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// DeactivateSessions invalidates all live sessions for the key before a
// replacement is stored, so a stale token can never be read back.
func (r *Repository) DeactivateSessions(userID uint, accountType AccountType) error {
	return r.db.Model(&BrokerSession{}).
		Where("user_id = ? AND account_type = ? AND active = ?", userID, accountType, true).
		Update("active", false).Error
}

func (r *Repository) CreateSession(session *BrokerSession) error {
	return r.db.Create(session).Error
}

// Run summaries

func (r *Repository) SaveRunSummary(summary *RunSummary) error {
	return r.db.Create(summary).Error
}

func (r *Repository) RecentRunSummaries(limit int) ([]RunSummary, error) {
	var summaries []RunSummary
	err := r.db.Order("created_at DESC").Limit(limit).Find(&summaries).Error
	return summaries, err
}
