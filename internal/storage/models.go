package storage

import "time"

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusExecuted  OrderStatus = "EXECUTED"
	StatusFailed    OrderStatus = "FAILED"
	StatusCancelled OrderStatus = "CANCELLED"
)

type Decision string

const (
	DecisionExecuted Decision = "EXECUTED"
	DecisionSkipped  Decision = "SKIPPED"
	DecisionFailed   Decision = "FAILED"
)

type AccountType string

const (
	AccountMock AccountType = "MOCK"
	AccountReal AccountType = "REAL"
)

type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // external identifier
	Name   string `json:"name"`
}

type TradingConfig struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID             uint    `gorm:"uniqueIndex;not null" json:"user_id"`
	Enabled            bool    `json:"enabled"`
	AutoTradingEnabled bool    `json:"auto_trading_enabled"`
	MaxStocksToBuy     int     `json:"max_stocks_to_buy"`
	MaxAmountPerStock  float64 `json:"max_amount_per_stock"`
	MinConfidence      float64 `json:"min_confidence"` // 0..1
	StopLossPct        float64 `json:"stop_loss_pct"`
	TakeProfitPct      float64 `json:"take_profit_pct"`
}

// AccountBalance is the authoritative cash row for a user. It is mutated only
// through the ledger's conditional updates; availableCash = cash - lockedCash.
type AccountBalance struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID     uint    `gorm:"uniqueIndex;not null" json:"user_id"`
	Cash       float64 `gorm:"not null" json:"cash"`
	LockedCash float64 `gorm:"not null;default:0" json:"locked_cash"`
	TotalValue float64 `json:"total_value"`
	Version    int64   `json:"version"`
}

func (b *AccountBalance) AvailableCash() float64 {
	return b.Cash - b.LockedCash
}

type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderID     string      `gorm:"uniqueIndex;not null" json:"order_id"` // client order id
	UserID      uint        `gorm:"index;not null" json:"user_id"`
	Symbol      string      `gorm:"index;not null" json:"symbol"`
	Side        OrderSide   `gorm:"not null" json:"side"`
	Quantity    int64       `gorm:"not null" json:"quantity"`
	Price       float64     `gorm:"not null" json:"price"`
	TotalAmount float64     `gorm:"not null" json:"total_amount"`
	Status      OrderStatus `gorm:"index;not null;default:'PENDING'" json:"status"`

	BrokerOrderID string     `json:"broker_order_id"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty"`
}

// Signal is a buy candidate produced by the external analytics process.
// Rows are written by that process and only ever read here.
type Signal struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	SignalID               string    `gorm:"uniqueIndex;not null" json:"signal_id"`
	Symbol                 string    `gorm:"index;not null" json:"symbol"`
	PredictedPrice         float64   `json:"predicted_price"`
	Confidence             float64   `json:"confidence"` // 0..1
	PredictedChangePercent float64   `json:"predicted_change_percent"`
	Date                   time.Time `gorm:"index" json:"date"`
}

// SignalExecution is the append-only audit record for one (user, signal) decision.
type SignalExecution struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID     uint     `gorm:"index:idx_signal_exec_user_signal" json:"user_id"`
	SignalID   string   `gorm:"index:idx_signal_exec_user_signal" json:"signal_id"`
	Symbol     string   `gorm:"index" json:"symbol"`
	Confidence float64  `json:"confidence"`
	Decision   Decision `gorm:"not null" json:"decision"`
	SkipReason string   `json:"skip_reason,omitempty"`
	OrderID    string   `json:"order_id,omitempty"` // linked client order id
}

// BrokerAccount holds per-user brokerage credentials. The app secret is stored
// encrypted and decrypted only at the moment of use.
type BrokerAccount struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID             uint        `gorm:"index" json:"user_id"`
	AccountType        AccountType `gorm:"not null" json:"account_type"`
	AccountNumber      string      `gorm:"not null" json:"account_number"`
	ProductCode        string      `gorm:"default:'01'" json:"product_code"`
	AppKey             string      `json:"-"`
	AppSecretEncrypted string      `json:"-"`
	Active             bool        `gorm:"index" json:"active"`
}

// BrokerSession is the durable tier of the broker token cache. Entries are
// replaced wholesale on refresh and never read past expiry.
type BrokerSession struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID      uint        `gorm:"index:idx_sessions_user_type" json:"user_id"`
	AccountType AccountType `gorm:"index:idx_sessions_user_type" json:"account_type"`
	AccessToken string      `gorm:"type:text" json:"-"`
	ExpiresAt   time.Time   `json:"expires_at"`
	Active      bool        `json:"active"`
}

type RunSummary struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RunDate        time.Time `gorm:"index" json:"run_date"`
	UsersProcessed int       `json:"users_processed"`
	OrdersCreated  int       `json:"orders_created"`
	OrdersSkipped  int       `json:"orders_skipped"`
	OrdersFailed   int       `json:"orders_failed"`
	Error          string    `json:"error,omitempty"`
}
