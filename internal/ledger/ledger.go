// Package ledger is the single writer of cash and lockedCash. Every mutation
// is a single conditional UPDATE enforced at the storage layer, so concurrent
// runs (or process instances) can never both spend the same availability.
package ledger

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/finvex/autotrader/internal/storage"
)

type Ledger struct {
	db  *gorm.DB
	log zerolog.Logger
}

func New(db *gorm.DB, log zerolog.Logger) *Ledger {
	return &Ledger{
		db:  db,
		log: log.With().Str("component", "ledger").Logger(),
	}
}

// InitializeBalance creates the user's balance row with seed cash. Called once
// at onboarding; the row then lives for the account's lifetime.
func (l *Ledger) InitializeBalance(userID uint, seedCash float64) (*storage.AccountBalance, error) {
	balance := &storage.AccountBalance{
		UserID:     userID,
		Cash:       seedCash,
		TotalValue: seedCash,
		LockedCash: 0,
	}
	if err := l.db.Create(balance).Error; err != nil {
		return nil, fmt.Errorf("initialize balance for user %d: %w", userID, err)
	}
	l.log.Info().Uint("user_id", userID).Float64("cash", seedCash).Msg("balance initialized")
	return balance, nil
}

// Reserve places a hold of amount against the user's available cash. It
// succeeds only when cash - lockedCash >= amount, checked and applied in one
// statement; losing a race with another reservation returns false.
func (l *Ledger) Reserve(userID uint, amount float64) (bool, error) {
	if amount <= 0 {
		l.log.Warn().Uint("user_id", userID).Float64("amount", amount).Msg("invalid amount for reserve")
		return false, nil
	}
	res := l.db.Model(&storage.AccountBalance{}).
		Where("user_id = ? AND cash - locked_cash >= ?", userID, amount).
		Updates(map[string]interface{}{
			"locked_cash": gorm.Expr("locked_cash + ?", amount),
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("reserve cash for user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		l.log.Warn().Uint("user_id", userID).Float64("amount", amount).Msg("reserve failed, insufficient available cash")
		return false, nil
	}
	l.log.Info().Uint("user_id", userID).Float64("amount", amount).Msg("cash reserved")
	return true, nil
}

// Release returns a reservation to availability, guarded by lockedCash >= amount.
func (l *Ledger) Release(userID uint, amount float64) (bool, error) {
	if amount <= 0 {
		l.log.Warn().Uint("user_id", userID).Float64("amount", amount).Msg("invalid amount for release")
		return false, nil
	}
	res := l.db.Model(&storage.AccountBalance{}).
		Where("user_id = ? AND locked_cash >= ?", userID, amount).
		Updates(map[string]interface{}{
			"locked_cash": gorm.Expr("locked_cash - ?", amount),
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("release cash for user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		l.log.Warn().Uint("user_id", userID).Float64("amount", amount).Msg("release failed, locked cash below amount")
		return false, nil
	}
	l.log.Info().Uint("user_id", userID).Float64("amount", amount).Msg("cash released")
	return true, nil
}

// Settle converts a reservation into a realized cash movement on confirmed
// execution. A buy consumes the hold and the cash behind it; a sell credits
// the proceeds.
func (l *Ledger) Settle(userID uint, amount float64, isBuy bool) (bool, error) {
	if amount <= 0 {
		l.log.Warn().Uint("user_id", userID).Float64("amount", amount).Msg("invalid amount for settle")
		return false, nil
	}

	var res *gorm.DB
	if isBuy {
		res = l.db.Model(&storage.AccountBalance{}).
			Where("user_id = ? AND locked_cash >= ?", userID, amount).
			Updates(map[string]interface{}{
				"cash":        gorm.Expr("cash - ?", amount),
				"locked_cash": gorm.Expr("locked_cash - ?", amount),
				"total_value": gorm.Expr("cash - ?", amount),
				"version":     gorm.Expr("version + 1"),
			})
	} else {
		res = l.db.Model(&storage.AccountBalance{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"cash":        gorm.Expr("cash + ?", amount),
				"total_value": gorm.Expr("cash + ?", amount),
				"version":     gorm.Expr("version + 1"),
			})
	}
	if res.Error != nil {
		return false, fmt.Errorf("settle trade for user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		l.log.Warn().Uint("user_id", userID).Float64("amount", amount).Bool("is_buy", isBuy).
			Msg("settle failed, insufficient locked cash")
		return false, nil
	}
	l.log.Info().Uint("user_id", userID).Float64("amount", amount).Bool("is_buy", isBuy).Msg("trade settled")
	return true, nil
}

// AvailableCash reads cash - lockedCash at call time. Advisory only: the value
// may be stale as soon as any concurrent mutation lands.
func (l *Ledger) AvailableCash(userID uint) (float64, error) {
	// No balance row scans as zero, which reads as "nothing to spend".
	var available float64
	err := l.db.Model(&storage.AccountBalance{}).
		Select("COALESCE(cash - locked_cash, 0)").
		Where("user_id = ?", userID).
		Scan(&available).Error
	if err != nil {
		return 0, fmt.Errorf("get available cash for user %d: %w", userID, err)
	}
	return available, nil
}

func (l *Ledger) Balance(userID uint) (*storage.AccountBalance, error) {
	var balance storage.AccountBalance
	if err := l.db.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

// AddCash credits a deposit.
func (l *Ledger) AddCash(userID uint, amount float64) (bool, error) {
	if amount <= 0 {
		l.log.Warn().Uint("user_id", userID).Float64("amount", amount).Msg("invalid amount for deposit")
		return false, nil
	}
	res := l.db.Model(&storage.AccountBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"cash":        gorm.Expr("cash + ?", amount),
			"total_value": gorm.Expr("cash + ?", amount),
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("add cash for user %d: %w", userID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// TotalCashInSystem sums cash across all users, for the admin surface.
func (l *Ledger) TotalCashInSystem() (float64, error) {
	var total float64
	err := l.db.Model(&storage.AccountBalance{}).
		Select("COALESCE(SUM(cash), 0)").
		Scan(&total).Error
	return total, err
}
