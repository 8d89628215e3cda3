// Package audit keeps the append-only record of every signal decision. It
// backs the idempotency check for re-invoked runs and the operational review
// surface; no update or delete is exposed.
package audit

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/finvex/autotrader/internal/storage"
)

type Trail struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewTrail(db *gorm.DB, log zerolog.Logger) *Trail {
	return &Trail{
		db:  db,
		log: log.With().Str("component", "audit").Logger(),
	}
}

// Record appends one decision. Records are never mutated afterwards.
func (t *Trail) Record(rec *storage.SignalExecution) error {
	if err := t.db.Create(rec).Error; err != nil {
		return fmt.Errorf("record signal execution: %w", err)
	}
	return nil
}

// AlreadyDecided reports whether a decision for (user, signal) exists within
// the window, regardless of its outcome. Used to make re-invoked runs act only
// on signals not yet decided.
func (t *Trail) AlreadyDecided(userID uint, signalID string, since time.Time) (bool, error) {
	var count int64
	err := t.db.Model(&storage.SignalExecution{}).
		Where("user_id = ? AND signal_id = ? AND created_at >= ?", userID, signalID, since).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check decided signal: %w", err)
	}
	return count > 0, nil
}

// ForUserSymbol answers "what happened to symbol X for user Y".
func (t *Trail) ForUserSymbol(userID uint, symbol string, limit int) ([]storage.SignalExecution, error) {
	var recs []storage.SignalExecution
	err := t.db.Where("user_id = ? AND symbol = ?", userID, symbol).
		Order("created_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

func (t *Trail) RecentForUser(userID uint, limit int) ([]storage.SignalExecution, error) {
	var recs []storage.SignalExecution
	err := t.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

func (t *Trail) Recent(limit int) ([]storage.SignalExecution, error) {
	var recs []storage.SignalExecution
	err := t.db.Order("created_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}
