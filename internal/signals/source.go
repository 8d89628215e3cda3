// Package signals exposes the day's ranked buy candidates. The rows are
// produced by the external analytics pipeline; this adapter is a pure read.
package signals

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/finvex/autotrader/internal/storage"
)

type Source struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewSource(db *gorm.DB, log zerolog.Logger) *Source {
	return &Source{
		db:  db,
		log: log.With().Str("component", "signals").Logger(),
	}
}

// ForDate returns the date's signals at or above the confidence floor, sorted
// by descending confidence. An empty result is a normal outcome, not an error.
func (s *Source) ForDate(date time.Time, floor float64) ([]storage.Signal, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var sigs []storage.Signal
	err := s.db.Where("date >= ? AND date < ? AND confidence >= ?", dayStart, dayEnd, floor).
		Order("confidence DESC").
		Find(&sigs).Error
	if err != nil {
		return nil, fmt.Errorf("load signals for %s: %w", dayStart.Format("2006-01-02"), err)
	}

	s.log.Debug().Str("date", dayStart.Format("2006-01-02")).
		Float64("floor", floor).Int("count", len(sigs)).
		Msg("signals loaded")
	return sigs, nil
}
