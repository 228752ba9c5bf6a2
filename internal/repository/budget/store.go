// Package budget persists provider token counters in the key-value side of the store.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tsubouchi/intelligence-agent-maker/internal/db"
	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	domusage "github.com/tsubouchi/intelligence-agent-maker/internal/domain/usage"
)

// Default counter lifetimes. They outlive their period so a report at the boundary still reads them.
const (
	DefaultDailyTTL   = 48 * time.Hour
	DefaultMonthlyTTL = 62 * 24 * time.Hour
)

// store is the consumer interface for budget operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store keeps one INCRBY counter per provider and period.
type Store struct {
	store      store
	dailyTTL   time.Duration
	monthlyTTL time.Duration
}

// New creates a budget store. Non-positive TTLs select the defaults.
func New(s store, dailyTTL, monthlyTTL time.Duration) *Store {
	if dailyTTL <= 0 {
		dailyTTL = DefaultDailyTTL
	}
	if monthlyTTL <= 0 {
		monthlyTTL = DefaultMonthlyTTL
	}
	return &Store{store: s, dailyTTL: dailyTTL, monthlyTTL: monthlyTTL}
}

// Add increments the counter at key and starts its expiry on first write.
func (s *Store) Add(ctx context.Context, key string, period domusage.Period, tokens int64) error {
	if err := s.store.IncrBy(ctx, key, tokens); err != nil {
		return fmt.Errorf("budget add %s: %w: %w", key, domain.ErrStore, err)
	}
	// NX keeps the first expiry, so repeated writes never extend a period.
	if err := s.store.Expire(ctx, key, s.ttl(period), true); err != nil {
		return fmt.Errorf("budget expire %s: %w: %w", key, domain.ErrStore, err)
	}
	return nil
}

// Load returns the counter at key, 0 when it does not exist.
func (s *Store) Load(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget load %s: %w: %w", key, domain.ErrStore, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget load %s: parse %q: %w", key, data, err)
	}
	return val, nil
}

func (s *Store) ttl(period domusage.Period) time.Duration {
	if period == domusage.PeriodDay {
		return s.dailyTTL
	}
	return s.monthlyTTL
}
