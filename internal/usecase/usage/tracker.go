// Package usage enforces provider token budgets and reports consumption.
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tsubouchi/intelligence-agent-maker/internal/domain"
	domusage "github.com/tsubouchi/intelligence-agent-maker/internal/domain/usage"
	"github.com/tsubouchi/intelligence-agent-maker/internal/metrics"
)

// Action defines behavior when a token budget is exhausted.
type Action string

const (
	// ActionWarn logs a warning but allows the request.
	ActionWarn Action = "warn"
	// ActionReject fails the request with domain.ErrRateLimited.
	ActionReject Action = "reject"
)

// persistTimeout bounds a counter update. It runs after the in-memory add on a
// context detached from the caller's cancellation.
const persistTimeout = 2 * time.Second

// Limits caps the tokens a provider may consume. Zero means unlimited.
type Limits struct {
	Daily   int64
	Monthly int64
	Action  Action
}

// Tracker is an in-memory token budget of one provider with optional persistence.
// Check never touches the store; Record updates memory first, then the store.
type Tracker struct {
	mu       sync.Mutex
	provider string
	prefix   string
	limits   Limits
	daily    int64
	monthly  int64
	day      time.Time
	month    time.Time
	store    Store
	logger   *zap.Logger
	now      func() time.Time
}

// NewTracker creates a tracker for provider. keyPrefix namespaces the persisted counters.
func NewTracker(provider, keyPrefix string, limits Limits, logger *zap.Logger) *Tracker {
	t := &Tracker{
		provider: provider,
		prefix:   keyPrefix,
		limits:   limits,
		logger:   logger,
		now:      time.Now,
	}
	t.day, t.month = t.periodStarts(t.now())
	return t
}

// WithStore attaches a persistence store and loads the current counters.
// Load failures are logged and the tracker starts from zero.
func (t *Tracker) WithStore(ctx context.Context, s Store) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store = s
	now := t.now().UTC()
	if val, err := s.Load(ctx, t.key(domusage.PeriodDay, now)); err == nil {
		t.daily = val
	} else {
		t.logger.Warn("Failed to load daily token budget", zap.String("provider", t.provider), zap.Error(err))
	}
	if val, err := s.Load(ctx, t.key(domusage.PeriodMonth, now)); err == nil {
		t.monthly = val
	} else {
		t.logger.Warn("Failed to load monthly token budget", zap.String("provider", t.provider), zap.Error(err))
	}

	t.logger.Info("Token budget loaded",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.daily),
		zap.Int64("monthly_used", t.monthly),
	)
	return t
}

// Provider returns the tracked provider name.
func (t *Tracker) Provider() string { return t.provider }

// Check verifies the budget allows a new provider call.
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	day := domusage.NewBudget(t.limits.Daily, t.daily)
	month := domusage.NewBudget(t.limits.Monthly, t.monthly)
	if !day.Exhausted() && !month.Exhausted() {
		return nil
	}

	if t.limits.Action == ActionReject {
		return fmt.Errorf("%s token budget exhausted: %w", t.provider, domain.ErrRateLimited)
	}
	t.logger.Warn("Token budget exceeded",
		zap.String("provider", t.provider),
		zap.Int64("daily_used", t.daily),
		zap.Int64("daily_limit", t.limits.Daily),
		zap.Int64("monthly_used", t.monthly),
		zap.Int64("monthly_limit", t.limits.Monthly),
	)
	return nil
}

// Record adds consumed tokens, then persists them synchronously.
// Persistence failures are logged, never returned.
func (t *Tracker) Record(ctx context.Context, tokens int64) {
	if tokens <= 0 {
		return
	}

	t.mu.Lock()
	t.rollover()
	t.daily += tokens
	t.monthly += tokens
	now := t.now().UTC()
	s := t.store
	day := domusage.NewBudget(t.limits.Daily, t.daily)
	month := domusage.NewBudget(t.limits.Monthly, t.monthly)
	t.mu.Unlock()

	metrics.BudgetRemainingTokens.WithLabelValues(t.provider, string(domusage.PeriodDay)).Set(float64(day.Remaining()))
	metrics.BudgetRemainingTokens.WithLabelValues(t.provider, string(domusage.PeriodMonth)).Set(float64(month.Remaining()))

	if s == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	for _, p := range []domusage.Period{domusage.PeriodDay, domusage.PeriodMonth} {
		key := t.key(p, now)
		if err := s.Add(ctx, key, p, tokens); err != nil {
			t.logger.Warn("Failed to persist token budget", zap.String("key", key), zap.Error(err))
		}
	}
}

// Budget returns the budget state for period.
func (t *Tracker) Budget(period domusage.Period) domusage.Budget {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	if period == domusage.PeriodDay {
		return domusage.NewBudget(t.limits.Daily, t.daily)
	}
	return domusage.NewBudget(t.limits.Monthly, t.monthly)
}

// rollover zeroes counters when the day or month changes. Caller holds mu.
func (t *Tracker) rollover() {
	day, month := t.periodStarts(t.now())
	if day.After(t.day) {
		t.daily = 0
		t.day = day
	}
	if month.After(t.month) {
		t.monthly = 0
		t.month = month
	}
}

func (t *Tracker) periodStarts(now time.Time) (time.Time, time.Time) {
	day, _ := domusage.PeriodDay.Bounds(now)
	month, _ := domusage.PeriodMonth.Bounds(now)
	return day, month
}

func (t *Tracker) key(period domusage.Period, now time.Time) string {
	if period == domusage.PeriodDay {
		return fmt.Sprintf("%sbudget:%s:daily:%s", t.prefix, t.provider, now.Format(time.DateOnly))
	}
	return fmt.Sprintf("%sbudget:%s:monthly:%s", t.prefix, t.provider, now.Format("2006-01"))
}
