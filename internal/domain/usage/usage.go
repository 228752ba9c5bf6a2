// Package usage holds provider token budget reports.
package usage

import (
	"fmt"
	"time"
)

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a raw period; empty selects the month.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodMonth:
		return PeriodMonth, nil
	case PeriodDay:
		return PeriodDay, nil
	default:
		return "", fmt.Errorf("period must be %q or %q, got %q", PeriodDay, PeriodMonth, s)
	}
}

// Bounds returns the UTC start and end of the period containing now.
func (p Period) Bounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	if p == PeriodDay {
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	}
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Budget is the token budget state of one provider. A zero limit means unlimited.
type Budget struct {
	limit     int64
	used      int64
	remaining int64
}

// NewBudget derives the remaining tokens from limit and used.
func NewBudget(limit, used int64) Budget {
	b := Budget{limit: limit, used: used, remaining: -1}
	if limit > 0 {
		b.remaining = max(limit-used, 0)
	}
	return b
}

// Limit returns the token cap (0 when unlimited).
func (b Budget) Limit() int64 { return b.limit }

// Used returns the consumed tokens.
func (b Budget) Used() int64 { return b.used }

// Remaining returns tokens left, or -1 when unlimited.
func (b Budget) Remaining() int64 { return b.remaining }

// Exhausted reports whether a limited budget has no tokens left.
func (b Budget) Exhausted() bool { return b.limit > 0 && b.remaining == 0 }

// Report is the budget of one provider over one period.
type Report struct {
	provider string
	period   Period
	start    time.Time
	end      time.Time
	budget   Budget
}

// NewReport creates a usage report.
func NewReport(provider string, period Period, start, end time.Time, b Budget) Report {
	return Report{provider: provider, period: period, start: start, end: end, budget: b}
}

// Provider returns the provider name ("embedding", "generation").
func (r *Report) Provider() string { return r.provider }

// Period returns the aggregation granularity.
func (r *Report) Period() Period { return r.period }

// Start returns the period start.
func (r *Report) Start() time.Time { return r.start }

// End returns the period end, which is also when the budget resets.
func (r *Report) End() time.Time { return r.end }

// Budget returns the budget state.
func (r *Report) Budget() Budget { return r.budget }
