package usage

import (
	"context"
	"time"

	domusage "github.com/tsubouchi/intelligence-agent-maker/internal/domain/usage"
)

// Service handles usage reporting.
type Service struct {
	readers []BudgetReader
	now     func() time.Time
}

// New creates a Service reporting on readers in the given order.
func New(readers ...BudgetReader) *Service {
	return &Service{readers: readers, now: time.Now}
}

// Report builds one report per provider for the period containing now.
func (s *Service) Report(_ context.Context, period domusage.Period) []domusage.Report {
	start, end := period.Bounds(s.now())
	out := make([]domusage.Report, 0, len(s.readers))
	for _, r := range s.readers {
		out = append(out, domusage.NewReport(r.Provider(), period, start, end, r.Budget(period)))
	}
	return out
}
