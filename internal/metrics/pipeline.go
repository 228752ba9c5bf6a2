package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search, extraction, generation pipeline and token budget metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by mode and outcome",
		},
		[]string{"mode", "outcome"}, // outcome: "ok" / "degraded" / "error"
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency by mode",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	SearchDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "search_degraded_total",
			Help:      "Hybrid searches answered by the fallback merge",
		},
	)

	SearchStrategyErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "search_strategy_errors_total",
			Help:      "Sub-strategy failures during hybrid degradation",
		},
		[]string{"strategy"},
	)

	ExtractionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "extraction_total",
			Help:      "Metadata extractions by outcome",
		},
		[]string{"outcome"}, // "extracted" / "fallback_provider" / "fallback_invalid"
	)

	GenerationPipelineTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "generation_total",
			Help:      "Generation pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	BudgetRemainingTokens = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "budget_remaining_tokens",
			Help:      "Tokens left in a provider budget (-1 when unlimited)",
		},
		[]string{"provider", "period"}, // period: "day" / "month"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers search and pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchDegradedTotal)
	prometheus.MustRegister(SearchStrategyErrorsTotal)
	prometheus.MustRegister(ExtractionTotal)
	prometheus.MustRegister(GenerationPipelineTotal)
	prometheus.MustRegister(BudgetRemainingTokens)
	pipelineMetricsRegistered = true
}
