package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests            *prometheus.CounterVec
	CounterGoalsNormalized     prometheus.Counter
	CounterGoalsDegraded       prometheus.Counter
	CounterPlansGenerated      prometheus.Counter
	CounterPlanRepairs         prometheus.Counter
	CounterPlanFailures        prometheus.Counter
	CounterCalendarEvents      prometheus.Counter
	CounterTokenRefreshes      prometheus.Counter
	CounterHandleRequestPanic  prometheus.Counter
	CounterRateLimitedRequests prometheus.Counter

	// gauges
	GaugeRequests   prometheus.Gauge
	GaugeLifeSignal prometheus.Gauge

	// histograms
	HistPlanGenerationDuration prometheus.Histogram
	HistogramRequestDuration   *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("backend", "test_server", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("backend", "test_server", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterGoalsNormalized := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "goals_normalized",
		Help:      "The total number of goal normalization requests served",
	})
	counterGoalsDegraded := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "goals_normalized_degraded",
		Help:      "Goal normalizations that fell back to the default goal",
	})
	counterPlansGenerated := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "plans_generated",
		Help:      "The total number of successfully generated plans",
	})
	counterPlanRepairs := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "plan_json_repairs",
		Help:      "Plan responses that needed JSON repair before parsing",
	})
	counterPlanFailures := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "plan_generation_failures",
		Help:      "Plan generations that failed after all repair attempts",
	})
	counterCalendarEvents := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "calendar_events",
		Help:      "The total number of calendar events created",
	})
	counterTokenRefreshes := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "calendar_token_refreshes",
		Help:      "The total number of calendar access token refreshes",
	})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})
	counterRateLimitedRequests := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rate_limited_requests",
		Help:      "The total number of rate limited requests",
	})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})
	gaugeLifeSignal := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "life_signal",
		Help:      "Shows whether the service is alive",
	})

	histPlanGenerationDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			Name:      "plan_generation_duration_seconds",
			Help:      "Total duration of a single plan generation in seconds",
		},
	)
	histogramRequestDuration := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets:   prometheus.DefBuckets,
			Name:      "request_duration_seconds",
			Help:      "Duration of handled HTTP requests in seconds",
		},
		[]string{"method"},
	)

	return &Manager{
		CounterRequests:            counterRequests,
		CounterGoalsNormalized:     counterGoalsNormalized,
		CounterGoalsDegraded:       counterGoalsDegraded,
		CounterPlansGenerated:      counterPlansGenerated,
		CounterPlanRepairs:         counterPlanRepairs,
		CounterPlanFailures:        counterPlanFailures,
		CounterCalendarEvents:      counterCalendarEvents,
		CounterTokenRefreshes:      counterTokenRefreshes,
		CounterHandleRequestPanic:  counterHandleRequestPanic,
		CounterRateLimitedRequests: counterRateLimitedRequests,
		GaugeRequests:              gaugeRequests,
		GaugeLifeSignal:            gaugeLifeSignal,
		HistPlanGenerationDuration: histPlanGenerationDuration,
		HistogramRequestDuration:   histogramRequestDuration,
	}
}
