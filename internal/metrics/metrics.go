package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "maria_aux"

type Metrics struct {
	RoutedRequests     *prometheus.CounterVec
	ProviderLatency    *prometheus.HistogramVec
	CreditsDeducted    prometheus.Counter
	DeductionAnomalies prometheus.Counter
	LogFailures        prometheus.Counter
	RateLimited        prometheus.Counter
	PromptCacheHits    prometheus.Counter
	PromptCacheMisses  prometheus.Counter
	AlertsPublished    prometheus.Counter
	AlertsSent         prometheus.Counter
	AlertsFailed       prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			RoutedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routed_requests_total",
				Help:      "AI requests by outcome (ok or error kind)",
			}, []string{"outcome"}),
			ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_seconds",
				Help:      "Latency of provider adapter calls",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			}, []string{"provider", "capability"}),
			CreditsDeducted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credits_deducted_total",
				Help:      "Credits consumed by successful requests",
			}),
			DeductionAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deduction_anomalies_total",
				Help:      "Successful provider calls whose credit deduction failed",
			}),
			LogFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interaction_log_failures_total",
				Help:      "Interaction log writes that failed",
			}),
			RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the per-user rate limit",
			}),
			PromptCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompt_cache_hits_total",
				Help:      "Template lookups served from redis",
			}),
			PromptCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompt_cache_misses_total",
				Help:      "Template lookups that fell through to the store",
			}),
			AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_published_total",
				Help:      "Operator alerts pushed to the alert stream",
			}),
			AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_sent_total",
				Help:      "Operator alerts delivered",
			}),
			AlertsFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_failed_total",
				Help:      "Operator alerts dropped after exhausting retries",
			}),
		}
		prometheus.MustRegister(
			global.RoutedRequests,
			global.ProviderLatency,
			global.CreditsDeducted,
			global.DeductionAnomalies,
			global.LogFailures,
			global.RateLimited,
			global.PromptCacheHits,
			global.PromptCacheMisses,
			global.AlertsPublished,
			global.AlertsSent,
			global.AlertsFailed,
		)
	})
	return global
}
