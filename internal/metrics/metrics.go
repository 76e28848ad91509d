// Package metrics exposes prometheus collectors for sync passes and
// application lifecycle operations.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once   sync.Once
	passes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reposync",
			Subsystem: "scheduler",
			Name:      "passes_total",
			Help:      "Reconciliation passes by outcome (completed, aborted, stopped).",
		},
		[]string{"outcome"},
	)
	passDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reposync",
			Subsystem: "scheduler",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of one reconciliation pass.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
	repoActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reposync",
			Subsystem: "scheduler",
			Name:      "repository_actions_total",
			Help:      "Repository decisions by action (clone, pull, skip) and outcome.",
		},
		[]string{"action", "outcome"},
	)
	cloneQuota = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reposync",
			Subsystem: "scheduler",
			Name:      "clone_quota_remaining",
			Help:      "Clones still allowed in the current pass.",
		},
	)
	appOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reposync",
			Subsystem: "supervisor",
			Name:      "operations_total",
			Help:      "Application lifecycle operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

func init() {
	once.Do(func() {
		prometheus.MustRegister(passes, passDuration, repoActions, cloneQuota, appOps)
	})
}

// ObservePass records the end of a pass.
func ObservePass(outcome string, d time.Duration) {
	passes.WithLabelValues(outcome).Inc()
	passDuration.Observe(d.Seconds())
}

// IncAction counts one repository decision.
func IncAction(action, outcome string) { repoActions.WithLabelValues(action, outcome).Inc() }

func SetCloneQuota(n int) { cloneQuota.Set(float64(n)) }

// IncAppOperation counts one supervisor operation.
func IncAppOperation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	appOps.WithLabelValues(op, outcome).Inc()
}
