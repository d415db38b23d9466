package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// oracleCalls counts oracle calls by outcome.
	// Labels: outcome (ok, error, timeout, invalid)
	oracleCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logicgate",
		Subsystem: "audit",
		Name:      "oracle_calls_total",
		Help:      "Oracle calls by outcome",
	}, []string{"outcome"})

	oracleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "logicgate",
		Subsystem: "audit",
		Name:      "oracle_duration_seconds",
		Help:      "Oracle call latency in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// findingsTotal counts accepted findings.
	// Labels: severity
	findingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logicgate",
		Subsystem: "audit",
		Name:      "findings_total",
		Help:      "Findings reported by the oracle",
	}, []string{"severity"})
)
