package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dusk-indust/logicgate/internal/graph"
)

var (
	// filesProcessed counts discovered files by outcome.
	// Labels: status (parsed, cached, skipped)
	filesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logicgate",
		Subsystem: "scan",
		Name:      "files_total",
		Help:      "Source files processed by outcome",
	}, []string{"status"})

	// recordsExtracted counts records produced by the symbol extractor.
	// Labels: kind (route, function, call, import)
	recordsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logicgate",
		Subsystem: "scan",
		Name:      "records_total",
		Help:      "Records extracted from source files",
	}, []string{"kind"})

	// callResolution counts call sites by resolution outcome.
	// Labels: outcome (resolved, unresolved, module_scope)
	callResolution = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logicgate",
		Subsystem: "graph",
		Name:      "call_sites_total",
		Help:      "Call sites by resolution outcome",
	}, []string{"outcome"})

	// scanDuration measures whole-project scan latency.
	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "logicgate",
		Subsystem: "scan",
		Name:      "duration_seconds",
		Help:      "Whole-project scan duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)

// recordMetrics publishes the counters of one completed run.
func recordMetrics(res *Result) {
	d := res.Diagnostics
	filesProcessed.WithLabelValues("parsed").Add(float64(d.Parsed))
	filesProcessed.WithLabelValues("cached").Add(float64(d.CacheHits))
	filesProcessed.WithLabelValues("skipped").Add(float64(len(d.Skipped)))

	for _, rec := range res.Records {
		recordsExtracted.WithLabelValues("route").Add(float64(len(rec.Routes)))
		recordsExtracted.WithLabelValues("function").Add(float64(len(rec.Functions)))
		recordsExtracted.WithLabelValues("call").Add(float64(len(rec.Calls)))
		recordsExtracted.WithLabelValues("import").Add(float64(len(rec.Imports)))
	}

	var b graph.BuildStats
	if res.Graph != nil {
		b = res.Graph.Stats().Build
	}
	callResolution.WithLabelValues("resolved").Add(float64(b.Resolved))
	callResolution.WithLabelValues("unresolved").Add(float64(b.Unresolved))
	callResolution.WithLabelValues("module_scope").Add(float64(b.ModuleScope))

	scanDuration.Observe(res.Duration.Seconds())
}
