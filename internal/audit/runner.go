package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/logicgate/internal/graph"
)

var tracer = otel.Tracer("github.com/dusk-indust/logicgate/internal/audit")

// Oracle judges one route. Implementations must be safe for concurrent use.
type Oracle interface {
	Audit(ctx context.Context, req AuditRequest) (*AuditResult, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, req AuditRequest) (*AuditResult, error)

// Audit calls f.
func (f OracleFunc) Audit(ctx context.Context, req AuditRequest) (*AuditResult, error) {
	return f(ctx, req)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Depth is the slice depth handed to the oracle. Zero sends the
	// handler only; a negative depth makes Run fail with
	// graph.ErrInvalidDepth.
	Depth int

	// Concurrency bounds in-flight oracle calls. Default: 4.
	Concurrency int

	// Timeout bounds each oracle call. Default: 2m.
	Timeout time.Duration

	Logger *slog.Logger
}

// RouteAudit is the oracle's answer for one route.
type RouteAudit struct {
	Route  graph.RouteInfo `json:"route"`
	Result *AuditResult    `json:"result"`
}

// SkippedRoute is a route the oracle gave no usable answer for.
type SkippedRoute struct {
	Route  string `json:"route"`
	Reason string `json:"reason"`
}

// Report is the outcome of auditing a set of routes, in route order.
type Report struct {
	Audits  []RouteAudit   `json:"audits"`
	Skipped []SkippedRoute `json:"skipped"`
}

// Counts tallies findings per severity. Every severity has an entry.
func (r *Report) Counts() map[Severity]int {
	counts := make(map[Severity]int, len(Severities))
	for _, s := range Severities {
		counts[s] = 0
	}
	for _, a := range r.Audits {
		for _, f := range a.Result.Findings {
			counts[f.Severity]++
		}
	}
	return counts
}

// Blocking returns the number of critical and high findings.
func (r *Report) Blocking() int {
	n := 0
	for _, a := range r.Audits {
		for _, f := range a.Result.Findings {
			if f.Severity.Blocking() {
				n++
			}
		}
	}
	return n
}

// Runner audits routes of a call graph with an Oracle.
type Runner struct {
	oracle Oracle
	src    *SourceReader
	cfg    RunnerConfig
	logger *slog.Logger
}

// NewRunner creates a Runner that reads function source from under root.
func NewRunner(oracle Oracle, root string, cfg RunnerConfig) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{oracle: oracle, src: NewSourceReader(root), cfg: cfg, logger: logger}
}

type auditSlot struct {
	audit *RouteAudit
	skip  *SkippedRoute
}

// Run audits every route of g. An oracle error, timeout or invalid answer
// skips that route only. Run returns ctx.Err() if cancelled.
func (r *Runner) Run(ctx context.Context, g *graph.CallGraph) (*Report, error) {
	ctx, span := tracer.Start(ctx, "audit.Runner.Run")
	defer span.End()

	if r.cfg.Depth < 0 {
		return nil, fmt.Errorf("audit depth %d: %w", r.cfg.Depth, graph.ErrInvalidDepth)
	}

	routes := g.Routes()
	slots := make([]auditSlot, len(routes))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Concurrency)
	for i, route := range routes {
		if egctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			slots[i] = r.auditRoute(egctx, g, route)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{}
	for _, s := range slots {
		switch {
		case s.skip != nil:
			report.Skipped = append(report.Skipped, *s.skip)
		case s.audit != nil:
			report.Audits = append(report.Audits, *s.audit)
		}
	}

	span.SetAttributes(
		attribute.Int("routes", len(routes)),
		attribute.Int("routes.skipped", len(report.Skipped)),
	)
	r.logger.Info("audit complete",
		"routes", len(routes),
		"audited", len(report.Audits),
		"skipped", len(report.Skipped),
		"blocking", report.Blocking(),
	)
	return report, nil
}

func (r *Runner) auditRoute(ctx context.Context, g *graph.CallGraph, route graph.RouteInfo) auditSlot {
	label := RouteLabel(route)
	skip := func(reason string, outcome string) auditSlot {
		oracleCalls.WithLabelValues(outcome).Inc()
		r.logger.Warn("route skipped", "route", label, "reason", reason)
		return auditSlot{skip: &SkippedRoute{Route: label, Reason: reason}}
	}

	s, err := g.Slice(route.Key(), r.cfg.Depth)
	if err != nil {
		return skip(err.Error(), "error")
	}
	req := NewRequest(r.src, s)

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res, err := r.oracle.Audit(callCtx, req)
	oracleDuration.Observe(time.Since(start).Seconds())
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return skip(fmt.Sprintf("oracle timed out after %s", r.cfg.Timeout), "timeout")
	case err != nil:
		return skip(err.Error(), "error")
	case res == nil:
		return skip("oracle returned no result", "invalid")
	}
	if err := res.Validate(); err != nil {
		return skip(err.Error(), "invalid")
	}
	if res.Route == "" {
		res.Route = label
	}

	oracleCalls.WithLabelValues("ok").Inc()
	for _, f := range res.Findings {
		findingsTotal.WithLabelValues(string(f.Severity)).Inc()
		r.logger.Debug("finding",
			"route", label,
			"severity", f.Severity,
			"category", f.Category,
			"title", f.Title,
		)
	}
	return auditSlot{audit: &RouteAudit{Route: route, Result: res}}
}
