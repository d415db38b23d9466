// Package audit hands route slices to an external security oracle and
// collects the structured findings it returns. The engine never judges code
// itself: an Oracle does, and a Runner drives one call per route.
package audit

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dusk-indust/logicgate/internal/graph"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// Blocking reports whether findings of this severity fail a run.
func (s Severity) Blocking() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// Category is the class of authorization flaw a finding describes.
type Category string

const (
	CategoryIDOR               Category = "IDOR"
	CategoryBFLA               Category = "BFLA"
	CategoryStateManipulation  Category = "STATE_MANIPULATION"
	CategoryMultiTenantLeak    Category = "MULTI_TENANT_LEAK"
	CategoryImplicitPermission Category = "IMPLICIT_PERMISSION"
)

// ErrInvalidResult is returned when an oracle answer does not match the
// finding schema.
var ErrInvalidResult = errors.New("invalid audit result")

// Finding is one issue reported by the oracle.
type Finding struct {
	Category       Category `json:"vuln_type" validate:"required,oneof=IDOR BFLA STATE_MANIPULATION MULTI_TENANT_LEAK IMPLICIT_PERMISSION"`
	Severity       Severity `json:"severity" validate:"required,oneof=critical high medium low info"`
	Title          string   `json:"title" validate:"required"`
	Description    string   `json:"description"`
	AffectedRoute  string   `json:"affected_route"`
	File           string   `json:"file_path"`
	StartLine      int      `json:"start_line" validate:"gte=0"`
	EndLine        int      `json:"end_line" validate:"gte=0"`
	Recommendation string   `json:"recommendation,omitempty"`
	Confidence     float64  `json:"confidence" validate:"gte=0,lte=1"`
	Evidence       string   `json:"evidence,omitempty"`
}

// AuditResult is the oracle's answer for one route.
type AuditResult struct {
	Route     string    `json:"route"`
	Findings  []Finding `json:"findings" validate:"dive"`
	Reasoning string    `json:"reasoning"`
}

// SliceFunction is one sliced function with its source text.
type SliceFunction struct {
	graph.FunctionInfo
	Depth  int    `json:"depth"`
	Source string `json:"source"`
}

// AuditRequest is everything an oracle sees about one route.
type AuditRequest struct {
	Route graph.RouteInfo `json:"route"`
	// Label is "<method> <path>", the route name used in findings.
	Label     string          `json:"label"`
	Functions []SliceFunction `json:"functions"`
	Truncated bool            `json:"truncated"`
	// Context is the rendered source of every sliced function.
	Context string `json:"context"`
}

var validate = validator.New()

// Validate checks r against the finding schema.
func (r *AuditResult) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	return nil
}

// RouteLabel renders the route the way findings name it.
func RouteLabel(r graph.RouteInfo) string {
	return fmt.Sprintf("%s %s", r.Method, r.Path)
}
