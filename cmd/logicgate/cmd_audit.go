package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/logicgate/internal/audit"
	"github.com/dusk-indust/logicgate/internal/export"
)

func newAuditCmd(a *app) *cobra.Command {
	var (
		endpoint    string
		depth       int
		concurrency int
		timeout     time.Duration
		jsonOut     bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Send every route slice to a remote audit agent and report its findings",
		Long: `Slice every route and send each slice, with the source of its functions, to an
A2A agent that reviews it for authorization flaws. Routes the agent fails on
are listed as skipped.

Exits with status 1 when any critical or high finding is reported.

Examples:
  logicgate audit --endpoint http://localhost:9000/a2a
  logicgate audit --depth 3 --json > report.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withProject(func(p *project) error {
				oc := p.cfg.Oracle
				if endpoint == "" {
					endpoint = oc.Endpoint
				}
				if endpoint == "" {
					return errors.New("audit needs an agent endpoint (--endpoint or oracle.endpoint in logicgate.yml)")
				}
				flags := cmd.Flags()
				if !flags.Changed("depth") {
					depth = p.cfg.Depth
				}
				if !flags.Changed("concurrency") {
					concurrency = oc.Concurrency
				}
				if !flags.Changed("timeout") {
					timeout = oc.Timeout
				}

				ctx := cmd.Context()
				res, err := p.scan(ctx, a)
				if err != nil {
					return err
				}

				runner := audit.NewRunner(audit.NewRemoteOracle(endpoint), p.root, audit.RunnerConfig{
					Depth:       depth,
					Concurrency: concurrency,
					Timeout:     timeout,
					Logger:      a.logger,
				})
				report, err := runner.Run(ctx, res.Graph)
				if err != nil {
					return err
				}

				if jsonOut {
					if err := export.WriteJSON(cmd.OutOrStdout(), report); err != nil {
						return err
					}
				} else {
					printReport(cmd.OutOrStdout(), report)
				}
				if n := report.Blocking(); n > 0 {
					return fmt.Errorf("%w: %d critical or high", errBlocking, n)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&endpoint, "endpoint", "", "A2A agent URL, overrides oracle.endpoint")
	f.IntVar(&depth, "depth", 5, "slice depth sent to the agent (default: config depth)")
	f.IntVar(&concurrency, "concurrency", 4, "routes audited at once (default: config value)")
	f.DurationVar(&timeout, "timeout", 2*time.Minute, "per-route agent timeout (default: config value)")
	f.BoolVar(&jsonOut, "json", false, "print the report as JSON")
	return cmd
}

func printReport(w io.Writer, r *audit.Report) {
	for _, ra := range r.Audits {
		if len(ra.Result.Findings) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s  (%s:%d)\n", audit.RouteLabel(ra.Route), ra.Route.File, ra.Route.Line)
		for _, f := range ra.Result.Findings {
			fmt.Fprintf(w, "  [%s] %s: %s\n", strings.ToUpper(string(f.Severity)), f.Category, f.Title)
			if f.File != "" {
				fmt.Fprintf(w, "    at %s:%d-%d (confidence %.2f)\n", f.File, f.StartLine, f.EndLine, f.Confidence)
			}
			if f.Recommendation != "" {
				fmt.Fprintf(w, "    fix: %s\n", f.Recommendation)
			}
		}
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintln(w, "Skipped:")
		for _, s := range r.Skipped {
			fmt.Fprintf(w, "  %s: %s\n", s.Route, s.Reason)
		}
	}

	counts := r.Counts()
	parts := make([]string, 0, len(audit.Severities))
	for _, s := range audit.Severities {
		parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
	}
	fmt.Fprintf(w, "\n%d routes audited, %d skipped: %s\n", len(r.Audits), len(r.Skipped), strings.Join(parts, ", "))
}
