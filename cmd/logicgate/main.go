package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/logicgate/internal/telemetry"
)

// version is set by goreleaser at build time.
var version = "dev"

// errBlocking is returned by audit when critical or high findings exist.
var errBlocking = errors.New("blocking findings")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the persistent flags and the process-wide state they set up.
type app struct {
	projectRoot string
	configDir   string
	workers     int
	verbose     bool
	trace       bool

	logger   *slog.Logger
	shutdown telemetry.ShutdownFunc
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "logicgate",
		Short: "Slice Express-style JavaScript and TypeScript projects by HTTP route",
		Long: `logicgate extracts HTTP routes, functions, calls and imports from a
JavaScript or TypeScript project with tree-sitter, builds a call graph and
returns, per route, the functions its handler can reach.

Examples:
  logicgate routes --project-root ./api
  logicgate slice get /users/:id --depth 3
  logicgate diagram > graph.mmd
  logicgate serve-mcp`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.shutdown != nil {
				return a.shutdown(cmd.Context())
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.projectRoot, "project-root", ".", "path to the project to analyse")
	pf.StringVar(&a.configDir, "config", "", "directory holding logicgate.yml (default: the project root)")
	pf.IntVar(&a.workers, "workers", 0, "concurrent parses (default: config value or GOMAXPROCS)")
	pf.BoolVar(&a.verbose, "verbose", false, "enable debug logging")
	pf.BoolVar(&a.trace, "trace", false, "write OpenTelemetry spans to stderr")

	root.AddCommand(
		newInitCmd(a),
		newScanCmd(a),
		newRoutesCmd(a),
		newSliceCmd(a),
		newDiagramCmd(a),
		newExportCmd(a),
		newLookupCmd(a),
		newServeCmd(a),
		newWatchCmd(a),
		newAuditCmd(a),
	)
	return root
}

// setup builds the logger and, with --trace, the tracer provider.
func (a *app) setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if a.trace {
		shutdown, err := telemetry.SetupTracing(telemetry.Config{
			ServiceName:    "logicgate",
			ServiceVersion: version,
			Writer:         cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		a.shutdown = shutdown
	}
	return nil
}
