package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/eventidx/internal/chain"
	"github.com/roach88/eventidx/internal/config"
	"github.com/roach88/eventidx/internal/ingest"
	"github.com/roach88/eventidx/internal/metrics"
	"github.com/roach88/eventidx/internal/pipeline"
	"github.com/roach88/eventidx/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath  string
	Database    string
	Source      string
	Package     string
	Pipeline    string
	MetricsAddr string
	Follow      bool
}

// RunResult summarizes an indexing run.
type RunResult struct {
	RunID               string `json:"run_id"`
	Pipeline            string `json:"pipeline"`
	CheckpointHi        int64  `json:"checkpoint_hi_inclusive"`
	HasCommittedBatches bool   `json:"has_committed_batches"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Index checkpoints into the database",
		Long: `Index checkpoints from a directory of <sequence>.json files.

Indexing resumes after the pipeline's committed watermark. Without --follow
the command returns once no further consecutive checkpoint is available; with
--follow it keeps polling until interrupted.

Settings come from the config file, then DATABASE_URL, DATABASE_TLS_CA_CERT,
PACKAGE_ID and NETWORK, then flags.

Example:
  eventidx run --config ./eventidx.yaml
  eventidx run --db sqlite://./idx.db --source ./checkpoints --package 0xabc
  eventidx run --config ./eventidx.toml --follow --metrics-addr :9184`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexer(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML or TOML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "database URL (postgres:// or sqlite://)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "directory of checkpoint files")
	cmd.Flags().StringVar(&opts.Package, "package", "", "package id whose events are indexed")
	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline variant (events|agent)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	cmd.Flags().BoolVar(&opts.Follow, "follow", false, "keep polling for new checkpoints")

	return cmd
}

func (opts *RunOptions) apply(cfg *config.Config) {
	if opts.Database != "" {
		cfg.DatabaseURL = opts.Database
	}
	if opts.Source != "" {
		cfg.Source.Dir = opts.Source
	}
	if opts.Package != "" {
		cfg.PackageID = opts.Package
	}
	if opts.Pipeline != "" {
		cfg.Pipeline = opts.Pipeline
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
}

func runIndexer(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.ConfigPath, opts.apply)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	slog.SetDefault(logger)

	variant, err := pipeline.LookupVariant(cfg.Pipeline)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	src := ingest.NewDirSource(cfg.Source.Dir)
	if !src.Exists() {
		return NewExitError(ExitCommandError, fmt.Sprintf("checkpoint directory %s does not exist", cfg.Source.Dir))
	}

	caPath, err := cfg.WriteCACert()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to write CA certificate", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	st, err := store.Open(ctx, store.Options{URL: cfg.DatabaseURL, CACertPath: caPath})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	logger.Info("database ready", "dialect", st.Dialect())

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	metricsDone := make(chan struct{})
	if cfg.MetricsAddr != "" {
		go func() {
			defer close(metricsDone)
			if err := metrics.Serve(ctx, cfg.MetricsAddr, metrics.Handler(reg), logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	} else {
		close(metricsDone)
	}

	scanner := pipeline.NewScanner(chain.NewPackageFilter(cfg.ResolvedPackageID()), variant, logger)
	runner := ingest.NewRunner(st, scanner, src, cfg.Ingest, m, logger)

	runErr := runner.Run(ctx, opts.Follow)
	cancel()
	<-metricsDone

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		if pipeline.IsDecodeError(runErr) {
			return WrapExitError(ExitFailure, "indexing aborted on undecodable event", runErr)
		}
		return WrapExitError(ExitFailure, "indexing failed", runErr)
	}

	// The run context is cancelled by now; read the summary with a fresh one.
	wm, found, err := st.Watermark(context.Background(), runner.Pipeline())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read watermark", err)
	}

	result := RunResult{
		RunID:               runner.RunID().String(),
		Pipeline:            runner.Pipeline(),
		CheckpointHi:        wm.CheckpointHiInclusive,
		HasCommittedBatches: found,
	}
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(result, formatRunResult(result))
}

func formatRunResult(r RunResult) string {
	if !r.HasCommittedBatches {
		return fmt.Sprintf("Pipeline %s: no checkpoints indexed yet\n", r.Pipeline)
	}
	return fmt.Sprintf("Pipeline %s indexed through checkpoint %d\n", r.Pipeline, r.CheckpointHi)
}
