package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/eventidx/internal/chain"
	"github.com/roach88/eventidx/internal/config"
	"github.com/roach88/eventidx/internal/mutation"
	"github.com/roach88/eventidx/internal/pipeline"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	ConfigPath string
	Package    string
	Pipeline   string
}

// ScanResult is the JSON output of the scan command.
type ScanResult struct {
	Checkpoint uint64              `json:"checkpoint"`
	Pipeline   string              `json:"pipeline"`
	Mutations  []mutation.Mutation `json:"mutations"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <checkpoint.json>",
		Short: "Print the mutations a checkpoint produces",
		Long: `Decode one checkpoint file and print the mutations it maps to,
without touching a database.

Examples:
  eventidx scan --package 0xabc ./checkpoints/1200.json
  eventidx scan --package 0xabc --pipeline agent --format json ./checkpoints/1200.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML or TOML config file")
	cmd.Flags().StringVar(&opts.Package, "package", "", "package id whose events are decoded")
	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline variant (events|agent)")

	return cmd
}

func runScan(opts *ScanOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	cfg, err := loadConfig(opts.ConfigPath, func(cfg *config.Config) {
		if opts.Package != "" {
			cfg.PackageID = opts.Package
		}
		if opts.Pipeline != "" {
			cfg.Pipeline = opts.Pipeline
		}
	})
	if err != nil {
		return err
	}
	packageID := cfg.ResolvedPackageID()
	if packageID == "" {
		return NewExitError(ExitCommandError, "no package id: pass --package or set "+config.EnvPackageID)
	}
	variant, err := pipeline.LookupVariant(cfg.Pipeline)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid pipeline", err)
	}

	cp, err := chain.ReadCheckpointFile(path)
	if err != nil {
		_ = formatter.Error(CodeSource, "failed to read checkpoint", err.Error())
		return WrapExitError(ExitCommandError, "failed to read checkpoint", err)
	}
	formatter.VerboseLog("scanning checkpoint %d (%d transactions, %d events)", cp.SequenceNumber, len(cp.Transactions), cp.EventCount())

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	scanner := pipeline.NewScanner(chain.NewPackageFilter(packageID), variant, logger)

	ms, err := scanner.Scan(cp)
	if err != nil {
		_ = formatter.Error(CodeScan, err.Error(), scanErrorDetails(err))
		return WrapExitError(ExitFailure, "scan failed", err)
	}

	if ms == nil {
		ms = []mutation.Mutation{}
	}
	return formatter.Success(ScanResult{Checkpoint: cp.SequenceNumber, Pipeline: variant.Name, Mutations: ms}, formatMutations(ms))
}

func formatMutations(ms []mutation.Mutation) string {
	if len(ms) == 0 {
		return "(no mutations)\n"
	}
	var b strings.Builder
	for _, m := range ms {
		b.WriteString(m.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func scanErrorDetails(err error) map[string]any {
	var scanErr *pipeline.ScanError
	if !errors.As(err, &scanErr) {
		return nil
	}
	details := map[string]any{
		"code":       scanErr.Code,
		"checkpoint": scanErr.Checkpoint,
	}
	if scanErr.TxDigest != "" {
		details["tx_digest"] = scanErr.TxDigest
		details["event_index"] = scanErr.EventIndex
		details["event_type"] = scanErr.EventType
	}
	return details
}
