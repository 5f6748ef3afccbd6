package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/eventidx/internal/config"
	"github.com/roach88/eventidx/internal/mutation"
	"github.com/roach88/eventidx/internal/pipeline"
	"github.com/roach88/eventidx/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
}

// WatermarkStatus reports one pipeline's progress.
type WatermarkStatus struct {
	Pipeline               string `json:"pipeline"`
	Committed              bool   `json:"committed"`
	EpochHiInclusive       int64  `json:"epoch_hi_inclusive,omitempty"`
	CheckpointHiInclusive  int64  `json:"checkpoint_hi_inclusive,omitempty"`
	TxHi                   int64  `json:"tx_hi,omitempty"`
	TimestampMsHiInclusive int64  `json:"timestamp_ms_hi_inclusive,omitempty"`
}

// StatusResult is the output of the status command.
type StatusResult struct {
	Watermarks []WatermarkStatus `json:"watermarks"`
	Rows       map[string]int64  `json:"rows"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline watermarks and row counts",
		Long: `Show how far each pipeline has indexed and how many rows each table holds.

Examples:
  eventidx status --db sqlite://./idx.db
  eventidx status --config ./eventidx.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML or TOML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "database URL (postgres:// or sqlite://)")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(opts.ConfigPath, func(cfg *config.Config) {
		if opts.Database != "" {
			cfg.DatabaseURL = opts.Database
		}
	})
	if err != nil {
		return err
	}
	caPath, err := cfg.WriteCACert()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to write CA certificate", err)
	}

	st, err := store.Open(ctx, store.Options{URL: cfg.DatabaseURL, CACertPath: caPath})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result := StatusResult{Rows: map[string]int64{}}
	for _, v := range pipeline.Variants() {
		wm, found, err := st.Watermark(ctx, v.Name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read watermark", err)
		}
		result.Watermarks = append(result.Watermarks, WatermarkStatus{
			Pipeline:               v.Name,
			Committed:              found,
			EpochHiInclusive:       wm.EpochHiInclusive,
			CheckpointHiInclusive:  wm.CheckpointHiInclusive,
			TxHi:                   wm.TxHi,
			TimestampMsHiInclusive: wm.TimestampMsHiInclusive,
		})
	}

	counts, err := st.Counts(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count rows", err)
	}
	for table, n := range counts {
		result.Rows[string(table)] = n
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(result, formatStatus(result))
}

func formatStatus(r StatusResult) string {
	var b strings.Builder

	b.WriteString("=== Watermarks ===\n")
	for _, wm := range r.Watermarks {
		if !wm.Committed {
			fmt.Fprintf(&b, "  %-8s (never committed)\n", wm.Pipeline)
			continue
		}
		fmt.Fprintf(&b, "  %-8s checkpoint %d (epoch %d, tx_hi %d, timestamp_ms %d)\n",
			wm.Pipeline, wm.CheckpointHiInclusive, wm.EpochHiInclusive, wm.TxHi, wm.TimestampMsHiInclusive)
	}
	b.WriteString("\n")

	b.WriteString("=== Rows ===\n")
	for _, table := range mutation.Tables() {
		fmt.Fprintf(&b, "  %-13s %d\n", table, r.Rows[string(table)])
	}
	return b.String()
}
