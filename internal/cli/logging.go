package cli

import (
	"io"
	"log/slog"

	"github.com/roach88/eventidx/internal/config"
)

// newLogger builds the process logger. Verbose forces debug level.
func newLogger(w io.Writer, lc config.LogConfig, verbose bool) (*slog.Logger, error) {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
}

// loadConfig reads the config file (if any) and environment, then lets
// apply layer command-line flags on top.
func loadConfig(path string, apply func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	apply(&cfg)
	return cfg, nil
}
