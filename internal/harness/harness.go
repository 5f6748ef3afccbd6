package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/eventidx/internal/chain"
	"github.com/roach88/eventidx/internal/config"
	"github.com/roach88/eventidx/internal/ingest"
	"github.com/roach88/eventidx/internal/mutation"
	"github.com/roach88/eventidx/internal/pipeline"
	"github.com/roach88/eventidx/internal/store"
	"github.com/roach88/eventidx/internal/testutil"
)

// Result is the outcome of running a scenario.
type Result struct {
	Pass bool

	// Trace holds the mutations of every checkpoint scanned before the run
	// stopped, in commit order.
	Trace []mutation.Mutation

	// RunErr is the error the ingest run stopped with, if any.
	RunErr error

	// Watermark is the committed checkpoint of the scenario's pipeline,
	// or -1 if nothing was committed.
	Pipeline  string
	Watermark int64

	Errors []string
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// ingestConfig commits one checkpoint per batch so a failing checkpoint
// leaves its predecessors committed.
var ingestConfig = config.IngestConfig{
	BatchCheckpoints:  1,
	ScanWorkers:       2,
	PollInterval:      time.Millisecond,
	BackoffMaxElapsed: time.Second,
}

// Run executes a scenario against a fresh in-memory database.
//
// Execution flow:
//  1. Build checkpoints from the scenario's event steps
//  2. Scan them to record the mutation trace
//  3. Index them with the ingest runner
//  4. Check the run error against expect_error
//  5. Evaluate assertions against the database
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	variant := pipeline.VariantEvents
	if scenario.Pipeline != "" {
		v, err := pipeline.LookupVariant(scenario.Pipeline)
		if err != nil {
			return nil, err
		}
		variant = v
	}
	packageID := scenario.PackageID
	if packageID == "" {
		packageID = testutil.PackageID
	}

	cps, err := buildCheckpoints(scenario, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to build checkpoints: %w", err)
	}

	st, err := store.OpenSQLite(ctx, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scanner := pipeline.NewScanner(chain.NewPackageFilter(packageID), variant, logger)

	result := &Result{Pass: true, Pipeline: variant.Name, Watermark: -1}
	for _, cp := range cps {
		ms, err := scanner.Scan(cp)
		if err != nil {
			break
		}
		result.Trace = append(result.Trace, ms...)
	}

	runner := ingest.NewRunner(st, scanner, ingest.NewMemorySource(cps...), ingestConfig, nil, logger)
	result.RunErr = runner.Run(ctx, false)
	checkRunError(result, scenario.ExpectError)

	wm, found, err := st.Watermark(ctx, variant.Name)
	if err != nil {
		return nil, err
	}
	if found {
		result.Watermark = wm.CheckpointHiInclusive
	}

	for _, msg := range EvaluateAssertions(ctx, st, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func checkRunError(result *Result, expect string) {
	if expect == "" {
		if result.RunErr != nil {
			result.AddError(fmt.Sprintf("run failed: %v", result.RunErr))
		}
		return
	}

	var scanErr *pipeline.ScanError
	switch {
	case result.RunErr == nil:
		result.AddError(fmt.Sprintf("expected %s, run succeeded", expect))
	case !errors.As(result.RunErr, &scanErr):
		result.AddError(fmt.Sprintf("expected %s, got %v", expect, result.RunErr))
	case string(scanErr.Code) != expect:
		result.AddError(fmt.Sprintf("expected %s, got %s", expect, scanErr.Code))
	}
}
