package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/roach88/eventidx/internal/pipeline"
	"github.com/roach88/eventidx/internal/testutil"
)

// Snapshot renders a result for golden comparison: the scenario name, one
// line per mutation, then the run outcome and watermark.
func Snapshot(name string, result *Result) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# scenario %s\n", name)
	b.Write(testutil.RenderMutations(result.Trace))

	var scanErr *pipeline.ScanError
	switch {
	case result.RunErr == nil:
		b.WriteString("# run ok\n")
	case errors.As(result.RunErr, &scanErr):
		fmt.Fprintf(&b, "# run stopped %s at checkpoint %d\n", scanErr.Code, scanErr.Checkpoint)
	default:
		fmt.Fprintf(&b, "# run failed\n")
	}
	fmt.Fprintf(&b, "# watermark %s %d\n", result.Pipeline, result.Watermark)
	return b.Bytes()
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/<scenario.Name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot be executed; snapshot mismatches
// fail t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	testutil.AssertGolden(t, scenario.Name, Snapshot(scenario.Name, result))
	return result, nil
}
