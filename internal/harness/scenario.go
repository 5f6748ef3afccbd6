package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/eventidx/internal/events"
	"github.com/roach88/eventidx/internal/mutation"
	"github.com/roach88/eventidx/internal/pipeline"
)

// Scenario defines an end-to-end indexing scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Pipeline selects the variant. Empty means "events".
	Pipeline string `yaml:"pipeline,omitempty"`

	// PackageID is the indexed package. Empty means testutil.PackageID.
	PackageID string `yaml:"package_id,omitempty"`

	Checkpoints []CheckpointStep `yaml:"checkpoints"`

	// ExpectError is the scan error code the run must stop with, if any.
	ExpectError string `yaml:"expect_error,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// CheckpointStep describes one checkpoint.
type CheckpointStep struct {
	Sequence     uint64            `yaml:"sequence"`
	Epoch        uint64            `yaml:"epoch,omitempty"`
	TimestampMs  *uint64           `yaml:"timestamp_ms,omitempty"` // nil uses the fixture clock
	Transactions []TransactionStep `yaml:"transactions"`
}

// TransactionStep describes one transaction and its events.
type TransactionStep struct {
	Digest string      `yaml:"digest"`
	Events []EventStep `yaml:"events,omitempty"`
}

// EventStep describes one emitted event.
type EventStep struct {
	// Type is a kind name such as "AgentRegistered", or a full type tag
	// when it contains "::".
	Type string `yaml:"type"`

	// Package overrides the emitting package.
	Package string `yaml:"package,omitempty"`

	// Fields are encoded into the payload. Ignored when Raw is set.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Raw is a hex payload used verbatim.
	Raw string `yaml:"raw,omitempty"`
}

// Assertion validates final state or the mutation trace.
type Assertion struct {
	Type string `yaml:"type"`

	// Table is used by row_count, final_state and mutation_count.
	Table string `yaml:"table,omitempty"`

	// Where filters rows (row_count, final_state). All fields must match.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds expected column values (final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is used by row_count and mutation_count.
	Count int `yaml:"count,omitempty"`

	// Op filters mutation_count by operation.
	Op string `yaml:"op,omitempty"`

	// Checkpoint is the expected watermark; -1 asserts none was committed.
	Checkpoint *int64 `yaml:"checkpoint,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount      = "row_count"
	AssertFinalState    = "final_state"
	AssertWatermark     = "watermark"
	AssertMutationCount = "mutation_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Checkpoints) == 0 {
		return fmt.Errorf("checkpoints must not be empty")
	}
	if s.Pipeline != "" {
		if _, err := pipeline.LookupVariant(s.Pipeline); err != nil {
			return err
		}
	}
	switch pipeline.ScanErrorCode(s.ExpectError) {
	case "", pipeline.ErrCodeDecodeFailed, pipeline.ErrCodeNarrowingFailed, pipeline.ErrCodeInvalidTimestamp:
	default:
		return fmt.Errorf("expect_error %q is not a scan error code", s.ExpectError)
	}

	for i, cp := range s.Checkpoints {
		for j, tx := range cp.Transactions {
			if tx.Digest == "" {
				return fmt.Errorf("checkpoints[%d].transactions[%d]: digest is required", i, j)
			}
			for k, ev := range tx.Events {
				if ev.Type == "" {
					return fmt.Errorf("checkpoints[%d].transactions[%d].events[%d]: type is required", i, j, k)
				}
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	needsTable := func() error {
		if !mutation.Table(a.Table).Valid() {
			return fmt.Errorf("assertions[%d]: unknown table %q for %s", index, a.Table, a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertRowCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
		return needsTable()
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		return needsTable()
	case AssertWatermark:
		if a.Checkpoint == nil {
			return fmt.Errorf("assertions[%d]: checkpoint is required for watermark", index)
		}
	case AssertMutationCount:
		switch mutation.Op(a.Op) {
		case "", mutation.OpInsert, mutation.OpUpdate, mutation.OpDelete:
		default:
			return fmt.Errorf("assertions[%d]: unknown op %q", index, a.Op)
		}
		return needsTable()
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// kindByName resolves an event type name.
func kindByName(name string) (events.Kind, bool) {
	for _, k := range events.AllKinds() {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}
