package harness

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/eventidx/internal/chain"
	"github.com/roach88/eventidx/internal/mutation"
	"github.com/roach88/eventidx/internal/store"
)

// validIdentifier guards column names interpolated into queries.
var validIdentifier = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions evaluates all assertions and returns a message per
// failed assertion.
func EvaluateAssertions(ctx context.Context, st *store.Store, result *Result, assertions []Assertion) []string {
	var failures []string

	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertRowCount:
			err = assertRowCount(ctx, st.DB(), assertion)
		case AssertFinalState:
			err = assertFinalState(ctx, st.DB(), assertion)
		case AssertWatermark:
			err = assertWatermark(result, assertion)
		case AssertMutationCount:
			err = assertMutationCount(result.Trace, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}
	return failures
}

func assertRowCount(ctx context.Context, db *sql.DB, assertion Assertion) error {
	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	var n int
	if err := db.QueryRowContext(ctx, query, whereArgs...).Scan(&n); err != nil {
		return fmt.Errorf("count %s: %w", assertion.Table, err)
	}
	if n != assertion.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", assertion.Count, assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// assertFinalState checks that exactly one row matches Where and carries the
// Expect values (subset semantics).
func assertFinalState(ctx context.Context, db *sql.DB, assertion Assertion) error {
	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`SELECT * FROM "%s"`, assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := db.QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	for _, key := range sortedKeys(assertion.Expect) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("columns %v", columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, toSQLValue(expectedValue)),
				Actual:   fmt.Sprintf("field %q = %v", key, normalizeActual(actualValue)),
			}
		}
	}
	return nil
}

func assertWatermark(result *Result, assertion Assertion) error {
	if result.Watermark != *assertion.Checkpoint {
		return &AssertionError{
			Type:     AssertWatermark,
			Expected: fmt.Sprintf("%s at checkpoint %d", result.Pipeline, *assertion.Checkpoint),
			Actual:   fmt.Sprintf("checkpoint %d", result.Watermark),
		}
	}
	return nil
}

func assertMutationCount(trace []mutation.Mutation, assertion Assertion) error {
	n := 0
	for _, m := range trace {
		if string(m.Table()) != assertion.Table {
			continue
		}
		if assertion.Op != "" && string(m.Op()) != assertion.Op {
			continue
		}
		n++
	}
	if n != assertion.Count {
		op := assertion.Op
		if op == "" {
			op = "any"
		}
		return &AssertionError{
			Type:     AssertMutationCount,
			Expected: fmt.Sprintf("%d %s mutations on %s", assertion.Count, op, assertion.Table),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, toSQLValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML value to the form stored in the database.
// Address-shaped strings are padded to their canonical form.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "0x") {
			if a, err := chain.ParseAddress(val); err == nil {
				return a.String()
			}
		}
		return val
	case int:
		return int64(val)
	case uint64:
		return int64(val)
	default:
		return val
	}
}

func normalizeActual(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int:
		return int64(val)
	default:
		return val
	}
}

// stateValuesEqual compares an expected YAML value with a scanned column.
// Booleans may come back as integers depending on the column type.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	want := toSQLValue(expected)
	got := normalizeActual(actual)

	if b, ok := want.(bool); ok {
		if n, isInt := got.(int64); isInt {
			return b == (n != 0)
		}
	}
	return reflect.DeepEqual(want, got)
}

func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
