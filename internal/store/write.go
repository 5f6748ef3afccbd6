package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/eventidx/internal/ir"
	"github.com/roach88/eventidx/internal/mutation"
)

// identPattern bounds the column names that may be spliced into SQL.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Commit applies ms in order inside one transaction and returns the total
// number of rows affected across every statement, including the SellOffer
// rows removed ahead of a BuyOffer delete.
//
// Inserts use ON CONFLICT DO NOTHING for idempotency - an existing natural
// key is silently ignored and counts zero. Any other failure rolls back the
// whole batch. An empty batch returns 0 without opening a transaction.
func (s *Store) Commit(ctx context.Context, ms []mutation.Mutation) (int64, error) {
	if len(ms) == 0 {
		return 0, nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) (int64, error) {
		return s.apply(ctx, tx, ms)
	})
}

// CommitWithWatermark applies ms and advances the pipeline watermark in the
// same transaction, so progress is never recorded for unwritten mutations.
// The returned count excludes the watermark row.
func (s *Store) CommitWithWatermark(ctx context.Context, ms []mutation.Mutation, wm Watermark) (int64, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (int64, error) {
		n, err := s.apply(ctx, tx, ms)
		if err != nil {
			return 0, err
		}
		if err := s.writeWatermark(ctx, tx, wm); err != nil {
			return 0, err
		}
		return n, nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("commit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	n, err := fn(tx)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (s *Store) apply(ctx context.Context, tx *sql.Tx, ms []mutation.Mutation) (int64, error) {
	var total int64
	for i, m := range ms {
		n, err := s.applyOne(ctx, tx, m)
		if err != nil {
			return 0, fmt.Errorf("commit: mutation %d (%s %s): %w", i, m.Op(), m.Table(), err)
		}
		total += n
	}
	return total, nil
}

func (s *Store) applyOne(ctx context.Context, tx *sql.Tx, m mutation.Mutation) (int64, error) {
	if !m.Table().Valid() {
		return 0, fmt.Errorf("%w: unknown table %q", ErrInvalidMutation, m.Table())
	}

	switch m := m.(type) {
	case mutation.Insert:
		return s.insert(ctx, tx, m)
	case mutation.Update:
		return s.update(ctx, tx, m)
	case mutation.Delete:
		var cascaded int64
		if m.Target == mutation.TableBuyOffer {
			// SellOffer rows reference their BuyOffer and go first. Mapped
			// batches already carry this delete, so here it matches no rows;
			// it still covers a BuyOffer delete committed on its own.
			n, err := s.delete(ctx, tx, mutation.Delete{
				Target: mutation.TableSellOffer,
				Key:    ir.IRObject{"buy_offer_id": m.Key["buy_offer_id"]},
			})
			if err != nil {
				return 0, fmt.Errorf("cascade: %w", err)
			}
			cascaded = n
		}
		n, err := s.delete(ctx, tx, m)
		return cascaded + n, err
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidMutation, m)
	}
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, m mutation.Insert) (int64, error) {
	cols, args, err := columns(m.Row)
	if err != nil {
		return 0, err
	}
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = s.placeholder(i + 1)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING`,
		quoteTable(m.Target),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(m.Target.NaturalKey(), ", "),
	)
	return s.exec(ctx, tx, query, args)
}

func (s *Store) update(ctx context.Context, tx *sql.Tx, m mutation.Update) (int64, error) {
	setCols, setArgs, err := columns(m.Set)
	if err != nil {
		return 0, err
	}
	if len(setCols) == 0 {
		return 0, fmt.Errorf("%w: update with no columns", ErrInvalidMutation)
	}

	assignments := make([]string, len(setCols))
	for i, c := range setCols {
		assignments[i] = c + " = " + s.placeholder(i+1)
	}
	where, whereArgs, err := s.whereClause(m.Key, len(setArgs))
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s`,
		quoteTable(m.Target), strings.Join(assignments, ", "), where)
	return s.exec(ctx, tx, query, append(setArgs, whereArgs...))
}

func (s *Store) delete(ctx context.Context, tx *sql.Tx, m mutation.Delete) (int64, error) {
	where, args, err := s.whereClause(m.Key, 0)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s`, quoteTable(m.Target), where)
	return s.exec(ctx, tx, query, args)
}

// whereClause matches every column of key. Placeholders are numbered after offset.
// An empty key is rejected so a malformed mutation can never touch a whole table.
func (s *Store) whereClause(key ir.IRObject, offset int) (string, []any, error) {
	cols, args, err := columns(key)
	if err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("%w: empty key", ErrInvalidMutation)
	}
	conds := make([]string, len(cols))
	for i, c := range cols {
		conds[i] = c + " = " + s.placeholder(offset+i+1)
	}
	return strings.Join(conds, " AND "), args, nil
}

func (s *Store) exec(ctx context.Context, tx *sql.Tx, query string, args []any) (int64, error) {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// placeholder returns the bind parameter for position n (1-based).
func (s *Store) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// columns returns obj's column names in canonical order with driver values.
func columns(obj ir.IRObject) ([]string, []any, error) {
	cols := obj.SortedKeys()
	args := make([]any, len(cols))
	for i, c := range cols {
		if !identPattern.MatchString(c) {
			return nil, nil, fmt.Errorf("%w: invalid column name %q", ErrInvalidMutation, c)
		}
		v, err := ir.Native(obj[c])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: column %s: %w", ErrInvalidMutation, c, err)
		}
		args[i] = v
	}
	return cols, args, nil
}

// quoteTable quotes a table name; "User" is reserved in PostgreSQL.
func quoteTable(t mutation.Table) string {
	return `"` + string(t) + `"`
}
