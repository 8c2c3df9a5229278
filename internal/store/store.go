package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"devicefarm-server/internal/database"
	"devicefarm-server/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrInvalid   = errors.New("invalid record")
	ErrNoChanges = errors.New("no fields to update")
)

// listLimit caps job listings; dashboards only ever show the newest page.
const listLimit = 200

type Store struct {
	db  *database.DB
	now func() time.Time
}

type Options struct {
	// Now overrides the clock used for timestamps and schedule comparisons.
	Now func() time.Time
}

func New(db *database.DB) *Store {
	return NewWithOptions(db, Options{})
}

func NewWithOptions(db *database.DB, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

func (s *Store) nowString() string {
	return model.FormatTime(s.now())
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

type scanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// columns accumulates the column/value pairs of an INSERT or UPDATE so that
// absent optional fields fall through to column defaults (insert) or stay
// untouched (update).
type columns struct {
	names []string
	args  []any
}

func (c *columns) set(name string, v any) {
	c.names = append(c.names, name)
	c.args = append(c.args, v)
}

func setOpt[T any](c *columns, name string, v *T) {
	if v != nil {
		c.set(name, *v)
	}
}

func (c *columns) empty() bool { return len(c.names) == 0 }

func (c *columns) insertSQL(table string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(c.names)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(c.names, ", "), marks)
}

func (c *columns) updateSQL(table string) string {
	sets := make([]string, len(c.names))
	for i, n := range c.names {
		sets[i] = n + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
}

func (c *columns) insert(ctx context.Context, ex execer, table string) (int64, error) {
	res, err := ex.ExecContext(ctx, c.insertSQL(table), c.args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	return id, nil
}

func (c *columns) update(ctx context.Context, ex execer, table string, id int64) error {
	if c.empty() {
		return ErrNoChanges
	}
	args := append(append([]any{}, c.args...), id)
	res, err := ex.ExecContext(ctx, c.updateSQL(table), args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return requireAffected(res, table)
}

type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func requireAffected(res sql.Result, table string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", table, ErrNotFound)
	}
	return nil
}

func (s *Store) deleteByID(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return requireAffected(res, table)
}

func (s *Store) count(ctx context.Context, table string, w where) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+w.String(), w.args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func validTime(field string, v *string) error {
	if v == nil {
		return nil
	}
	if _, err := model.ParseTime(*v); err != nil {
		return invalid("%s must look like %s", field, model.TimeLayout)
	}
	return nil
}

func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	result := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}
