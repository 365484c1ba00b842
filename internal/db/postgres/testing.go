package postgres

import (
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// FakeRows is an in-memory pgx.Rows for repository tests.
type FakeRows struct {
	cols   []string
	rows   [][]any
	pos    int
	err    error
	closed bool
}

// NewFakeRows builds a pgx.Rows over the given columns and row values
// (test-only).
func NewFakeRows(cols []string, rows ...[]any) *FakeRows {
	return &FakeRows{cols: cols, rows: rows, pos: -1}
}

// NewFakeRowsError builds a pgx.Rows whose Err reports the given error after
// iteration (test-only).
func NewFakeRowsError(err error) *FakeRows {
	return &FakeRows{pos: -1, err: err}
}

func (r *FakeRows) Close()                        { r.closed = true }
func (r *FakeRows) Err() error                    { return r.err }
func (r *FakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *FakeRows) RawValues() [][]byte           { return nil }
func (r *FakeRows) Conn() *pgx.Conn               { return nil }

func (r *FakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return fds
}

func (r *FakeRows) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	r.pos++
	return r.pos < len(r.rows)
}

func (r *FakeRows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return nil, pgx.ErrNoRows
	}
	return r.rows[r.pos], nil
}

// Scan copies the current row into dest pointers. Nil values leave the
// destination at its zero value, matching NULL handling for the types the
// repositories scan into.
func (r *FakeRows) Scan(dest ...any) error {
	row, err := r.Values()
	if err != nil {
		return err
	}
	if len(dest) != len(row) {
		return fmt.Errorf("fake rows: scan %d destinations for %d values", len(dest), len(row))
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return fmt.Errorf("fake rows: column %d: %w", i, err)
		}
	}
	return nil
}

// FakeRow adapts a single row (or none) to the pgx.Row scan contract:
// scanning with no row returns pgx.ErrNoRows.
type FakeRow struct {
	values []any
	none   bool
	err    error
}

// NewFakeRow builds a pgx.Row with the given values (test-only).
func NewFakeRow(values ...any) *FakeRow {
	return &FakeRow{values: values}
}

// NewFakeRowNoRows builds a pgx.Row whose Scan reports pgx.ErrNoRows
// (test-only).
func NewFakeRowNoRows() *FakeRow {
	return &FakeRow{none: true}
}

// NewFakeRowError builds a pgx.Row that fails with err (test-only).
func NewFakeRowError(err error) *FakeRow {
	return &FakeRow{err: err}
}

func (r *FakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.none {
		return pgx.ErrNoRows
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("fake row: scan %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		if err := assign(d, r.values[i]); err != nil {
			return fmt.Errorf("fake row: column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, v any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination %T is not a pointer", dest)
	}
	elem := dv.Elem()
	if v == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	sv := reflect.ValueOf(v)
	if !sv.Type().AssignableTo(elem.Type()) {
		if sv.Type().ConvertibleTo(elem.Type()) {
			elem.Set(sv.Convert(elem.Type()))
			return nil
		}
		return fmt.Errorf("cannot assign %T to %T", v, dest)
	}
	elem.Set(sv)
	return nil
}
