package repo

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB is a scripted Querier: each call consumes the next queued result
// and records the SQL and args it received.
type fakeDB struct {
	results []fakeResult
	calls   []capturedCall
}

type fakeResult struct {
	cols []string
	rows [][]any
	tag  pgconn.CommandTag
	err  error
}

type capturedCall struct {
	sql  string
	args []any
}

func (db *fakeDB) queue(res fakeResult) {
	db.results = append(db.results, res)
}

func (db *fakeDB) next() fakeResult {
	if len(db.results) == 0 {
		return fakeResult{}
	}
	res := db.results[0]
	db.results = db.results[1:]
	return res
}

func (db *fakeDB) record(sql string, args []any) {
	db.calls = append(db.calls, capturedCall{sql: sql, args: args})
}

func (db *fakeDB) lastCall() capturedCall {
	return db.calls[len(db.calls)-1]
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.record(sql, args)
	res := db.next()
	return res.tag, res.err
}

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.record(sql, args)
	res := db.next()
	if res.err != nil {
		return nil, res.err
	}
	return &fakeRows{result: res, idx: -1}, nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.record(sql, args)
	return &fakeRow{result: db.next()}
}

type fakeRows struct {
	result fakeResult
	idx    int
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return r.result.tag }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }
func (r *fakeRows) RawValues() [][]byte           { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.result.cols))
	for i, col := range r.result.cols {
		fields[i] = pgconn.FieldDescription{Name: col}
	}
	return fields
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.result.rows)
}

func (r *fakeRows) Values() ([]any, error) {
	return r.result.rows[r.idx], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.result.rows[r.idx]
	return scanInto(row, dest)
}

type fakeRow struct {
	result fakeResult
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.result.err != nil {
		return r.result.err
	}
	if len(r.result.rows) == 0 {
		return pgx.ErrNoRows
	}
	return scanInto(r.result.rows[0], dest)
}

func scanInto(row []any, dest []any) error {
	if len(row) != len(dest) {
		return fmt.Errorf("fake scan: %d values into %d targets", len(row), len(dest))
	}
	for i, value := range row {
		target := reflect.ValueOf(dest[i]).Elem()
		if value == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(value)
		if v.Type().AssignableTo(target.Type()) {
			target.Set(v)
			continue
		}
		if target.Kind() == reflect.Pointer && v.Type().AssignableTo(target.Type().Elem()) {
			ptr := reflect.New(target.Type().Elem())
			ptr.Elem().Set(v)
			target.Set(ptr)
			continue
		}
		if v.Type().ConvertibleTo(target.Type()) {
			target.Set(v.Convert(target.Type()))
			continue
		}
		return fmt.Errorf("fake scan: cannot assign %T", value)
	}
	return nil
}
