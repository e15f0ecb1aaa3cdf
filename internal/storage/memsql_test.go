package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
)

// memTable is an in-memory links table understood by memConn. It speaks only
// the statements PostgresRepository issues.
type memTable struct {
	mu   sync.Mutex
	rows [][]driver.Value
	err  error
}

var memColumns = strings.Split(linkColumns, ", ")

func memColumn(name string) int {
	for i, c := range memColumns {
		if c == name {
			return i
		}
	}
	return -1
}

// openMemDB returns a *sql.DB backed by t.
func openMemDB(tb testing.TB, t *memTable) *sql.DB {
	tb.Helper()
	db := sql.OpenDB(memConnector{t})
	tb.Cleanup(func() { _ = db.Close() })
	return db
}

type memConnector struct {
	table *memTable
}

func (c memConnector) Connect(context.Context) (driver.Conn, error) {
	return &memConn{table: c.table}, nil
}

func (c memConnector) Driver() driver.Driver { return c }

func (c memConnector) Open(string) (driver.Conn, error) {
	return &memConn{table: c.table}, nil
}

type memConn struct {
	table *memTable
}

func (c *memConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("memsql: prepared statements are not supported")
}

func (c *memConn) Close() error { return nil }

func (c *memConn) Begin() (driver.Tx, error) {
	return nil, errors.New("memsql: transactions are not supported")
}

func memValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

func (c *memConn) QueryContext(ctx context.Context, query string, named []driver.NamedValue) (driver.Rows, error) {
	t := c.table
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	args := memValues(named)

	switch {
	case strings.HasPrefix(query, "INSERT INTO links"):
		if len(args) != len(memColumns) {
			return nil, fmt.Errorf("memsql: insert expects %d values, got %d", len(memColumns), len(args))
		}
		t.rows = append(t.rows, args)
		return &memRows{cols: []string{"id"}, data: [][]driver.Value{{args[0]}}}, nil

	case strings.HasPrefix(query, "SELECT "+linkColumns+" FROM links WHERE user_id = $1"):
		var out [][]driver.Value
		for _, r := range t.rows {
			if r[1] == args[0] {
				out = append(out, append([]driver.Value(nil), r...))
			}
		}
		at := memColumn("createdat")
		sort.SliceStable(out, func(i, j int) bool {
			return out[i][at].(int64) > out[j][at].(int64)
		})
		return &memRows{cols: memColumns, data: out}, nil
	}
	return nil, fmt.Errorf("memsql: unsupported query %q", query)
}

func (c *memConn) ExecContext(ctx context.Context, query string, named []driver.NamedValue) (driver.Result, error) {
	t := c.table
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	args := memValues(named)

	switch {
	case strings.HasPrefix(query, "UPDATE links SET "):
		sets := strings.TrimPrefix(query[:strings.Index(query, " WHERE ")], "UPDATE links SET ")
		id, user := args[len(args)-2], args[len(args)-1]
		var n int64
		for _, r := range t.rows {
			if r[0] != id || r[1] != user {
				continue
			}
			for i, assign := range strings.Split(sets, ", ") {
				col := memColumn(strings.SplitN(assign, " = ", 2)[0])
				if col < 0 {
					return nil, fmt.Errorf("memsql: unknown column in %q", assign)
				}
				r[col] = args[i]
			}
			n++
		}
		return driver.RowsAffected(n), nil

	case query == "DELETE FROM links WHERE id = $1 AND user_id = $2":
		kept := t.rows[:0]
		for _, r := range t.rows {
			if r[0] != args[0] || r[1] != args[1] {
				kept = append(kept, r)
			}
		}
		n := int64(len(t.rows) - len(kept))
		t.rows = kept
		return driver.RowsAffected(n), nil
	}
	return nil, fmt.Errorf("memsql: unsupported statement %q", query)
}

type memRows struct {
	cols []string
	data [][]driver.Value
	i    int
}

func (r *memRows) Columns() []string { return r.cols }

func (r *memRows) Close() error { return nil }

func (r *memRows) Next(dest []driver.Value) error {
	if r.i >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.i])
	r.i++
	return nil
}
