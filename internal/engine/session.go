// Package engine runs the job's relational steps on an embedded in-memory
// SQLite database.
//
// A Session owns one connection for its whole life: every connection to
// ":memory:" is a separate database, so the pool is pinned to a single one.
package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"

	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/dataset"
	"modernc.org/sqlite"
)

const rawTable = "raw"

var registerOnce sync.Once

// registerFunctions adds to_double(x): numeric values pass through, text is
// parsed leniently and anything unparseable becomes NULL.
func registerFunctions() {
	registerOnce.Do(func() {
		sqlite.MustRegisterDeterministicScalarFunction("to_double", 1,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				switch v := args[0].(type) {
				case nil:
					return nil, nil
				case int64:
					return float64(v), nil
				case float64:
					return v, nil
				case string:
					return dataset.ParseDouble(v), nil
				case []byte:
					return dataset.ParseDouble(string(v)), nil
				}
				return nil, nil
			})
	})
}

// Session is a processing session holding the loaded raw table.
type Session struct {
	db      *sql.DB
	schema  dataset.Schema
	derived map[string]bool
}

// Open starts a session. Close must be called to release it.
func Open(ctx context.Context) (*Session, error) {
	registerFunctions()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start sqlite session: %w", err)
	}
	return &Session{db: db, derived: make(map[string]bool)}, nil
}

// Close releases the session and everything loaded into it.
func (s *Session) Close() error {
	return s.db.Close()
}

// Schema is the current schema of the raw table, derived columns included.
func (s *Session) Schema() dataset.Schema {
	return append(dataset.Schema(nil), s.schema...)
}

// Load creates the raw table and inserts every row in one transaction.
func (s *Session) Load(ctx context.Context, t *dataset.Table) error {
	if s.schema != nil {
		return fmt.Errorf("raw table already loaded")
	}

	defs := make([]string, len(t.Schema))
	marks := make([]string, len(t.Schema))
	for i, c := range t.Schema {
		defs[i] = quoteIdent(c.Name) + " " + affinity(c.Kind)
		marks[i] = "?"
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", rawTable, strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create raw table: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin load: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", rawTable, strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Schema))
	for i, row := range t.Rows {
		for j, v := range row {
			if b, ok := v.(bool); ok {
				v = boolToInt(b)
			}
			args[j] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load: %w", err)
	}

	s.schema = append(dataset.Schema(nil), t.Schema...)
	return nil
}

// Count returns the number of raw rows.
func (s *Session) Count(ctx context.Context) (int, error) {
	if s.schema == nil {
		return 0, ErrNotLoaded
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+rawTable).Scan(&n)
	return n, err
}

func (s *Session) column(name string) (dataset.Column, error) {
	if s.schema == nil {
		return dataset.Column{}, ErrNotLoaded
	}
	idx := s.schema.Index(name)
	if idx < 0 {
		return dataset.Column{}, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return s.schema[idx], nil
}

// numericExpr returns a SQL expression reading the column as a number.
func (s *Session) numericExpr(name string) (string, dataset.Column, error) {
	c, err := s.column(name)
	if err != nil {
		return "", c, err
	}
	switch c.Kind {
	case dataset.KindInteger, dataset.KindDouble:
		return quoteIdent(c.Name), c, nil
	case dataset.KindString:
		return "to_double(" + quoteIdent(c.Name) + ")", c, nil
	}
	return "", c, fmt.Errorf("%w: %q is %s", ErrNotNumeric, name, c.Kind)
}

// query runs q and converts every row to the kinds in schema.
func (s *Session) query(ctx context.Context, schema dataset.Schema, q string, args ...any) (*dataset.Table, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &dataset.Table{Schema: schema}
	for rows.Next() {
		vals := make([]any, len(schema))
		ptrs := make([]any, len(schema))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, c := range schema {
			vals[i] = coerce(c.Kind, vals[i])
		}
		out.Rows = append(out.Rows, vals)
	}
	return out, rows.Err()
}

func affinity(k dataset.Kind) string {
	switch k {
	case dataset.KindInteger, dataset.KindBoolean:
		return "INTEGER"
	case dataset.KindDouble:
		return "REAL"
	}
	return "TEXT"
}

// coerce maps a scanned SQLite value back onto the column kind.
func coerce(k dataset.Kind, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		switch k {
		case dataset.KindDouble:
			return float64(x)
		case dataset.KindBoolean:
			return x != 0
		case dataset.KindString:
			return dataset.Format(x)
		}
	case float64:
		switch k {
		case dataset.KindInteger:
			return int64(x)
		case dataset.KindString:
			return dataset.Format(x)
		}
	case bool:
		if k == dataset.KindInteger {
			return boolToInt(x)
		}
	}
	return v
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
