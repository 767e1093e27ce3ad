package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rakeshgeddam/AWS-EMR-ADHD/internal/dataset"
)

// monthWidth is the length of a YYYY-MM prefix.
const monthWidth = 7

// DeriveMonth sets target to the first seven characters of source, as text.
// Short or malformed values produce short or odd buckets; nothing is
// validated here. An existing target column is overwritten.
func (s *Session) DeriveMonth(ctx context.Context, source, target string) error {
	if _, err := s.column(source); err != nil {
		return err
	}

	if s.schema.Index(target) < 0 {
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", rawTable, quoteIdent(target))
		if _, err := s.db.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("failed to add column %q: %w", target, err)
		}
		s.schema = append(s.schema, dataset.Column{Name: target, Kind: dataset.KindString})
		s.derived[target] = true
	} else {
		s.schema[s.schema.Index(target)].Kind = dataset.KindString
	}

	update := fmt.Sprintf("UPDATE %s SET %s = substr(CAST(%s AS TEXT), 1, %d)",
		rawTable, quoteIdent(target), quoteIdent(source), monthWidth)
	if _, err := s.db.ExecContext(ctx, update); err != nil {
		return fmt.Errorf("failed to derive %q: %w", target, err)
	}
	return nil
}

// MalformedMonths counts rows whose bucket in column is null or not shaped
// like YYYY-MM.
func (s *Session) MalformedMonths(ctx context.Context, column string) (int, error) {
	if _, err := s.column(column); err != nil {
		return 0, err
	}
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL OR %s NOT GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]'",
		rawTable, quoteIdent(column), quoteIdent(column))
	var n int
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to validate %q: %w", column, err)
	}
	return n, nil
}

// AggregateSpec describes a grouped sum and average.
type AggregateSpec struct {
	GroupBy []string
	Sum     string
	SumAs   string
	Avg     string
	AvgAs   string

	// OnlyAtMost, when set, restricts the input to rows where that column
	// is <= Max, the same predicate Filter applies.
	OnlyAtMost string
	Max        float64
}

// Aggregate groups the raw table and returns one row per distinct key. Null
// measures are skipped; a group with no non-null value gets a null result.
// Rows are ordered by the group keys.
func (s *Session) Aggregate(ctx context.Context, spec AggregateSpec) (*dataset.Table, error) {
	if len(spec.GroupBy) == 0 {
		return nil, fmt.Errorf("aggregate needs at least one group column")
	}

	var (
		schema dataset.Schema
		keys   []string
	)
	for _, g := range spec.GroupBy {
		c, err := s.column(g)
		if err != nil {
			return nil, err
		}
		schema = append(schema, c)
		keys = append(keys, quoteIdent(c.Name))
	}

	sumExpr, sumCol, err := s.numericExpr(spec.Sum)
	if err != nil {
		return nil, err
	}
	avgExpr, _, err := s.numericExpr(spec.Avg)
	if err != nil {
		return nil, err
	}

	var (
		where string
		args  []any
	)
	if spec.OnlyAtMost != "" {
		expr, _, err := s.numericExpr(spec.OnlyAtMost)
		if err != nil {
			return nil, err
		}
		where = " WHERE " + expr + " <= ?"
		args = append(args, spec.Max)
	}

	run := func(sumKind dataset.Kind, sumSQL string) (*dataset.Table, error) {
		out := append(append(dataset.Schema{}, schema...),
			dataset.Column{Name: spec.SumAs, Kind: sumKind},
			dataset.Column{Name: spec.AvgAs, Kind: dataset.KindDouble},
		)
		groupList := strings.Join(keys, ", ")
		q := fmt.Sprintf("SELECT %s, %s AS %s, AVG(%s) AS %s FROM %s%s GROUP BY %s ORDER BY %s",
			groupList,
			sumSQL, quoteIdent(spec.SumAs),
			avgExpr, quoteIdent(spec.AvgAs),
			rawTable, where, groupList, groupList)
		return s.query(ctx, out, q, args...)
	}

	// Integer sums stay integers until they overflow; then the whole column
	// is recomputed as a double.
	doubleSum := fmt.Sprintf("CASE WHEN COUNT(%[1]s) = 0 THEN NULL ELSE TOTAL(%[1]s) END", sumExpr)
	var t *dataset.Table
	if sumCol.Kind == dataset.KindInteger {
		t, err = run(dataset.KindInteger, "SUM("+sumExpr+")")
		if isIntegerOverflow(err) {
			t, err = run(dataset.KindDouble, doubleSum)
		}
	} else {
		t, err = run(dataset.KindDouble, "SUM("+sumExpr+")")
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate failed: %w", err)
	}
	return t, nil
}

func isIntegerOverflow(err error) bool {
	return err != nil && strings.Contains(err.Error(), "integer overflow")
}

// Filter returns the raw rows whose column is <= threshold, in load order.
// Derived columns are left out. Nulls never pass the comparison.
func (s *Session) Filter(ctx context.Context, column string, threshold float64) (*dataset.Table, error) {
	expr, _, err := s.numericExpr(column)
	if err != nil {
		return nil, err
	}

	var (
		schema dataset.Schema
		cols   []string
	)
	for _, c := range s.schema {
		if s.derived[c.Name] {
			continue
		}
		schema = append(schema, c)
		cols = append(cols, quoteIdent(c.Name))
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s <= ? ORDER BY rowid",
		strings.Join(cols, ", "), rawTable, expr)
	t, err := s.query(ctx, schema, q, threshold)
	if err != nil {
		return nil, fmt.Errorf("filter failed: %w", err)
	}
	return t, nil
}
