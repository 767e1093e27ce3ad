// Package dataset holds in-memory tables and the lenient CSV ingest that
// builds them.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the inferred type of a column.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindDouble
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Column is a named, typed column.
type Column struct {
	Name string
	Kind Kind
}

// Schema is an ordered list of columns.
type Schema []Column

// Index returns the position of the named column or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Names lists column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// Require fails with ErrMissingColumn naming the first absent column.
func (s Schema) Require(names ...string) error {
	for _, n := range names {
		if s.Index(n) < 0 {
			return fmt.Errorf("%w: %q (have %s)", ErrMissingColumn, n, strings.Join(s.Names(), ", "))
		}
	}
	return nil
}

// Table is a schema plus rows of typed values. A nil value is null; other
// values are bool, int64, float64 or string according to the column kind.
type Table struct {
	Schema Schema
	Rows   [][]any
}

// Len is the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column returns all values of the named column.
func (t *Table) Column(name string) []any {
	idx := t.Schema.Index(name)
	if idx < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[idx]
	}
	return out
}

// kindOf classifies one raw field. Empty fields are null.
func kindOf(s string) Kind {
	if s == "" {
		return KindNull
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return KindInteger
	}
	if isSpecialFloat(s) || isDecimal(s) {
		return KindDouble
	}
	if _, ok := parseBool(s); ok {
		return KindBoolean
	}
	return KindString
}

// isDecimal accepts finite decimal floats. ParseFloat also takes hex
// mantissas and any casing of nan/inf; those stay strings.
func isDecimal(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return false
	}
	t := strings.TrimLeft(s, "+-")
	return !strings.HasPrefix(t, "0x") && !strings.HasPrefix(t, "0X")
}

// isSpecialFloat accepts the engine's spellings of NaN and infinities.
func isSpecialFloat(s string) bool {
	switch s {
	case "NaN", "Inf", "+Inf", "-Inf", "Infinity", "+Infinity", "-Infinity":
		return true
	}
	return false
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// widen merges two observed kinds the way numeric inference widens:
// integer+double is double, null is absorbed, any other mix is string.
func widen(a, b Kind) Kind {
	switch {
	case a == b:
		return a
	case a == KindNull:
		return b
	case b == KindNull:
		return a
	case (a == KindInteger && b == KindDouble) || (a == KindDouble && b == KindInteger):
		return KindDouble
	}
	return KindString
}

// InferKinds infers one kind per column over all records. Columns with no
// non-null value are strings.
func InferKinds(width int, records [][]string) []Kind {
	kinds := make([]Kind, width)
	for _, rec := range records {
		for i := 0; i < width && i < len(rec); i++ {
			if kinds[i] == KindString {
				continue
			}
			kinds[i] = widen(kinds[i], kindOf(rec[i]))
		}
	}
	for i, k := range kinds {
		if k == KindNull {
			kinds[i] = KindString
		}
	}
	return kinds
}

// Convert parses a raw field as kind. Empty fields and unparseable values
// become nil.
func Convert(s string, kind Kind) any {
	if s == "" {
		return nil
	}
	switch kind {
	case KindInteger:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
		return nil
	case KindDouble:
		return ParseDouble(s)
	case KindBoolean:
		if v, ok := parseBool(s); ok {
			return v
		}
		return nil
	default:
		return s
	}
}

// ParseDouble parses a float leniently (surrounding spaces allowed). It
// returns nil when s is not a number.
func ParseDouble(s string) any {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return nil
	case "NaN":
		return math.NaN()
	case "Inf", "+Inf", "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Inf", "-Infinity":
		return math.Inf(-1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// Format renders a value the way it is written to delimited text. Nulls are
// empty strings.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatDouble(x)
	case bool:
		return strconv.FormatBool(x)
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

// formatDouble keeps a fractional part on whole numbers (5 -> "5.0") so a
// double column reads back as double.
func formatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
