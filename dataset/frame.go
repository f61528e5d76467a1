// Package dataset holds raw tabular records as read from the session log
// export: a column-ordered Frame of optionally-missing cells.
package dataset

import (
	"math"
	"strconv"
	"strings"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// Kind is the inferred type of a column.
type Kind int

const (
	// Numeric columns parse every non-missing cell as float64.
	Numeric Kind = iota
	// Categorical columns hold at least one non-numeric cell.
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Value is a single cell. Num is meaningful for numeric columns, Str keeps
// the raw text for categorical ones.
type Value struct {
	Num     float64
	Str     string
	Missing bool
}

// Column is a named, typed sequence of cells.
type Column struct {
	Name   string
	Kind   Kind
	Values []Value
}

// MissingCount returns the number of missing cells.
func (c *Column) MissingCount() int {
	n := 0
	for _, v := range c.Values {
		if v.Missing {
			n++
		}
	}
	return n
}

// MissingFraction returns MissingCount / len, or 0 for an empty column.
func (c *Column) MissingFraction() float64 {
	if len(c.Values) == 0 {
		return 0
	}
	return float64(c.MissingCount()) / float64(len(c.Values))
}

func (c *Column) clone() *Column {
	return &Column{Name: c.Name, Kind: c.Kind, Values: append([]Value(nil), c.Values...)}
}

// Frame is an immutable-by-convention table. Operations that change shape
// return a new Frame; the receiver is never modified.
type Frame struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// NewFrame builds a frame from columns of equal length and distinct names.
func NewFrame(columns ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if _, dup := f.index[c.Name]; dup {
			return nil, scigoErrors.NewDataErrorf("NewFrame", "duplicate column %q", c.Name)
		}
		if i == 0 {
			f.rows = len(c.Values)
		} else if len(c.Values) != f.rows {
			return nil, scigoErrors.NewDimensionError("NewFrame", f.rows, len(c.Values), 0)
		}
		f.index[c.Name] = i
		f.columns = append(f.columns, c)
	}
	return f, nil
}

// NumericColumn is a convenience constructor; NaN marks a missing cell.
func NumericColumn(name string, values ...float64) *Column {
	c := &Column{Name: name, Kind: Numeric, Values: make([]Value, len(values))}
	for i, v := range values {
		if math.IsNaN(v) {
			c.Values[i] = Value{Missing: true}
		} else {
			c.Values[i] = Value{Num: v}
		}
	}
	return c
}

// CategoricalColumn is a convenience constructor; missing tokens mark missing cells.
func CategoricalColumn(name string, values ...string) *Column {
	c := &Column{Name: name, Kind: Categorical, Values: make([]Value, len(values))}
	for i, v := range values {
		if IsMissingToken(v) {
			c.Values[i] = Value{Missing: true}
		} else {
			c.Values[i] = Value{Str: v}
		}
	}
	return c
}

// NumRows returns the number of records.
func (f *Frame) NumRows() int { return f.rows }

// NumCols returns the number of columns.
func (f *Frame) NumCols() int { return len(f.columns) }

// Names returns the column names in header order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether a column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the named column. Callers must not modify it.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.columns[i], true
}

// Columns returns the columns in header order. Callers must not modify them.
func (f *Frame) Columns() []*Column {
	return append([]*Column(nil), f.columns...)
}

// Drop returns a copy without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var kept []*Column
	for _, c := range f.columns {
		if !drop[c.Name] {
			kept = append(kept, c.clone())
		}
	}
	out, _ := NewFrame(kept...)
	if len(kept) == 0 {
		out.rows = 0
	}
	return out
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	return f.Drop()
}

// SelectRows returns a copy holding rows idx in the given order.
func (f *Frame) SelectRows(idx []int) *Frame {
	cols := make([]*Column, len(f.columns))
	for j, c := range f.columns {
		nc := &Column{Name: c.Name, Kind: c.Kind, Values: make([]Value, len(idx))}
		for k, i := range idx {
			nc.Values[k] = c.Values[i]
		}
		cols[j] = nc
	}
	out, _ := NewFrame(cols...)
	out.rows = len(idx)
	return out
}

// RowKey renders row i as a string suitable for exact-duplicate detection.
// Missing cells render distinctly from every present value.
func (f *Frame) RowKey(i int) string {
	var b strings.Builder
	for j, c := range f.columns {
		if j > 0 {
			b.WriteByte('\x1f')
		}
		v := c.Values[i]
		switch {
		case v.Missing:
			b.WriteString("\x00NA")
		case c.Kind == Numeric:
			x := v.Num
			if x == 0 {
				x = 0 // -0 and 0 are the same value
			}
			b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		default:
			b.WriteString(v.Str)
		}
	}
	return b.String()
}

var missingTokens = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"#n/a": true,
	"<na>": true,
	"nan":  true,
	"-nan": true,
	"null": true,
	"none": true,
}

// IsMissingToken reports whether s denotes a missing cell.
func IsMissingToken(s string) bool {
	return missingTokens[strings.ToLower(strings.TrimSpace(s))]
}
