// Package dataset holds the tabular frame that flows from the data sources
// through feature resolution into the pipeline.
package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/propval/pkg/errors"
)

// Kind is the storage kind of a column.
type Kind int

const (
	// Numeric columns hold float64 values; empty cells are NaN.
	Numeric Kind = iota
	// Categorical columns hold strings; empty cells are "".
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Series is one named column.
type Series struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
}

// NewNumeric creates a numeric column.
func NewNumeric(name string, values []float64) *Series {
	return &Series{Name: name, Kind: Numeric, Floats: values}
}

// NewCategorical creates a categorical column.
func NewCategorical(name string, values []string) *Series {
	return &Series{Name: name, Kind: Categorical, Strings: values}
}

// Len returns the number of values.
func (s *Series) Len() int {
	if s.Kind == Categorical {
		return len(s.Strings)
	}
	return len(s.Floats)
}

// StringAt returns the value at i as a category label. Numeric values use the
// shortest representation that round-trips; NaN becomes "".
func (s *Series) StringAt(i int) string {
	if s.Kind == Categorical {
		return s.Strings[i]
	}
	return FormatFloat(s.Floats[i])
}

// ValueAt returns the value at i as float64 or string.
func (s *Series) ValueAt(i int) any {
	if s.Kind == Categorical {
		return s.Strings[i]
	}
	return s.Floats[i]
}

// AsCategorical returns the column converted to categorical.
func (s *Series) AsCategorical() *Series {
	if s.Kind == Categorical {
		return s
	}
	out := make([]string, len(s.Floats))
	for i := range s.Floats {
		out[i] = FormatFloat(s.Floats[i])
	}
	return NewCategorical(s.Name, out)
}

// AsFloats returns the column as float64 values. Categorical values must
// parse as numbers; empty strings become NaN.
func (s *Series) AsFloats() ([]float64, error) {
	if s.Kind == Numeric {
		return s.Floats, nil
	}
	out := make([]float64, len(s.Strings))
	for i, v := range s.Strings {
		f, ok := ParseFloat(v)
		if !ok {
			return nil, errors.NewValidationError(s.Name, "column holds non-numeric text", v)
		}
		out[i] = f
	}
	return out, nil
}

// Frame is an ordered collection of equally long named columns.
type Frame struct {
	columns []*Series
	index   map[string]int
	nRows   int
}

// New builds a frame. Column names must be unique and lengths equal.
func New(columns ...*Series) (*Frame, error) {
	f := &Frame{
		columns: make([]*Series, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if c.Name == "" {
			return nil, errors.NewValidationError("column", "empty column name", i)
		}
		if _, dup := f.index[c.Name]; dup {
			return nil, errors.NewValidationError("column", "duplicate column name", c.Name)
		}
		if i == 0 {
			f.nRows = c.Len()
		} else if c.Len() != f.nRows {
			return nil, errors.NewDimensionError("dataset.New", f.nRows, c.Len(), 0)
		}
		f.index[c.Name] = len(f.columns)
		f.columns = append(f.columns, c)
	}
	return f, nil
}

// NRows returns the number of rows.
func (f *Frame) NRows() int { return f.nRows }

// NCols returns the number of columns.
func (f *Frame) NCols() int { return len(f.columns) }

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the named column.
func (f *Frame) Column(name string) (*Series, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.columns[i], true
}

// Missing returns the names from want that the frame lacks, in want order.
func (f *Frame) Missing(want []string) []string {
	var missing []string
	for _, name := range want {
		if !f.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Select returns a frame with the named columns in the given order. Columns
// are shared, not copied.
func (f *Frame) Select(names []string) (*Frame, error) {
	if missing := f.Missing(names); len(missing) > 0 {
		return nil, errors.NewValidationError("columns", "not present in dataset", strings.Join(missing, ", "))
	}
	cols := make([]*Series, len(names))
	for i, name := range names {
		cols[i] = f.columns[f.index[name]]
	}
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		out.nRows = f.nRows
	}
	return out, nil
}

// Target returns the named column as the regression target. Every value must
// be a finite number.
func (f *Frame) Target(name string) ([]float64, error) {
	col, ok := f.Column(name)
	if !ok {
		return nil, errors.NewValidationError("target", "column not present in dataset", name)
	}
	y, err := col.AsFloats()
	if err != nil {
		return nil, errors.NewValidationError("target", "target column must be numeric", name)
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.NewValidationError("target", "target has a missing or infinite value", i)
		}
	}
	return y, nil
}

// WithCategorical returns a frame in which the named columns are categorical.
// Names that are not present are ignored.
func (f *Frame) WithCategorical(names []string) *Frame {
	cols := make([]*Series, len(f.columns))
	copy(cols, f.columns)
	for _, name := range names {
		if i, ok := f.index[name]; ok {
			cols[i] = cols[i].AsCategorical()
		}
	}
	out, _ := New(cols...) // same names and lengths as f
	out.nRows = f.nRows
	return out
}

// Row returns row i keyed by column name.
func (f *Frame) Row(i int) map[string]any {
	row := make(map[string]any, len(f.columns))
	for _, c := range f.columns {
		row[c.Name] = c.ValueAt(i)
	}
	return row
}

// FormatFloat renders v for use as a category label.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseFloat parses a cell. Empty and NA-like cells are NaN.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if isMissing(s) {
		return math.NaN(), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func isMissing(s string) bool {
	switch s {
	case "", "NA", "NaN", "nan", "null", "NULL":
		return true
	}
	return false
}
