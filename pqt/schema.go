// Package pqt writes and reads the Parquet files produced by the converters.
//
// A Schema is an ordered list of required int32 and float32 columns. At most
// one int32 column carries the timestep of a row and at most one its row id;
// every other column is a float32 measurement. A Policy sets the codec,
// encoding, dictionary and quantization of each column, and a Writer owns
// row-group boundaries and row-id bookkeeping over one output.
package pqt

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Default column names of the ordering keys.
const (
	ColumnTimestep = "timestep"
	ColumnRowID    = "rowid"
)

// ErrSchema is returned for a malformed schema.
var ErrSchema = errors.New("invalid schema")

// Kind is the physical type of a column.
type Kind int

const (
	Int32 Kind = iota
	Float32
)

func (k Kind) String() string {
	switch k {
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Role says where the value of a column comes from.
type Role int

const (
	// Measure columns take the float32 values of a row.
	Measure Role = iota
	// Timestep is the outer ordering key supplied with each row.
	Timestep
	// RowID is the inner sequence key maintained by the writer.
	RowID
)

// Column describes one required column.
type Column struct {
	Name string
	Kind Kind
	Role Role
}

// TimestepColumn is the int32 outer sequence key.
func TimestepColumn() Column { return Column{Name: ColumnTimestep, Kind: Int32, Role: Timestep} }

// RowIDColumn is the int32 inner sequence key.
func RowIDColumn() Column { return Column{Name: ColumnRowID, Kind: Int32, Role: RowID} }

// MeasureColumn is a float32 measurement column named name.
func MeasureColumn(name string) Column { return Column{Name: name, Kind: Float32, Role: Measure} }

// Schema is an immutable, ordered set of columns.
type Schema struct {
	columns  []Column
	index    map[string]int
	measures []int
	timestep int
	rowid    int
}

// NewSchema validates columns and returns the schema that writes them in the
// given order.
func NewSchema(columns ...Column) (*Schema, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrSchema)
	}
	s := &Schema{
		columns:  append([]Column(nil), columns...),
		index:    make(map[string]int, len(columns)),
		timestep: -1,
		rowid:    -1,
	}
	for i, c := range columns {
		if c.Name == "" || strings.ContainsAny(c.Name, ",.") {
			return nil, fmt.Errorf("%w: invalid column name %q", ErrSchema, c.Name)
		}
		if _, dup := s.index[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrSchema, c.Name)
		}
		s.index[c.Name] = i

		switch c.Role {
		case Measure:
			if c.Kind != Float32 {
				return nil, fmt.Errorf("%w: measure column %q must be float32", ErrSchema, c.Name)
			}
			s.measures = append(s.measures, i)
		case Timestep, RowID:
			if c.Kind != Int32 {
				return nil, fmt.Errorf("%w: key column %q must be int32", ErrSchema, c.Name)
			}
			slot := &s.timestep
			if c.Role == RowID {
				slot = &s.rowid
			}
			if *slot >= 0 {
				return nil, fmt.Errorf("%w: more than one %s column", ErrSchema, c.Name)
			}
			*slot = i
		default:
			return nil, fmt.Errorf("%w: unknown role %d for %q", ErrSchema, c.Role, c.Name)
		}
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error.
func MustSchema(columns ...Column) *Schema {
	s, err := NewSchema(columns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Columns returns the columns in order. The slice must not be modified.
func (s *Schema) Columns() []Column { return s.columns }

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.columns) }

// Measures returns the names of the measure columns in schema order.
func (s *Schema) Measures() []string {
	names := make([]string, len(s.measures))
	for i, j := range s.measures {
		names[i] = s.columns[j].Name
	}
	return names
}

// HasTimestep reports whether the schema has a timestep column.
func (s *Schema) HasTimestep() bool { return s.timestep >= 0 }

// HasRowID reports whether the schema has a row id column.
func (s *Schema) HasRowID() bool { return s.rowid >= 0 }

// Lookup returns the column with the given name and its position.
func (s *Schema) Lookup(name string) (Column, int, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, -1, false
	}
	return s.columns[i], i, true
}

// Equal reports whether both schemas have the same columns in the same order.
func (s *Schema) Equal(o *Schema) bool {
	return reflect.DeepEqual(s.columns, o.columns)
}

func (s *Schema) String() string {
	var sb strings.Builder
	sb.WriteString("schema(")
	for i, c := range s.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s %s", c.Name, c.Kind)
	}
	sb.WriteString(")")
	return sb.String()
}

// parquetSchema builds the Parquet schema of s under p. Columns become the
// fields of a generated struct so that their order is kept; parquet.Group
// would sort them by name.
func (s *Schema) parquetSchema(p Policy) *parquet.Schema {
	fields := make([]reflect.StructField, len(s.columns))
	for i, c := range s.columns {
		typ := reflect.TypeOf(int32(0))
		if c.Kind == Float32 {
			typ = reflect.TypeOf(float32(0))
		}
		fields[i] = reflect.StructField{
			Name: fmt.Sprintf("C%d", i),
			Type: typ,
			Tag:  reflect.StructTag(`parquet:"` + p.tag(c) + `"`),
		}
	}
	model := reflect.New(reflect.StructOf(fields)).Interface()
	return parquet.NewSchema("schema", parquet.SchemaOf(model))
}
