// Package batch assembles input batches from plain Go values.
package batch

import (
	"errors"
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"golang.org/x/exp/constraints"

	"github.com/cube2222/octojit/arrowexec/execution"
	"github.com/cube2222/octojit/octojit"
	"github.com/cube2222/octojit/physical"
)

var (
	ErrRowCountSet      = errors.New("row count already set")
	ErrRowCountMismatch = errors.New("column length doesn't match the row count")
)

// Builder collects columns of a single batch. All columns need to have the same number of rows.
type Builder struct {
	rows    int
	rowsSet bool
	fields  []arrow.Field
	columns []arrow.Array
	err     error
}

func NewBuilder() *Builder {
	return &Builder{}
}

// SetRowNum fixes the row count up front. Otherwise, the first column determines it.
func (b *Builder) SetRowNum(rows int) error {
	if b.rowsSet {
		return ErrRowCountSet
	}
	b.rows = rows
	b.rowsSet = true
	return nil
}

func (b *Builder) checkRows(name string, rows int) bool {
	if b.err != nil {
		return false
	}
	if !b.rowsSet {
		b.rows = rows
		b.rowsSet = true
	}
	if rows != b.rows {
		b.err = fmt.Errorf("column %s with %d rows in a batch of %d: %w", name, rows, b.rows, ErrRowCountMismatch)
		return false
	}
	return true
}

func (b *Builder) add(name string, t octojit.Type, arr arrow.Array) {
	b.fields = append(b.fields, arrow.Field{Name: name, Type: arr.DataType(), Nullable: t.Nullable})
	b.columns = append(b.columns, arr)
}

func isNull(nulls []bool, i int) bool {
	return nulls != nil && nulls[i]
}

// AddColumn adds a fixed-width column. Nulls may be nil, meaning there are none.
func AddColumn[T constraints.Integer | constraints.Float](b *Builder, name string, t octojit.Type, values []T, nulls []bool) {
	if !b.checkRows(name, len(values)) {
		return
	}
	if nulls != nil && len(nulls) != len(values) {
		b.err = fmt.Errorf("column %s with %d null flags: %w", name, len(nulls), ErrRowCountMismatch)
		return
	}

	builder := array.NewBuilder(memory.NewGoAllocator(), t.ArrowDataType())
	defer builder.Release()
	builder.Reserve(len(values))
	for i := range values {
		if isNull(nulls, i) {
			builder.AppendNull()
			continue
		}
		switch builder := builder.(type) {
		case *array.Int8Builder:
			builder.Append(int8(values[i]))
		case *array.Int16Builder:
			builder.Append(int16(values[i]))
		case *array.Int32Builder:
			builder.Append(int32(values[i]))
		case *array.Int64Builder:
			builder.Append(int64(values[i]))
		case *array.Float32Builder:
			builder.Append(float32(values[i]))
		case *array.Float64Builder:
			builder.Append(float64(values[i]))
		case *array.Date32Builder:
			builder.Append(arrow.Date32(values[i]))
		case *array.TimestampBuilder:
			builder.Append(arrow.Timestamp(values[i]))
		default:
			b.err = fmt.Errorf("column %s: unsupported fixed-width type %s", name, t)
			return
		}
	}
	b.add(name, t, builder.NewArray())
}

func (b *Builder) AddBoolColumn(name string, values []bool, nulls []bool) {
	if !b.checkRows(name, len(values)) {
		return
	}
	builder := array.NewBooleanBuilder(memory.NewGoAllocator())
	defer builder.Release()
	for i := range values {
		if isNull(nulls, i) {
			builder.AppendNull()
		} else {
			builder.Append(values[i])
		}
	}
	b.add(name, octojit.Boolean.WithNullable(nulls != nil), builder.NewArray())
}

func (b *Builder) AddStringColumn(name string, values []string, nulls []bool) {
	if !b.checkRows(name, len(values)) {
		return
	}
	builder := array.NewStringBuilder(memory.NewGoAllocator())
	defer builder.Release()
	for i := range values {
		if isNull(nulls, i) {
			builder.AppendNull()
		} else {
			builder.Append(values[i])
		}
	}
	b.add(name, octojit.String.WithNullable(nulls != nil), builder.NewArray())
}

// AddDictColumn adds a dictionary-encoded string column, given by indices into the dictionary.
func (b *Builder) AddDictColumn(name string, dictionary []string, indices []int32, nulls []bool) {
	if !b.checkRows(name, len(indices)) {
		return
	}
	dictBuilder := array.NewStringBuilder(memory.NewGoAllocator())
	defer dictBuilder.Release()
	dictBuilder.AppendValues(dictionary, nil)
	dictArray := dictBuilder.NewArray()
	defer dictArray.Release()

	indexBuilder := array.NewInt32Builder(memory.NewGoAllocator())
	defer indexBuilder.Release()
	for i := range indices {
		if isNull(nulls, i) {
			indexBuilder.AppendNull()
		} else {
			indexBuilder.Append(indices[i])
		}
	}
	indexArray := indexBuilder.NewArray()
	defer indexArray.Release()

	dataType := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}
	b.add(name, octojit.String.WithNullable(nulls != nil), array.NewDictionaryArray(dataType, indexArray, dictArray))
}

func (b *Builder) Build() (execution.Record, error) {
	if b.err != nil {
		return execution.Record{}, b.err
	}
	schema := arrow.NewSchema(b.fields, nil)
	return execution.Record{Record: array.NewRecord(schema, b.columns, int64(b.rows))}, nil
}

// Schema is the schema of batches holding the given columns.
func Schema(columns []physical.Column) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, column := range columns {
		dataType := column.Type.ArrowDataType()
		if column.Encoding == octojit.EncodingDict {
			dataType = &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}
		}
		fields[i] = arrow.Field{Name: column.Name, Type: dataType, Nullable: column.Type.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}
