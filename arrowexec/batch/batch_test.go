package batch

import (
	"testing"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octojit/octojit"
	"github.com/cube2222/octojit/physical"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder()
	AddColumn(b, "a", octojit.Int32.WithNullable(true), []int32{1, 2, 3}, []bool{false, true, false})
	AddColumn(b, "b", octojit.Float64, []float64{0.5, 1.5, 2.5}, nil)
	b.AddBoolColumn("c", []bool{true, false, true}, nil)
	b.AddStringColumn("d", []string{"x", "", "z"}, []bool{false, true, false})
	b.AddDictColumn("e", []string{"foo", "bar"}, []int32{1, 0, 1}, nil)

	record, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, int64(3), record.NumRows())
	assert.Equal(t, int64(5), record.NumCols())

	a := record.Column(0).(*array.Int32)
	assert.Equal(t, int32(1), a.Value(0))
	assert.True(t, a.IsNull(1))
	assert.True(t, record.Schema().Field(0).Nullable)
	assert.False(t, record.Schema().Field(1).Nullable)
	assert.Equal(t, 2.5, record.Column(1).(*array.Float64).Value(2))
	assert.False(t, record.Column(2).(*array.Boolean).Value(1))
	assert.Equal(t, "z", record.Column(3).(*array.String).Value(2))
	assert.True(t, record.Column(3).IsNull(1))

	dict := record.Column(4).(*array.Dictionary)
	assert.Equal(t, arrow.DICTIONARY, dict.DataType().ID())
	assert.Equal(t, 1, dict.GetValueIndex(0))
	assert.Equal(t, "foo", dict.Dictionary().(*array.String).Value(dict.GetValueIndex(1)))
}

func TestBuilderDateAndTimestamp(t *testing.T) {
	b := NewBuilder()
	AddColumn(b, "day", octojit.Date, []int32{19000}, nil)
	AddColumn(b, "at", octojit.Timestamp, []int64{1700000000000000}, nil)
	record, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, arrow.Date32(19000), record.Column(0).(*array.Date32).Value(0))
	assert.Equal(t, arrow.Timestamp(1700000000000000), record.Column(1).(*array.Timestamp).Value(0))
}

func TestBuilderRowCount(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.SetRowNum(2))
	assert.ErrorIs(t, b.SetRowNum(3), ErrRowCountSet)

	AddColumn(b, "a", octojit.Int64, []int64{1, 2, 3}, nil)
	_, err := b.Build()
	assert.ErrorIs(t, err, ErrRowCountMismatch)

	b = NewBuilder()
	AddColumn(b, "a", octojit.Int64, []int64{1, 2}, nil)
	b.AddStringColumn("b", []string{"x"}, nil)
	_, err = b.Build()
	assert.ErrorIs(t, err, ErrRowCountMismatch)

	b = NewBuilder()
	AddColumn(b, "a", octojit.Int64, []int64{1, 2}, []bool{true})
	_, err = b.Build()
	assert.ErrorIs(t, err, ErrRowCountMismatch)
}

func TestSchema(t *testing.T) {
	schema := Schema([]physical.Column{
		{Name: "id", Type: octojit.Int64},
		{Name: "name", Type: octojit.String.WithNullable(true), Encoding: octojit.EncodingDict, DictID: 1},
		{Name: "score", Type: octojit.Float64.WithNullable(true)},
	})

	require.Len(t, schema.Fields(), 3)
	assert.Equal(t, arrow.INT64, schema.Field(0).Type.ID())
	assert.False(t, schema.Field(0).Nullable)
	assert.Equal(t, arrow.DICTIONARY, schema.Field(1).Type.ID())
	assert.True(t, schema.Field(1).Nullable)
	assert.Equal(t, arrow.FLOAT64, schema.Field(2).Type.ID())
}
