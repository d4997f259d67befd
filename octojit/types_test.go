package octojit

import (
	"fmt"
	"testing"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/stretchr/testify/assert"
)

func TestTypeByteWidth(t *testing.T) {
	tests := []struct {
		t    Type
		want int
	}{
		{t: Boolean, want: 1},
		{t: Int8, want: 1},
		{t: Int16, want: 2},
		{t: Int32, want: 4},
		{t: Date, want: 4},
		{t: Float32, want: 4},
		{t: String, want: 4},
		{t: ListOf(Int64), want: 4},
		{t: Int64, want: 8},
		{t: Timestamp, want: 8},
		{t: Float64, want: 8},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.t.ByteWidth())
		})
	}
}

func TestTypeArrowRoundTrip(t *testing.T) {
	for _, typ := range []Type{Boolean, Int8, Int16, Int32, Int64, Float32, Float64, String, Date, Timestamp} {
		got, err := TypeFromArrow(typ.ArrowDataType(), true)
		assert.NoError(t, err)
		assert.True(t, got.Equals(typ), "%s != %s", got, typ)
		assert.True(t, got.Nullable)
	}

	dictType := &arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String}
	got, err := TypeFromArrow(dictType, false)
	assert.NoError(t, err)
	assert.Equal(t, String, got)

	_, err = TypeFromArrow(arrow.BinaryTypes.Binary, false)
	assert.Error(t, err)
}

func TestValueBits(t *testing.T) {
	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), NewInt32(-1).Bits())
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, NewInt32(-1).AppendBytes(nil))
	assert.Equal(t, []byte{1}, NewBoolean(true).AppendBytes(nil))
	assert.Equal(t, []byte{0, 0, 0x80, 0x3F}, NewFloat32(1).AppendBytes(nil))

	assert.True(t, ValueFromBits(Int16, NewInt16(-5).Bits()).Equal(NewInt16(-5)))
	assert.True(t, ValueFromBits(Float64, NewFloat64(2.5).Bits()).Equal(NewFloat64(2.5)))
}

func TestValueEqual(t *testing.T) {
	assert.True(t, NewString("a").Equal(NewString("a")))
	assert.False(t, NewString("a").Equal(NewString("b")))
	assert.False(t, NewInt32(1).Equal(NewInt64(1)))
	assert.True(t, NewNull(Int32).Equal(NewNull(Int32)))
	assert.False(t, NewNull(Int32).Equal(NewInt32(0)))
	assert.True(t, NewList(Int64, []Value{NewInt64(1), NewInt64(2)}).Equal(NewList(Int64, []Value{NewInt64(1), NewInt64(2)})))
	assert.Equal(t, "[1, 2]", NewList(Int64, []Value{NewInt64(1), NewInt64(2)}).String())
}
