package helpers

import (
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
)

// MakeColumnRewriter returns a function appending the given row of the array to the builder.
func MakeColumnRewriter(builder array.Builder, arr arrow.Array) (func(rowIndex int), error) {
	switch builder.Type().ID() {
	case arrow.BOOL:
		return rewriterForType[bool](builder.(*array.BooleanBuilder), arr.(*array.Boolean)), nil
	case arrow.INT8:
		return rewriterForType[int8](builder.(*array.Int8Builder), arr.(*array.Int8)), nil
	case arrow.INT16:
		return rewriterForType[int16](builder.(*array.Int16Builder), arr.(*array.Int16)), nil
	case arrow.INT32:
		return rewriterForType[int32](builder.(*array.Int32Builder), arr.(*array.Int32)), nil
	case arrow.INT64:
		return rewriterForType[int64](builder.(*array.Int64Builder), arr.(*array.Int64)), nil
	case arrow.FLOAT32:
		return rewriterForType[float32](builder.(*array.Float32Builder), arr.(*array.Float32)), nil
	case arrow.FLOAT64:
		return rewriterForType[float64](builder.(*array.Float64Builder), arr.(*array.Float64)), nil
	case arrow.DATE32:
		return rewriterForType[arrow.Date32](builder.(*array.Date32Builder), arr.(*array.Date32)), nil
	case arrow.TIMESTAMP:
		return rewriterForType[arrow.Timestamp](builder.(*array.TimestampBuilder), arr.(*array.Timestamp)), nil
	case arrow.STRING:
		return rewriterForType[string](builder.(*array.StringBuilder), arr.(*array.String)), nil
	default:
		return nil, fmt.Errorf("unsupported type for rewriting: %v", builder.Type())
	}
}

func rewriterForType[T any, BuilderType interface {
	Append(v T)
	AppendNull()
}, ArrayType interface {
	Value(i int) T
	IsNull(i int) bool
}](builder BuilderType, arr ArrayType) func(rowIndex int) {
	return func(rowIndex int) {
		if arr.IsNull(rowIndex) {
			builder.AppendNull()
			return
		}
		builder.Append(arr.Value(rowIndex))
	}
}
