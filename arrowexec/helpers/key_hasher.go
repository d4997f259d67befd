package helpers

import (
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/segmentio/fasthash/fnv1a"
)

// HashKey hashes an integral key.
func HashKey(key int64) uint64 {
	return fnv1a.AddUint64(fnv1a.Init64, uint64(key))
}

// MakeKeyReader returns a function reading the key column as int64 keys, widened the same way generated code widens them.
// The second return value of the reader is false for null keys.
func MakeKeyReader(column arrow.Array) (func(rowIndex int) (int64, bool), error) {
	var value func(rowIndex int) int64
	switch column.DataType().ID() {
	case arrow.BOOL:
		typedArr := column.(*array.Boolean)
		value = func(rowIndex int) int64 {
			if typedArr.Value(rowIndex) {
				return 1
			}
			return 0
		}
	case arrow.INT8:
		typedArr := column.(*array.Int8).Int8Values()
		value = func(rowIndex int) int64 { return int64(typedArr[rowIndex]) }
	case arrow.INT16:
		typedArr := column.(*array.Int16).Int16Values()
		value = func(rowIndex int) int64 { return int64(typedArr[rowIndex]) }
	case arrow.INT32:
		typedArr := column.(*array.Int32).Int32Values()
		value = func(rowIndex int) int64 { return int64(typedArr[rowIndex]) }
	case arrow.INT64:
		typedArr := column.(*array.Int64).Int64Values()
		value = func(rowIndex int) int64 { return typedArr[rowIndex] }
	case arrow.DATE32:
		typedArr := column.(*array.Date32).Date32Values()
		value = func(rowIndex int) int64 { return int64(typedArr[rowIndex]) }
	case arrow.TIMESTAMP:
		typedArr := column.(*array.Timestamp).TimestampValues()
		value = func(rowIndex int) int64 { return int64(typedArr[rowIndex]) }
	case arrow.DICTIONARY:
		typedArr := column.(*array.Dictionary)
		value = func(rowIndex int) int64 { return int64(typedArr.GetValueIndex(rowIndex)) }
	default:
		return nil, fmt.Errorf("unsupported key type: %s", column.DataType())
	}
	return func(rowIndex int) (int64, bool) {
		if column.IsNull(rowIndex) {
			return 0, false
		}
		return value(rowIndex), true
	}, nil
}
