package wasmsql

import (
	"encoding/binary"
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"

	"github.com/cube2222/octojit/abi"
	"github.com/cube2222/octojit/octojit"
	"github.com/cube2222/octojit/physical"
)

// batchWriter lays out a batch in a contiguous buffer. Pointers are written relative to the buffer start
// and relocated once the buffer's address in memory is known.
type batchWriter struct {
	buf      []byte
	pointers []uint32
}

// reserve returns the offset of zeroed space of the given size.
func (w *batchWriter) reserve(size, alignment uint32) uint32 {
	start := len(w.buf)
	offset := abi.AlignUp(uint32(start), alignment)
	end := int(offset + size)
	if end > cap(w.buf) {
		grown := make([]byte, start, 2*cap(w.buf)+end)
		copy(grown, w.buf)
		w.buf = grown
	}
	w.buf = w.buf[:end]
	for i := start; i < end; i++ {
		w.buf[i] = 0
	}
	return offset
}

func (w *batchWriter) appendBytes(data []byte, alignment uint32) uint32 {
	offset := w.reserve(uint32(len(data)), alignment)
	copy(w.buf[offset:], data)
	return offset
}

func (w *batchWriter) putUint32(at, value uint32) {
	binary.LittleEndian.PutUint32(w.buf[at:], value)
}

func (w *batchWriter) putPointer(at, target uint32) {
	w.putUint32(at, target)
	w.pointers = append(w.pointers, at)
}

func (w *batchWriter) relocate(base uint32) []byte {
	for _, at := range w.pointers {
		w.putUint32(at, binary.LittleEndian.Uint32(w.buf[at:])+base)
	}
	w.pointers = w.pointers[:0]
	return w.buf
}

func (w *batchWriter) reset() {
	w.buf = w.buf[:0]
	w.pointers = w.pointers[:0]
}

// encodeRecord lays out the record as a struct array whose children are the columns. The struct array is at offset 0.
func encodeRecord(record arrow.Record, columns []physical.Column) (*batchWriter, error) {
	w := &batchWriter{}
	if err := w.writeRecord(record, columns); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *batchWriter) writeRecord(record arrow.Record, columns []physical.Column) error {
	if int(record.NumCols()) != len(columns) {
		return fmt.Errorf("batch has %d columns, expected %d", record.NumCols(), len(columns))
	}

	structArray := w.reserve(abi.ArraySize, 8)
	buffers := w.reserve(4, 4)
	children := w.reserve(uint32(len(columns))*4, 4)
	w.putUint32(structArray+abi.ArrayLength, uint32(record.NumRows()))
	w.putUint32(structArray+abi.ArrayNBuffers, 1)
	w.putUint32(structArray+abi.ArrayNChildren, uint32(len(columns)))
	w.putPointer(structArray+abi.ArrayBuffers, buffers)
	w.putPointer(structArray+abi.ArrayChildren, children)

	for i, column := range columns {
		child, err := w.writeArray(record.Column(i), column)
		if err != nil {
			return fmt.Errorf("couldn't write column %s: %w", column.Name, err)
		}
		w.putPointer(children+uint32(i)*4, child)
	}
	return nil
}

func (w *batchWriter) writeArray(arr arrow.Array, column physical.Column) (uint32, error) {
	t, err := octojit.TypeFromArrow(arr.DataType(), true)
	if err != nil {
		return 0, err
	}
	if t.TypeID != column.Type.TypeID {
		return 0, fmt.Errorf("array of type %s in a column of type %s", t, column.Type)
	}
	if dict := arr.DataType().ID() == arrow.DICTIONARY; dict != (column.Encoding == octojit.EncodingDict) {
		return 0, fmt.Errorf("array of type %s in a column with %s encoding", arr.DataType(), column.Encoding)
	}

	length := uint32(arr.Len())
	nBuffers := uint32(2)
	if t.TypeID == octojit.TypeIDString && column.Encoding == octojit.EncodingNone {
		nBuffers = 3
	}

	header := w.reserve(abi.ArraySize, 8)
	buffers := w.reserve(nBuffers*4, 4)
	w.putUint32(header+abi.ArrayLength, length)
	w.putUint32(header+abi.ArrayNullCount, uint32(arr.NullN()))
	w.putUint32(header+abi.ArrayNBuffers, nBuffers)
	w.putPointer(header+abi.ArrayBuffers, buffers)

	if arr.NullN() > 0 {
		validity := w.reserve(abi.ValidityBytes(length), 8)
		for row := 0; row < arr.Len(); row++ {
			if arr.IsValid(row) {
				w.buf[validity+uint32(row>>3)] |= 1 << (row & 7)
			}
		}
		w.putPointer(buffers+abi.BufferValidity*4, validity)
	}

	var values uint32
	switch arr := arr.(type) {
	case *array.Boolean:
		values = w.reserve(abi.ValidityBytes(length), 8)
		for row := 0; row < arr.Len(); row++ {
			if arr.IsValid(row) && arr.Value(row) {
				w.buf[values+uint32(row>>3)] |= 1 << (row & 7)
			}
		}
	case *array.Int8:
		values = w.appendBytes(arrow.Int8Traits.CastToBytes(arr.Int8Values()), 8)
	case *array.Int16:
		values = w.appendBytes(arrow.Int16Traits.CastToBytes(arr.Int16Values()), 8)
	case *array.Int32:
		values = w.appendBytes(arrow.Int32Traits.CastToBytes(arr.Int32Values()), 8)
	case *array.Int64:
		values = w.appendBytes(arrow.Int64Traits.CastToBytes(arr.Int64Values()), 8)
	case *array.Float32:
		values = w.appendBytes(arrow.Float32Traits.CastToBytes(arr.Float32Values()), 8)
	case *array.Float64:
		values = w.appendBytes(arrow.Float64Traits.CastToBytes(arr.Float64Values()), 8)
	case *array.Date32:
		values = w.appendBytes(arrow.Date32Traits.CastToBytes(arr.Date32Values()), 8)
	case *array.Timestamp:
		values = w.appendBytes(arrow.TimestampTraits.CastToBytes(arr.TimestampValues()), 8)
	case *array.String:
		values = w.reserve((length+1)*4, 8)
		var size uint32
		for row := 0; row < arr.Len(); row++ {
			size += uint32(len(arr.Value(row)))
		}
		data := w.reserve(size, 8)
		var position uint32
		for row := 0; row < arr.Len(); row++ {
			w.putUint32(values+uint32(row)*4, position)
			position += uint32(copy(w.buf[data+position:], arr.Value(row)))
		}
		w.putUint32(values+length*4, position)
		w.putPointer(buffers+abi.BufferData*4, data)
	case *array.Dictionary:
		values = w.reserve(length*4, 8)
		for row := 0; row < arr.Len(); row++ {
			if arr.IsValid(row) {
				w.putUint32(values+uint32(row)*4, uint32(arr.GetValueIndex(row)))
			}
		}
	default:
		return 0, fmt.Errorf("unsupported array type: %s", arr.DataType())
	}
	w.putPointer(buffers+abi.BufferValues*4, values)

	return header, nil
}
