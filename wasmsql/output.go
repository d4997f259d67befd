package wasmsql

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"

	"github.com/cube2222/octojit/abi"
	"github.com/cube2222/octojit/codegen"
	"github.com/cube2222/octojit/octojit"
)

type outputColumn struct {
	codegen.OutputColumn
	// width is zero for strings, which are kept on the host.
	width    uint32
	values   uint32
	validity uint32
}

func (column *outputColumn) hostString() bool {
	return column.Type.TypeID == octojit.TypeIDString && column.Encoding == octojit.EncodingNone
}

// outputState is the output batch of a projection. Rows are collected into arrow builders after every input batch.
type outputState struct {
	columns     []outputColumn
	descriptors uint32
	capacity    uint32
	strings     [][]string
	builder     *array.RecordBuilder
}

func outputSchema(columns []codegen.OutputColumn) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, column := range columns {
		fields[i] = arrow.Field{
			Name:     column.Name,
			Type:     column.Type.ArrowDataType(),
			Nullable: column.Type.Nullable,
		}
	}
	return arrow.NewSchema(fields, nil)
}

func (i *Instance) newOutputState(capacity uint32) (*outputState, error) {
	columns := make([]outputColumn, len(i.cc.Output))
	for c := range i.cc.Output {
		columns[c] = outputColumn{OutputColumn: i.cc.Output[c]}
		if !columns[c].hostString() {
			columns[c].width = uint32(columns[c].Type.ByteWidth())
		}
	}
	descriptors, err := i.Allocate(uint32(len(columns))*abi.OutputColumnSize, 4)
	if err != nil {
		return nil, err
	}
	output := &outputState{
		columns:     columns,
		descriptors: descriptors,
		strings:     make([][]string, len(columns)),
		builder:     array.NewRecordBuilder(memory.NewGoAllocator(), outputSchema(i.cc.Output)),
	}
	if err := i.allocateOutputBuffers(output, capacity); err != nil {
		return nil, err
	}
	i.writeUint32(i.context+abi.ContextOutputBatch, descriptors)
	return output, nil
}

// allocateOutputBuffers replaces the column buffers with buffers of the given capacity, keeping the rows written so far.
func (i *Instance) allocateOutputBuffers(output *outputState, capacity uint32) error {
	for c := range output.columns {
		column := &output.columns[c]

		var values uint32
		if column.width > 0 {
			var err error
			if values, err = i.Allocate(capacity*column.width, 8); err != nil {
				return err
			}
			if column.values != 0 {
				i.write(values, i.read(column.values, output.capacity*column.width))
			}
		}
		validity, err := i.Allocate(abi.ValidityBytes(capacity), 8)
		if err != nil {
			return err
		}
		i.write(validity, bytes.Repeat([]byte{0xFF}, int(abi.ValidityBytes(capacity))))
		if column.validity != 0 {
			i.write(validity, i.read(column.validity, abi.ValidityBytes(output.capacity)))
		}

		column.values, column.validity = values, validity
		descriptor := output.descriptors + uint32(c)*abi.OutputColumnSize
		i.writeUint32(descriptor+abi.OutputColumnValues, values)
		i.writeUint32(descriptor+abi.OutputColumnValidity, validity)
	}
	output.capacity = capacity
	i.writeUint32(i.context+abi.ContextOutputCapacity, capacity)
	return nil
}

func (i *Instance) GrowOutput() error {
	if i.output == nil {
		return fmt.Errorf("query has no output batch")
	}
	return i.allocateOutputBuffers(i.output, 2*i.output.capacity)
}

func (i *Instance) SetOutputString(column, row uint32, value string) {
	strs := i.output.strings[column]
	for uint32(len(strs)) <= row {
		strs = append(strs, "")
	}
	strs[row] = value
	i.output.strings[column] = strs
}

// collectOutput moves the rows of the output batch into the builders and resets the batch.
func (i *Instance) collectOutput() error {
	output := i.output
	rows := i.readUint32(i.context + abi.ContextOutputRows)
	if rows == 0 {
		return nil
	}

	for c := range output.columns {
		column := &output.columns[c]
		builder := output.builder.Field(c)
		builder.Reserve(int(rows))

		validity := i.read(column.validity, abi.ValidityBytes(rows))
		var values []byte
		if column.width > 0 {
			values = i.read(column.values, rows*column.width)
		}

		for row := uint32(0); row < rows; row++ {
			if validity[row>>3]&(1<<(row&7)) == 0 {
				builder.AppendNull()
				continue
			}
			value, err := i.outputValue(c, values, row)
			if err != nil {
				return fmt.Errorf("couldn't read output column %s: %w", column.Name, err)
			}
			appendValue(builder, value)
		}

		i.write(column.validity, bytes.Repeat([]byte{0xFF}, len(validity)))
		output.strings[c] = output.strings[c][:0]
	}

	i.writeUint32(i.context+abi.ContextOutputRows, 0)
	return nil
}

func (i *Instance) outputValue(c int, values []byte, row uint32) (octojit.Value, error) {
	column := &i.output.columns[c]
	if column.hostString() {
		strs := i.output.strings[c]
		if row >= uint32(len(strs)) {
			return octojit.NewString(""), nil
		}
		return octojit.NewString(strs[row]), nil
	}
	bits := readBits(values[row*column.width:], column.width)
	if column.Type.TypeID == octojit.TypeIDString {
		return i.dictionaryString(column.DictID, int32(bits))
	}
	return octojit.ValueFromBits(column.Type, bits), nil
}

func (i *Instance) dictionaryString(dictID int, id int32) (octojit.Value, error) {
	dictionary, ok := i.cc.Dictionaries[dictID]
	if !ok {
		return octojit.Value{}, fmt.Errorf("unknown string dictionary %d", dictID)
	}
	if id < 0 || int(id) >= len(dictionary) {
		return octojit.Value{}, fmt.Errorf("string id %d out of range of dictionary %d", id, dictID)
	}
	return octojit.NewString(dictionary[id]), nil
}

func readBits(data []byte, width uint32) uint64 {
	switch width {
	case 1:
		return uint64(data[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(data))
	case 4:
		return uint64(binary.LittleEndian.Uint32(data))
	case 8:
		return binary.LittleEndian.Uint64(data)
	}
	panic(fmt.Sprintf("invalid value width: %d", width))
}

func appendValue(builder array.Builder, value octojit.Value) {
	if value.Null {
		builder.AppendNull()
		return
	}
	switch builder := builder.(type) {
	case *array.BooleanBuilder:
		builder.Append(value.Boolean)
	case *array.Int8Builder:
		builder.Append(int8(value.Int))
	case *array.Int16Builder:
		builder.Append(int16(value.Int))
	case *array.Int32Builder:
		builder.Append(int32(value.Int))
	case *array.Int64Builder:
		builder.Append(value.Int)
	case *array.Float32Builder:
		builder.Append(float32(value.Float))
	case *array.Float64Builder:
		builder.Append(value.Float)
	case *array.Date32Builder:
		builder.Append(arrow.Date32(value.Int))
	case *array.TimestampBuilder:
		builder.Append(arrow.Timestamp(value.Int))
	case *array.StringBuilder:
		builder.Append(value.Str)
	default:
		panic(fmt.Sprintf("unsupported builder type: %T", builder))
	}
}
