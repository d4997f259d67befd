package lib

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

type AggregateOp int

const (
	AggregateOpSum AggregateOp = iota
	AggregateOpMin
	AggregateOpMax
)

func (op AggregateOp) String() string {
	switch op {
	case AggregateOpSum:
		return "sum"
	case AggregateOpMin:
		return "min"
	case AggregateOpMax:
		return "max"
	}
	return fmt.Sprintf("AggregateOp(%d)", int(op))
}

type Width int

const (
	WidthInt8 Width = iota
	WidthInt16
	WidthInt32
	WidthInt64
	WidthFloat
	WidthDouble
)

func (w Width) String() string {
	switch w {
	case WidthInt8:
		return "int8"
	case WidthInt16:
		return "int16"
	case WidthInt32:
		return "int32"
	case WidthInt64:
		return "int64"
	case WidthFloat:
		return "float"
	case WidthDouble:
		return "double"
	}
	return fmt.Sprintf("Width(%d)", int(w))
}

// Size is the accumulator size in bytes.
func (w Width) Size() uint32 {
	switch w {
	case WidthInt8:
		return 1
	case WidthInt16:
		return 2
	case WidthInt32, WidthFloat:
		return 4
	default:
		return 8
	}
}

// ValueType is the type the value argument is passed as.
func (w Width) ValueType() api.ValueType {
	switch w {
	case WidthInt64:
		return api.ValueTypeI64
	case WidthFloat:
		return api.ValueTypeF32
	case WidthDouble:
		return api.ValueTypeF64
	default:
		return api.ValueTypeI32
	}
}

type Variant struct {
	// WithOffset variants take a buffer and an int64 index instead of a single accumulator.
	WithOffset bool
	// Nullable variants take the null byte address and an is-null flag.
	// They only update when the value is not null, clearing the null byte in that case.
	Nullable bool
}

var Variants = []Variant{
	{},
	{Nullable: true},
	{WithOffset: true},
	{WithOffset: true, Nullable: true},
}

func (v Variant) suffix() string {
	out := ""
	if v.WithOffset {
		out += "_with_offset"
	}
	if v.Nullable {
		out += "_nullable"
	}
	return out
}

func AggregateFunctionName(op AggregateOp, width Width, variant Variant) string {
	return fmt.Sprintf("agg_%s_%s%s", op, width, variant.suffix())
}

func CountFunctionName(variant Variant) string {
	return "agg_count" + variant.suffix()
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// cell describes how a single accumulator of type T is passed on the stack and stored in memory.
type cell[T number] struct {
	size   uint32
	decode func(stack uint64) T
	read   func(mem api.Memory, offset uint32) T
	write  func(mem api.Memory, offset uint32, value T)
}

var (
	int8Cell = cell[int8]{
		size:   1,
		decode: func(stack uint64) int8 { return int8(api.DecodeI32(stack)) },
		read:   func(mem api.Memory, offset uint32) int8 { return int8(readByte(mem, offset)) },
		write:  func(mem api.Memory, offset uint32, value int8) { writeByte(mem, offset, byte(value)) },
	}
	int16Cell = cell[int16]{
		size:   2,
		decode: func(stack uint64) int16 { return int16(api.DecodeI32(stack)) },
		read: func(mem api.Memory, offset uint32) int16 {
			value, ok := mem.ReadUint16Le(offset)
			if !ok {
				panic(outOfBounds(2, offset))
			}
			return int16(value)
		},
		write: func(mem api.Memory, offset uint32, value int16) {
			if !mem.WriteUint16Le(offset, uint16(value)) {
				panic(outOfBounds(2, offset))
			}
		},
	}
	int32Cell = cell[int32]{
		size:   4,
		decode: api.DecodeI32,
		read:   func(mem api.Memory, offset uint32) int32 { return int32(readUint32(mem, offset)) },
		write:  func(mem api.Memory, offset uint32, value int32) { writeUint32(mem, offset, uint32(value)) },
	}
	int64Cell = cell[int64]{
		size:   8,
		decode: func(stack uint64) int64 { return int64(stack) },
		read:   func(mem api.Memory, offset uint32) int64 { return int64(readUint64(mem, offset)) },
		write:  func(mem api.Memory, offset uint32, value int64) { writeUint64(mem, offset, uint64(value)) },
	}
	floatCell = cell[float32]{
		size:   4,
		decode: api.DecodeF32,
		read: func(mem api.Memory, offset uint32) float32 {
			value, ok := mem.ReadFloat32Le(offset)
			if !ok {
				panic(outOfBounds(4, offset))
			}
			return value
		},
		write: func(mem api.Memory, offset uint32, value float32) {
			if !mem.WriteFloat32Le(offset, value) {
				panic(outOfBounds(4, offset))
			}
		},
	}
	doubleCell = cell[float64]{
		size:   8,
		decode: api.DecodeF64,
		read: func(mem api.Memory, offset uint32) float64 {
			value, ok := mem.ReadFloat64Le(offset)
			if !ok {
				panic(outOfBounds(8, offset))
			}
			return value
		},
		write: func(mem api.Memory, offset uint32, value float64) {
			if !mem.WriteFloat64Le(offset, value) {
				panic(outOfBounds(8, offset))
			}
		},
	}
)

func combiner[T number](op AggregateOp) func(acc, value T) T {
	switch op {
	case AggregateOpSum:
		return func(acc, value T) T { return acc + value }
	case AggregateOpMin:
		return func(acc, value T) T {
			if value < acc {
				return value
			}
			return acc
		}
	case AggregateOpMax:
		return func(acc, value T) T {
			if value > acc {
				return value
			}
			return acc
		}
	}
	panic(fmt.Sprintf("unknown aggregate op: %s", op))
}

func aggregateFunction(op AggregateOp, width Width, variant Variant) *Function {
	switch width {
	case WidthInt8:
		return newAggregateFunction(op, width, variant, int8Cell)
	case WidthInt16:
		return newAggregateFunction(op, width, variant, int16Cell)
	case WidthInt32:
		return newAggregateFunction(op, width, variant, int32Cell)
	case WidthInt64:
		return newAggregateFunction(op, width, variant, int64Cell)
	case WidthFloat:
		return newAggregateFunction(op, width, variant, floatCell)
	case WidthDouble:
		return newAggregateFunction(op, width, variant, doubleCell)
	}
	panic(fmt.Sprintf("unknown aggregate width: %s", width))
}

// newAggregateFunction is the single implementation behind all sum/min/max variants.
// Parameters: accumulator (or buffer) pointer, [index i64], value, [null byte pointer, is null].
func newAggregateFunction[T number](op AggregateOp, width Width, variant Variant, c cell[T]) *Function {
	apply := combiner[T](op)

	params := []api.ValueType{api.ValueTypeI32}
	if variant.WithOffset {
		params = append(params, api.ValueTypeI64)
	}
	params = append(params, width.ValueType())
	if variant.Nullable {
		params = append(params, api.ValueTypeI32, api.ValueTypeI32)
	}

	impl := func(ctx context.Context, mod api.Module, stack []uint64) {
		ptr := api.DecodeU32(stack[0])
		arg := 1
		var index uint32
		if variant.WithOffset {
			index = uint32(stack[arg])
			arg++
		}
		value := c.decode(stack[arg])
		mem := mod.Memory()
		if variant.Nullable {
			if api.DecodeU32(stack[arg+2]) != 0 {
				return
			}
			writeByte(mem, api.DecodeU32(stack[arg+1])+index, 0)
		}
		offset := ptr + index*c.size
		c.write(mem, offset, apply(c.read(mem, offset), value))
	}

	return &Function{
		Name:   AggregateFunctionName(op, width, variant),
		Params: params,
		Impl:   impl,
	}
}

// countFunction increments an int64 counter.
// Parameters: counter (or buffer) pointer, [index i64], [null byte pointer, is null].
func countFunction(variant Variant) *Function {
	params := []api.ValueType{api.ValueTypeI32}
	if variant.WithOffset {
		params = append(params, api.ValueTypeI64)
	}
	if variant.Nullable {
		params = append(params, api.ValueTypeI32, api.ValueTypeI32)
	}

	impl := func(ctx context.Context, mod api.Module, stack []uint64) {
		ptr := api.DecodeU32(stack[0])
		arg := 1
		var index uint32
		if variant.WithOffset {
			index = uint32(stack[arg])
			arg++
		}
		mem := mod.Memory()
		if variant.Nullable {
			if api.DecodeU32(stack[arg+1]) != 0 {
				return
			}
			writeByte(mem, api.DecodeU32(stack[arg])+index, 0)
		}
		offset := ptr + index*8
		int64Cell.write(mem, offset, int64Cell.read(mem, offset)+1)
	}

	return &Function{
		Name:   CountFunctionName(variant),
		Params: params,
		Impl:   impl,
	}
}
