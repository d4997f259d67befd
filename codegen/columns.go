package codegen

import (
	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/abi"
	"github.com/cube2222/octojit/octojit"
	"github.com/cube2222/octojit/physical"
)

// ColumnReader holds the buffer addresses of a single column of a batch.
type ColumnReader struct {
	Column   physical.Column
	Array    uint32
	Validity uint32
	Values   uint32
	Data     uint32

	scratch uint32
	start   uint32
}

// EmitColumnReader loads the buffer addresses of the index-th child of the struct array held in batch.
func (ctx *CodegenContext) EmitColumnReader(batch uint32, index int, column physical.Column) ColumnReader {
	f := ctx.Function
	name := ctx.Unique("column_" + column.Name)
	reader := ColumnReader{
		Column:   column,
		Array:    f.AddLocal(name+"_array", wasm.ValueTypeI32),
		Validity: f.AddLocal(name+"_validity", wasm.ValueTypeI32),
		Values:   f.AddLocal(name+"_values", wasm.ValueTypeI32),
	}

	f.LocalGet(batch)
	f.Load(wasm.OpcodeI32Load, abi.ArrayChildren)
	f.Load(wasm.OpcodeI32Load, uint32(index*4))
	f.LocalSet(reader.Array)

	buffers := ctx.NewLocal(name+"_buffers", wasm.ValueTypeI32)
	f.LocalGet(reader.Array)
	f.Load(wasm.OpcodeI32Load, abi.ArrayBuffers)
	f.LocalSet(buffers)

	f.LocalGet(buffers)
	f.Load(wasm.OpcodeI32Load, abi.BufferValidity*4)
	f.LocalSet(reader.Validity)

	f.LocalGet(buffers)
	f.Load(wasm.OpcodeI32Load, abi.BufferValues*4)
	f.LocalSet(reader.Values)

	if column.Type.TypeID == octojit.TypeIDString && column.Encoding == octojit.EncodingNone {
		reader.Data = f.AddLocal(name+"_data", wasm.ValueTypeI32)
		reader.scratch = f.AddLocal(name+"_scratch", wasm.ValueTypeI32)
		reader.start = f.AddLocal(name+"_start", wasm.ValueTypeI32)
		f.LocalGet(buffers)
		f.Load(wasm.OpcodeI32Load, abi.BufferData*4)
		f.LocalSet(reader.Data)
	}

	return reader
}

// EmitBitLoad pushes the row-th bit of the LSB-first bitmap.
func (ctx *CodegenContext) EmitBitLoad(bitmap, row uint32) {
	f := ctx.Function
	f.LocalGet(bitmap)
	f.LocalGet(row)
	f.I32Const(3)
	f.AppendCode(wasm.OpcodeI32ShrU)
	f.AppendCode(wasm.OpcodeI32Add)
	f.Load(wasm.OpcodeI32Load8U, 0)
	f.LocalGet(row)
	f.I32Const(7)
	f.AppendCode(wasm.OpcodeI32And)
	f.AppendCode(wasm.OpcodeI32ShrU)
	f.I32Const(1)
	f.AppendCode(wasm.OpcodeI32And)
}

// EmitColumnRead reads the row-th value of the column into a new value.
// Without null tracking the validity bitmap is ignored and the value is non-nullable.
func (ctx *CodegenContext) EmitColumnRead(reader ColumnReader, row uint32, trackNulls bool) Value {
	f := ctx.Function
	column := reader.Column
	v := ctx.NewValue(column.Name, column.Type, trackNulls && column.Type.Nullable)
	v.Encoding = column.Encoding
	v.DictID = column.DictID

	switch {
	case column.Type.TypeID == octojit.TypeIDBoolean:
		ctx.EmitBitLoad(reader.Values, row)
		f.LocalSet(v.Local)

	case column.Type.TypeID == octojit.TypeIDString && column.Encoding == octojit.EncodingDict:
		f.LocalGet(reader.Values)
		f.LocalGet(row)
		f.I32Const(2)
		f.AppendCode(wasm.OpcodeI32Shl)
		f.AppendCode(wasm.OpcodeI32Add)
		f.Load(wasm.OpcodeI32Load, 0)
		f.LocalSet(v.Local)

	case column.Type.TypeID == octojit.TypeIDString:
		f.LocalGet(reader.Values)
		f.LocalGet(row)
		f.I32Const(2)
		f.AppendCode(wasm.OpcodeI32Shl)
		f.AppendCode(wasm.OpcodeI32Add)
		f.LocalTee(reader.scratch)
		f.Load(wasm.OpcodeI32Load, 4)
		f.LocalGet(reader.scratch)
		f.Load(wasm.OpcodeI32Load, 0)
		f.LocalTee(reader.start)
		f.AppendCode(wasm.OpcodeI32Sub)
		f.LocalSet(v.Length)
		f.LocalGet(reader.Data)
		f.LocalGet(reader.start)
		f.AppendCode(wasm.OpcodeI32Add)
		f.LocalSet(v.Local)

	default:
		f.LocalGet(reader.Values)
		f.LocalGet(row)
		if width := column.Type.ByteWidth(); width > 1 {
			f.I32Const(int32(width))
			f.AppendCode(wasm.OpcodeI32Mul)
		}
		f.AppendCode(wasm.OpcodeI32Add)
		f.Load(LoadOpcode(column.Type), 0)
		f.LocalSet(v.Local)
	}

	if v.Nullable {
		f.LocalGet(reader.Validity)
		f.If()
		ctx.EmitBitLoad(reader.Validity, row)
		f.AppendCode(wasm.OpcodeI32Eqz)
		f.LocalSet(v.Null)
		f.Else()
		f.I32Const(0)
		f.LocalSet(v.Null)
		f.End()
	}

	return v
}

// EmitRowCount pushes the length of the array held in array.
func (ctx *CodegenContext) EmitRowCount(array uint32) {
	ctx.Function.LocalGet(array)
	ctx.Function.Load(wasm.OpcodeI32Load, abi.ArrayLength)
}
