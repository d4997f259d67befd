package operators

import (
	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/abi"
	"github.com/cube2222/octojit/codegen"
)

// consumeSource loops over the rows of the input batch, reading the referenced columns of each row.
func (t *Translator) consumeSource(ctx *codegen.CodegenContext, vars *codegen.VariableContext) error {
	f := ctx.Function
	columns := t.Node.Source.Columns

	readers := make([]codegen.ColumnReader, len(columns))
	for i := range columns {
		readers[i] = ctx.EmitColumnReader(codegen.InputParam, i, columns[i])
	}
	t.pipeline.readers = readers

	rows := ctx.NewLocal("rows", wasm.ValueTypeI32)
	row := ctx.NewLocal("row", wasm.ValueTypeI32)
	ctx.EmitRowCount(codegen.InputParam)
	f.LocalSet(rows)
	f.I32Const(0)
	f.LocalSet(row)

	// Nulls are handled in a separate pass when bypassed.
	bypass := ctx.Options.NullHandlingBypass

	done := f.Block()
	{
		loop := f.Loop()
		{
			f.LocalGet(row)
			f.LocalGet(rows)
			f.AppendCode(wasm.OpcodeI32GeU)
			f.BrIf(done)

			var bindings []codegen.ColumnBinding
			for i := range readers {
				if !t.pipeline.referenced[columns[i].Name] {
					continue
				}
				bindings = append(bindings, codegen.ColumnBinding{
					Name:  columns[i].Name,
					Value: ctx.EmitColumnRead(readers[i], row, !bypass || t.pipeline.tracked[columns[i].Name]),
				})
			}

			if err := t.consumeSuccessor(ctx, vars.WithColumns(bindings)); err != nil {
				return err
			}

			f.LocalGet(row)
			f.I32Const(1)
			f.AppendCode(wasm.OpcodeI32Add)
			f.LocalSet(row)
			f.Br(loop)
		}
		f.End()
	}
	f.End()

	return nil
}

// readerOf returns the source reader of the column, if any.
func (state *pipelineState) readerOf(name string) (codegen.ColumnReader, bool) {
	for i := range state.readers {
		if state.readers[i].Column.Name == name {
			return state.readers[i], true
		}
	}
	return codegen.ColumnReader{}, false
}

// emitValidityAnd ands the first bytes of the source bitmap into the destination bitmap, skipping absent sources.
func emitValidityAnd(ctx *codegen.CodegenContext, destination, source, bytes uint32) {
	f := ctx.Function
	i := ctx.NewLocal("validity_byte", wasm.ValueTypeI32)
	address := ctx.NewLocal("validity_address", wasm.ValueTypeI32)

	f.LocalGet(source)
	f.If()
	{
		f.I32Const(0)
		f.LocalSet(i)
		done := f.Block()
		{
			loop := f.Loop()
			{
				f.LocalGet(i)
				f.LocalGet(bytes)
				f.AppendCode(wasm.OpcodeI32GeU)
				f.BrIf(done)

				f.LocalGet(destination)
				f.LocalGet(i)
				f.AppendCode(wasm.OpcodeI32Add)
				f.LocalTee(address)
				f.LocalGet(address)
				f.Load(wasm.OpcodeI32Load8U, 0)
				f.LocalGet(source)
				f.LocalGet(i)
				f.AppendCode(wasm.OpcodeI32Add)
				f.Load(wasm.OpcodeI32Load8U, 0)
				f.AppendCode(wasm.OpcodeI32And)
				f.Store(wasm.OpcodeI32Store8, 0)

				f.LocalGet(i)
				f.I32Const(1)
				f.AppendCode(wasm.OpcodeI32Add)
				f.LocalSet(i)
				f.Br(loop)
			}
			f.End()
		}
		f.End()
	}
	f.End()
}

// emitValidityBytes pushes the bitmap size of the input batch.
func emitValidityBytes(ctx *codegen.CodegenContext) {
	f := ctx.Function
	f.LocalGet(codegen.InputParam)
	f.Load(wasm.OpcodeI32Load, abi.ArrayLength)
	f.I32Const(7)
	f.AppendCode(wasm.OpcodeI32Add)
	f.I32Const(3)
	f.AppendCode(wasm.OpcodeI32ShrU)
}
