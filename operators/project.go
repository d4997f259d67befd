package operators

import (
	"fmt"

	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/abi"
	"github.com/cube2222/octojit/codegen"
)

// consumeProject appends a row to the output batch, growing it when it's full.
func (t *Translator) consumeProject(ctx *codegen.CodegenContext, vars *codegen.VariableContext) error {
	f := ctx.Function
	names := t.Node.Project.Names

	values := make([]codegen.Value, len(t.Node.Expressions))
	for i := range t.Node.Expressions {
		v, err := ctx.Expression(vars, t.Node.Expressions[i])
		if err != nil {
			return fmt.Errorf("couldn't lower target %s: %w", names[i], err)
		}
		values[i] = v
	}

	row := ctx.NewLocal("output_row", wasm.ValueTypeI32)
	f.LocalGet(codegen.ContextParam)
	f.Load(wasm.OpcodeI32Load, abi.ContextOutputRows)
	f.LocalTee(row)
	f.LocalGet(codegen.ContextParam)
	f.Load(wasm.OpcodeI32Load, abi.ContextOutputCapacity)
	f.AppendCode(wasm.OpcodeI32GeU)
	f.If()
	{
		f.LocalGet(codegen.ContextParam)
		f.Call("output_grow")
	}
	f.End()

	bitAddress := ctx.NewLocal("output_bit_address", wasm.ValueTypeI32)
	for i, v := range values {
		ctx.Output = append(ctx.Output, codegen.OutputColumn{
			Name:     names[i],
			Type:     v.Type.WithNullable(v.Nullable || t.bypassedNulls(ctx, i)),
			Encoding: v.Encoding,
			DictID:   v.DictID,
		})
		descriptor := uint32(i * abi.OutputColumnSize)

		if v.Nullable {
			f.LocalGet(v.Null)
			f.If()
			{
				// Clear the validity bit.
				emitOutputBuffer(ctx, descriptor+abi.OutputColumnValidity)
				f.LocalGet(row)
				f.I32Const(3)
				f.AppendCode(wasm.OpcodeI32ShrU)
				f.AppendCode(wasm.OpcodeI32Add)
				f.LocalTee(bitAddress)
				f.LocalGet(bitAddress)
				f.Load(wasm.OpcodeI32Load8U, 0)
				f.I32Const(1)
				f.LocalGet(row)
				f.I32Const(7)
				f.AppendCode(wasm.OpcodeI32And)
				f.AppendCode(wasm.OpcodeI32Shl)
				f.I32Const(-1)
				f.AppendCode(wasm.OpcodeI32Xor)
				f.AppendCode(wasm.OpcodeI32And)
				f.Store(wasm.OpcodeI32Store8, 0)
			}
			f.Else()
		}
		if v.IsString() {
			f.LocalGet(codegen.ContextParam)
			f.I32Const(int32(i))
			f.LocalGet(row)
			f.LocalGet(v.Local)
			f.LocalGet(v.Length)
			f.Call("output_set_string")
		} else {
			emitOutputBuffer(ctx, descriptor+abi.OutputColumnValues)
			f.LocalGet(row)
			if width := v.Type.ByteWidth(); width > 1 {
				f.I32Const(int32(width))
				f.AppendCode(wasm.OpcodeI32Mul)
			}
			f.AppendCode(wasm.OpcodeI32Add)
			f.LocalGet(v.Local)
			f.Store(codegen.StoreOpcode(v.Type), 0)
		}
		if v.Nullable {
			f.End()
		}
	}

	f.LocalGet(codegen.ContextParam)
	f.LocalGet(row)
	f.I32Const(1)
	f.AppendCode(wasm.OpcodeI32Add)
	f.Store(wasm.OpcodeI32Store, abi.ContextOutputRows)

	return t.consumeSuccessor(ctx, vars)
}

// emitOutputBuffer pushes a buffer address of an output column descriptor.
func emitOutputBuffer(ctx *codegen.CodegenContext, offset uint32) {
	f := ctx.Function
	f.LocalGet(codegen.ContextParam)
	f.Load(wasm.OpcodeI32Load, abi.ContextOutputBatch)
	f.Load(wasm.OpcodeI32Load, offset)
}

// nullSources returns the nullable source columns the target depends on.
// Targets which don't propagate nulls read their columns with null tracking, so they have none.
func (t *Translator) nullSources(target int) []codegen.ColumnReader {
	if !t.Node.Expressions[target].PropagatesNulls() {
		return nil
	}
	var out []codegen.ColumnReader
	for _, name := range t.Node.Expressions[target].Variables() {
		reader, ok := t.pipeline.readerOf(name)
		if ok && reader.Column.Type.Nullable {
			out = append(out, reader)
		}
	}
	return out
}

// bypassedNulls reports whether the target's nulls are left to the separate null handling pass.
func (t *Translator) bypassedNulls(ctx *codegen.CodegenContext, target int) bool {
	return ctx.Options.NullHandlingBypass && len(t.nullSources(target)) > 0
}

// consumeNullProject computes the output validity of targets as the conjunction of the validity of the source columns
// they depend on. The row loop ignores source nulls in this mode, so output rows have to map 1:1 to input rows.
func (t *Translator) consumeNullProject(ctx *codegen.CodegenContext) error {
	f := ctx.Function
	if head := t.pipeline.head; head.Node.Kind != KindSource || head.successor != t {
		return fmt.Errorf("separate null handling for a projection not directly over the source: %w", codegen.ErrUnsupported)
	}

	bytes := ctx.NewLocal("validity_bytes", wasm.ValueTypeI32)
	emitValidityBytes(ctx)
	f.LocalSet(bytes)

	destination := ctx.NewLocal("output_validity", wasm.ValueTypeI32)
	for i := range t.Node.Expressions {
		sources := t.nullSources(i)
		if len(sources) == 0 {
			continue
		}
		emitOutputBuffer(ctx, uint32(i*abi.OutputColumnSize)+abi.OutputColumnValidity)
		f.LocalSet(destination)
		for _, source := range sources {
			emitValidityAnd(ctx, destination, source.Validity, bytes)
		}
	}
	return nil
}
