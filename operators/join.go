package operators

import (
	"fmt"

	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/abi"
	"github.com/cube2222/octojit/codegen"
	"github.com/cube2222/octojit/physical"
)

// consumeJoinProbe looks the key up in the hash table and passes the row on once for every match,
// with the build-side columns of the match bound.
func (t *Translator) consumeJoinProbe(ctx *codegen.CodegenContext, vars *codegen.VariableContext) error {
	f := ctx.Function
	condition := t.Node.JoinProbe.Condition
	if condition.JoinType != physical.JoinTypeInner {
		return fmt.Errorf("%s join: %w", condition.JoinType, codegen.ErrUnsupported)
	}
	if len(t.Node.Expressions) != 1 {
		return fmt.Errorf("join with %d keys: %w", len(t.Node.Expressions), codegen.ErrUnsupported)
	}

	key, err := ctx.Expression(vars, t.Node.Expressions[0])
	if err != nil {
		return err
	}

	index := len(ctx.Layout.Joins)
	prefix := fmt.Sprintf("join_%d", index)
	state := codegen.JoinState{
		HashTable:    condition.HashTable,
		BuildColumns: condition.BuildColumns,
		Handle:       ctx.Layout.Allocate(prefix+"_handle", 4, 4),
		Key:          ctx.Layout.Allocate(prefix+"_key", 8, 8),
		KeyNull:      ctx.Layout.Allocate(prefix+"_key_null", 1, 1),
		Buffer:       ctx.Layout.Allocate(prefix+"_buffer", abi.BufferSize+4, 4),
	}
	ctx.Layout.Joins = append(ctx.Layout.Joins, state)

	f.LocalGet(codegen.ContextParam)
	if err := pushKey(ctx, key); err != nil {
		return err
	}
	f.Store(wasm.OpcodeI64Store, state.Key)
	f.LocalGet(codegen.ContextParam)
	ctx.EmitNull(key)
	f.Store(wasm.OpcodeI32Store8, state.KeyNull)

	f.LocalGet(codegen.ContextParam)
	f.Load(wasm.OpcodeI32Load, state.Handle)
	pushContextAddress(ctx, state.Key)
	pushContextAddress(ctx, state.KeyNull)
	pushContextAddress(ctx, state.Buffer)
	f.Call("look_up_value_by_key")
	matches := ctx.NewLocal(prefix+"_matches", wasm.ValueTypeI64)
	f.LocalSet(matches)

	match := ctx.NewLocal(prefix+"_match", wasm.ValueTypeI64)
	batch := ctx.NewLocal(prefix+"_batch", wasm.ValueTypeI32)
	row := ctx.NewLocal(prefix+"_row", wasm.ValueTypeI32)
	f.I64Const(0)
	f.LocalSet(match)

	done := f.Block()
	{
		loop := f.Loop()
		{
			f.LocalGet(match)
			f.LocalGet(matches)
			f.AppendCode(wasm.OpcodeI64GeU)
			f.BrIf(done)

			pushContextAddress(ctx, state.Buffer)
			f.LocalGet(match)
			f.Call("extract_join_res_array")
			f.LocalSet(batch)
			pushContextAddress(ctx, state.Buffer)
			f.LocalGet(match)
			f.Call("extract_join_row_id")
			f.AppendCode(wasm.OpcodeI32WrapI64)
			f.LocalSet(row)

			var bindings []codegen.ColumnBinding
			for i, column := range condition.BuildColumns {
				if !t.pipeline.referenced[column.Name] {
					continue
				}
				reader := ctx.EmitColumnReader(batch, i, column)
				bindings = append(bindings, codegen.ColumnBinding{
					Name:  column.Name,
					Value: ctx.EmitColumnRead(reader, row, true),
				})
			}

			if err := t.consumeSuccessor(ctx, vars.WithColumns(bindings)); err != nil {
				return err
			}

			f.LocalGet(match)
			f.I64Const(1)
			f.AppendCode(wasm.OpcodeI64Add)
			f.LocalSet(match)
			f.Br(loop)
		}
		f.End()
	}
	f.End()

	return nil
}
