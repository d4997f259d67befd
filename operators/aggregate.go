package operators

import (
	"fmt"
	"math"

	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/codegen"
	"github.com/cube2222/octojit/codegen/lib"
	"github.com/cube2222/octojit/octojit"
	"github.com/cube2222/octojit/physical"
)

// consumeAggregate updates the accumulators with the row. Without grouping the accumulators live in the context,
// with grouping the context holds pointers to per-group buffers, indexed by the slot the host assigns to the key.
func (t *Translator) consumeAggregate(ctx *codegen.CodegenContext, vars *codegen.VariableContext) error {
	f := ctx.Function
	node := t.Node.Aggregate
	if len(node.GroupBy) > 1 {
		return fmt.Errorf("grouping by %d keys: %w", len(node.GroupBy), codegen.ErrUnsupported)
	}

	var group *uint32
	if len(node.GroupBy) == 1 {
		key, err := ctx.Expression(vars, node.GroupBy[0])
		if err != nil {
			return fmt.Errorf("couldn't lower group key: %w", err)
		}
		name := node.GroupBy[0].String()
		if node.GroupBy[0].ExpressionType == physical.ExpressionTypeVariable {
			name = node.GroupBy[0].Variable.Name
		}
		ctx.Layout.GroupBy = &codegen.GroupByState{
			Name:     name,
			Type:     key.Type.WithNullable(key.Nullable),
			Encoding: key.Encoding,
			DictID:   key.DictID,
		}
		ctx.Output = append(ctx.Output, codegen.OutputColumn{
			Name:     name,
			Type:     key.Type.WithNullable(key.Nullable),
			Encoding: key.Encoding,
			DictID:   key.DictID,
		})

		index := ctx.NewLocal("group_index", wasm.ValueTypeI64)
		f.LocalGet(codegen.ContextParam)
		if err := pushKey(ctx, key); err != nil {
			return err
		}
		ctx.EmitNull(key)
		f.Call("get_group_index")
		f.LocalSet(index)
		group = &index
	}

	for _, aggregate := range node.Aggregates {
		state, err := lowerAggregate(ctx, vars, aggregate, group)
		if err != nil {
			return fmt.Errorf("couldn't lower aggregate %s: %w", aggregate.Name, err)
		}
		ctx.Layout.Aggregates = append(ctx.Layout.Aggregates, state)
		ctx.Output = append(ctx.Output, codegen.OutputColumn{
			Name: aggregate.Name,
			Type: aggregate.Type,
		})
	}

	return t.consumeSuccessor(ctx, vars)
}

// accumulator addresses the slots of a single aggregate.
type accumulator struct {
	ctx *codegen.CodegenContext
	// group is the local holding the group index, nil without grouping.
	group *uint32
}

// pushCell pushes the accumulator address, followed by the group index with grouping.
func (acc accumulator) pushCell(slot uint32) {
	f := acc.ctx.Function
	if acc.group == nil {
		pushContextAddress(acc.ctx, slot)
		return
	}
	f.LocalGet(codegen.ContextParam)
	f.Load(wasm.OpcodeI32Load, slot)
	f.LocalGet(*acc.group)
}

// pushNullBase pushes the address of the null byte, or of the null buffer with grouping.
func (acc accumulator) pushNullBase(slot uint32) {
	f := acc.ctx.Function
	if acc.group == nil {
		pushContextAddress(acc.ctx, slot)
		return
	}
	f.LocalGet(codegen.ContextParam)
	f.Load(wasm.OpcodeI32Load, slot)
}

// clearNull marks the accumulator as having a value.
func (acc accumulator) clearNull(slot uint32) {
	f := acc.ctx.Function
	acc.pushNullBase(slot)
	if acc.group != nil {
		f.LocalGet(*acc.group)
		f.AppendCode(wasm.OpcodeI32WrapI64)
		f.AppendCode(wasm.OpcodeI32Add)
	}
	f.I32Const(0)
	f.Store(wasm.OpcodeI32Store8, 0)
}

// slot allocates an accumulator slot. With grouping, the slot holds a pointer instead.
func (acc accumulator) slot(name string, size uint32) uint32 {
	if acc.group != nil {
		return acc.ctx.Layout.Allocate(name, 4, 4)
	}
	return acc.ctx.Layout.Allocate(name, size, size)
}

// update calls the runtime update function. The value is nil for counts.
// The nullable variant is used if nulls is nullable, otherwise the null byte is cleared inline.
func (acc accumulator) update(name func(variant lib.Variant) string, valueSlot, nullSlot uint32, value *codegen.Value, nulls codegen.Value) {
	f := acc.ctx.Function
	variant := lib.Variant{WithOffset: acc.group != nil}

	acc.pushCell(valueSlot)
	if value != nil {
		f.LocalGet(value.Local)
	}
	if nulls.Nullable {
		variant.Nullable = true
		acc.pushNullBase(nullSlot)
		f.LocalGet(nulls.Null)
		f.Call(name(variant))
		return
	}
	f.Call(name(variant))
	acc.clearNull(nullSlot)
}

func lowerAggregate(ctx *codegen.CodegenContext, vars *codegen.VariableContext, aggregate physical.Aggregate, group *uint32) (codegen.AggregateState, error) {
	acc := accumulator{ctx: ctx, group: group}
	state := codegen.AggregateState{
		Name: aggregate.Name,
		Kind: aggregate.Kind,
		Type: aggregate.Type,
	}

	var arg codegen.Value
	if aggregate.Kind != physical.AggregateCountStar {
		if aggregate.Argument == nil {
			return state, fmt.Errorf("%s without an argument: %w", aggregate.Kind, codegen.ErrUnsupported)
		}
		v, err := ctx.Expression(vars, *aggregate.Argument)
		if err != nil {
			return state, err
		}
		arg = v
	}

	switch aggregate.Kind {
	case physical.AggregateSum, physical.AggregateMin, physical.AggregateMax:
		if !arg.Type.IsNumeric() {
			return state, fmt.Errorf("%s of type %s: %w", aggregate.Kind, arg.Type, codegen.ErrUnsupported)
		}
		if aggregate.Kind == physical.AggregateSum && arg.Type.IsInteger() {
			widened, err := ctx.Cast(arg, octojit.Int64)
			if err != nil {
				return state, err
			}
			arg = widened
		}
		width, ok := aggregateWidth(arg.Type)
		if !ok {
			return state, fmt.Errorf("%s of type %s: %w", aggregate.Kind, arg.Type, codegen.ErrUnsupported)
		}
		op := aggregateOps[aggregate.Kind]
		state.Width = width
		state.Init = initialValue(op, width)
		state.Value = acc.slot(aggregate.Name+"_value", width.Size())
		state.Null = acc.slot(aggregate.Name+"_null", 1)
		acc.update(func(variant lib.Variant) string {
			return lib.AggregateFunctionName(op, width, variant)
		}, state.Value, state.Null, &arg, arg)

	case physical.AggregateCount, physical.AggregateCountStar:
		state.Width = lib.WidthInt64
		state.Value = acc.slot(aggregate.Name+"_value", 8)
		state.Null = acc.slot(aggregate.Name+"_null", 1)
		acc.update(lib.CountFunctionName, state.Value, state.Null, nil, arg)

	case physical.AggregateAvg:
		if !arg.Type.IsNumeric() {
			return state, fmt.Errorf("%s of type %s: %w", aggregate.Kind, arg.Type, codegen.ErrUnsupported)
		}
		sum, err := ctx.Cast(arg, octojit.Float64)
		if err != nil {
			return state, err
		}
		state.Width = lib.WidthDouble
		state.Value = acc.slot(aggregate.Name+"_sum", 8)
		state.Null = acc.slot(aggregate.Name+"_null", 1)
		state.Count = acc.slot(aggregate.Name+"_count", 8)
		acc.update(func(variant lib.Variant) string {
			return lib.AggregateFunctionName(lib.AggregateOpSum, lib.WidthDouble, variant)
		}, state.Value, state.Null, &sum, sum)
		acc.update(lib.CountFunctionName, state.Count, state.Null, nil, sum)

	default:
		panic("unexhaustive aggregate kind match")
	}

	return state, nil
}

var aggregateOps = map[physical.AggregateKind]lib.AggregateOp{
	physical.AggregateSum: lib.AggregateOpSum,
	physical.AggregateMin: lib.AggregateOpMin,
	physical.AggregateMax: lib.AggregateOpMax,
}

func aggregateWidth(t octojit.Type) (lib.Width, bool) {
	switch t.TypeID {
	case octojit.TypeIDInt8:
		return lib.WidthInt8, true
	case octojit.TypeIDInt16:
		return lib.WidthInt16, true
	case octojit.TypeIDInt32, octojit.TypeIDDate:
		return lib.WidthInt32, true
	case octojit.TypeIDInt64, octojit.TypeIDTimestamp:
		return lib.WidthInt64, true
	case octojit.TypeIDFloat32:
		return lib.WidthFloat, true
	case octojit.TypeIDFloat64:
		return lib.WidthDouble, true
	}
	return 0, false
}

// initialValue is the bit pattern accumulators start with: the identity of the operation.
func initialValue(op lib.AggregateOp, width lib.Width) uint64 {
	if op == lib.AggregateOpSum {
		return 0
	}
	// Maximums start at the lowest value, minimums at the highest.
	lowest := op == lib.AggregateOpMax
	switch width {
	case lib.WidthInt8:
		return pick(lowest, int64(math.MinInt8), int64(math.MaxInt8))
	case lib.WidthInt16:
		return pick(lowest, int64(math.MinInt16), int64(math.MaxInt16))
	case lib.WidthInt32:
		return pick(lowest, int64(math.MinInt32), int64(math.MaxInt32))
	case lib.WidthInt64:
		return pick(lowest, math.MinInt64, math.MaxInt64)
	case lib.WidthFloat:
		if lowest {
			return uint64(math.Float32bits(float32(math.Inf(-1))))
		}
		return uint64(math.Float32bits(float32(math.Inf(1))))
	case lib.WidthDouble:
		if lowest {
			return math.Float64bits(math.Inf(-1))
		}
		return math.Float64bits(math.Inf(1))
	}
	panic(fmt.Sprintf("unknown aggregate width: %s", width))
}

func pick(first bool, a, b int64) uint64 {
	if first {
		return uint64(a)
	}
	return uint64(b)
}
