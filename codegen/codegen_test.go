package codegen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wabin/wasm"
	"github.com/tetratelabs/wazero"

	"github.com/cube2222/octojit/codegen/lib"
	"github.com/cube2222/octojit/config"
	"github.com/cube2222/octojit/functions"
	"github.com/cube2222/octojit/octojit"
	"github.com/cube2222/octojit/physical"
)

const (
	testLiteralBuffer = 1024
	testContext       = 512
	resultSlot        = 64
	resultLengthSlot  = 68
	nullSlot          = 72
)

func testOptions(hoist bool) config.CodegenOptions {
	options := config.DefaultCodegenOptions()
	options.HoistLiterals = hoist
	options.MemoryPages = 1
	options.MaxMemoryPages = 1
	return options
}

// evaluate compiles a function storing the expression result in the context and runs it.
func evaluate(t *testing.T, expr physical.Expression, hoist bool) octojit.Value {
	ctx := NewCodegenContext(testOptions(hoist), nil)
	ctx.BeginLowering()
	v, err := ctx.Expression(nil, expr)
	require.NoError(t, err)

	f := ctx.Function
	f.LocalGet(ContextParam)
	f.LocalGet(v.Local)
	f.Store(StoreOpcode(v.Type), resultSlot)
	if v.IsString() {
		f.LocalGet(ContextParam)
		f.LocalGet(v.Length)
		f.Store(wasm.OpcodeI32Store, resultLengthSlot)
	}
	f.LocalGet(ContextParam)
	ctx.EmitNull(v)
	f.Store(wasm.OpcodeI32Store8, nullSlot)
	f.I32Const(0)
	ctx.Finish()

	bg := context.Background()
	r := wazero.NewRuntimeWithConfig(bg, wazero.NewRuntimeConfigCompiler())
	defer r.Close(bg)
	_, err = lib.Instantiate(bg, r)
	require.NoError(t, err)
	mod, err := r.Instantiate(bg, ctx.Binary())
	require.NoError(t, err)

	mem := mod.Memory()
	require.True(t, mem.Write(testLiteralBuffer, ctx.Literals.Buffer()))
	require.True(t, mem.WriteUint32Le(testContext, testLiteralBuffer))

	out, err := mod.ExportedFunction(QueryFunctionName).Call(bg, testContext, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, out)

	null, _ := mem.ReadByte(testContext + nullSlot)
	if null != 0 {
		return octojit.NewNull(v.Type)
	}
	if v.IsString() {
		ptr, _ := mem.ReadUint32Le(testContext + resultSlot)
		length, _ := mem.ReadUint32Le(testContext + resultLengthSlot)
		data, ok := mem.Read(ptr, length)
		require.True(t, ok)
		return octojit.NewString(string(data))
	}
	data, ok := mem.Read(testContext+resultSlot, uint32(v.Type.ByteWidth()))
	require.True(t, ok)
	var bits uint64
	for i := len(data) - 1; i >= 0; i-- {
		bits = bits<<8 | uint64(data[i])
	}
	return octojit.ValueFromBits(v.Type, bits)
}

func constant(value octojit.Value) physical.Expression {
	return physical.NewConstant(value)
}

func TestExpressionLowering(t *testing.T) {
	i32 := func(v int32) physical.Expression { return constant(octojit.NewInt32(v)) }
	boolean := func(v bool) physical.Expression { return constant(octojit.NewBoolean(v)) }
	nullBool := constant(octojit.NewNull(octojit.Boolean))
	str := func(v string) physical.Expression { return constant(octojit.NewString(v)) }

	tests := []struct {
		name string
		expr physical.Expression
		want octojit.Value
	}{
		{"add", physical.NewBinaryOp(physical.BinaryOpAdd, i32(5), i32(7)), octojit.NewInt32(12)},
		{"subtract", physical.NewBinaryOp(physical.BinaryOpSubtract, i32(5), i32(7)), octojit.NewInt32(-2)},
		{"int8 wraps", physical.NewBinaryOp(physical.BinaryOpAdd, constant(octojit.NewInt8(127)), constant(octojit.NewInt8(1))), octojit.NewInt8(-128)},
		{"divide", physical.NewBinaryOp(physical.BinaryOpDivide, i32(7), i32(2)), octojit.NewInt32(3)},
		{"divide by zero", physical.NewBinaryOp(physical.BinaryOpDivide, i32(7), i32(0)), octojit.NewNull(octojit.Int32)},
		{"divide min by minus one", physical.NewBinaryOp(physical.BinaryOpDivide, constant(octojit.NewInt64(-1<<63)), constant(octojit.NewInt64(-1))), octojit.NewInt64(-1 << 63)},
		{"modulo", physical.NewBinaryOp(physical.BinaryOpModulo, i32(-7), i32(3)), octojit.NewInt32(-1)},
		{"modulo by minus one", physical.NewBinaryOp(physical.BinaryOpModulo, i32(-7), i32(-1)), octojit.NewInt32(0)},
		{"float multiply", physical.NewBinaryOp(physical.BinaryOpMultiply, constant(octojit.NewFloat64(1.5)), constant(octojit.NewFloat64(4))), octojit.NewFloat64(6)},
		{"null propagates", physical.NewBinaryOp(physical.BinaryOpAdd, i32(1), constant(octojit.NewNull(octojit.Int32))), octojit.NewNull(octojit.Int32)},
		{"less", physical.NewBinaryOp(physical.BinaryOpLess, i32(-1), i32(1)), octojit.NewBoolean(true)},
		{"float greater equal", physical.NewBinaryOp(physical.BinaryOpGreaterEqual, constant(octojit.NewFloat32(1)), constant(octojit.NewFloat32(2))), octojit.NewBoolean(false)},
		{"string less", physical.NewBinaryOp(physical.BinaryOpLess, str("abc"), str("abd")), octojit.NewBoolean(true)},
		{"string equal", physical.NewBinaryOp(physical.BinaryOpEqual, str("abc"), str("abc")), octojit.NewBoolean(true)},
		{"not", physical.NewUnaryOp(physical.UnaryOpNot, boolean(false)), octojit.NewBoolean(true)},
		{"negate", physical.NewUnaryOp(physical.UnaryOpNegate, i32(3)), octojit.NewInt32(-3)},
		{"is null", physical.NewUnaryOp(physical.UnaryOpIsNull, nullBool), octojit.NewBoolean(true)},
		{"is not null", physical.NewUnaryOp(physical.UnaryOpIsNotNull, i32(1)), octojit.NewBoolean(true)},
		{"null and false", physical.NewAnd(nullBool, boolean(false)), octojit.NewBoolean(false)},
		{"null and true", physical.NewAnd(nullBool, boolean(true)), octojit.NewNull(octojit.Boolean)},
		{"true and true and true", physical.NewAnd(boolean(true), boolean(true), boolean(true)), octojit.NewBoolean(true)},
		{"null or true", physical.NewOr(nullBool, boolean(true)), octojit.NewBoolean(true)},
		{"null or false", physical.NewOr(nullBool, boolean(false)), octojit.NewNull(octojit.Boolean)},
		{"false or false", physical.NewOr(boolean(false), boolean(false)), octojit.NewBoolean(false)},
		{"cast int32 to int64", physical.NewCast(i32(-5), octojit.Int64), octojit.NewInt64(-5)},
		{"cast int32 to int8 wraps", physical.NewCast(i32(300), octojit.Int8), octojit.NewInt8(44)},
		{"cast int64 to float64", physical.NewCast(constant(octojit.NewInt64(3)), octojit.Float64), octojit.NewFloat64(3)},
		{"cast float32 to float64", physical.NewCast(constant(octojit.NewFloat32(0.5)), octojit.Float64), octojit.NewFloat64(0.5)},
		{"cast int to boolean", physical.NewCast(i32(2), octojit.Boolean), octojit.NewBoolean(true)},
		{"in list", physical.NewInList(i32(3), octojit.NewList(octojit.Int32, []octojit.Value{octojit.NewInt32(1), octojit.NewInt32(3)})), octojit.NewBoolean(true)},
		{"not in list", physical.NewInList(i32(2), octojit.NewList(octojit.Int32, []octojit.Value{octojit.NewInt32(1), octojit.NewInt32(3)})), octojit.NewBoolean(false)},
		{"in empty list", physical.NewInList(i32(2), octojit.NewList(octojit.Int32, nil)), octojit.NewBoolean(false)},
		{"in int64 list", physical.NewInList(constant(octojit.NewInt64(1<<40)), octojit.NewList(octojit.Int64, []octojit.Value{octojit.NewInt64(1 << 40)})), octojit.NewBoolean(true)},
		{"string constant", str("hello"), octojit.NewString("hello")},
		{"folded string op", physical.NewStringOp(functions.StringOpKindUpper, str("abc"), octojit.String), octojit.NewString("ABC")},
		{"folded split part null", physical.NewStringOp(functions.StringOpKindSplitPart, str("a,b"), octojit.String, octojit.NewString(","), octojit.NewInt64(3)), octojit.NewNull(octojit.String)},
		{"folded char length", physical.NewStringOp(functions.StringOpKindCharLength, str("abcd"), octojit.Int64), octojit.NewInt64(4)},
	}
	for _, tt := range tests {
		for _, hoist := range []bool{true, false} {
			name := tt.name
			if !hoist {
				name += " inline"
			}
			t.Run(name, func(t *testing.T) {
				got := evaluate(t, tt.expr, hoist)
				assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
				assert.Equal(t, tt.want.Null, got.Null)
			})
		}
	}
}

func TestExpressionUnsupported(t *testing.T) {
	tests := []struct {
		name string
		expr physical.Expression
	}{
		{"mismatched types", physical.NewBinaryOp(physical.BinaryOpAdd, constant(octojit.NewInt32(1)), constant(octojit.NewInt64(1)))},
		{"float to int cast", physical.NewCast(constant(octojit.NewFloat64(1)), octojit.Int32)},
		{"string arithmetic", physical.NewBinaryOp(physical.BinaryOpAdd, constant(octojit.NewString("a")), constant(octojit.NewString("b")))},
		{"float modulo", physical.NewBinaryOp(physical.BinaryOpModulo, constant(octojit.NewFloat64(1)), constant(octojit.NewFloat64(1)))},
		{"dict string ordering", physical.NewBinaryOp(physical.BinaryOpLess, physical.NewDictConstant(octojit.NewString("a"), 1), physical.NewDictConstant(octojit.NewString("b"), 1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewCodegenContext(testOptions(true), map[int][]string{1: {"a", "b"}})
			ctx.BeginLowering()
			_, err := ctx.Expression(nil, tt.expr)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestStringOpInvalidParameters(t *testing.T) {
	ctx := NewCodegenContext(testOptions(true), nil)
	ctx.BeginLowering()
	_, err := ctx.Expression(nil, physical.NewStringOp(functions.StringOpKindRegexpSubstr, constant(octojit.NewString("a")), octojit.String, octojit.NewString("(")))
	assert.ErrorIs(t, err, functions.ErrInvalidParameter)
}

func compileConstants(hoist bool) *CodegenContext {
	ctx := NewCodegenContext(testOptions(hoist), nil)
	ctx.BeginLowering()
	for _, value := range []octojit.Value{octojit.NewInt64(3), octojit.NewString("abc"), octojit.NewInt32(1), octojit.NewInt64(3)} {
		if _, err := ctx.Constant(value, octojit.EncodingNone, 0); err != nil {
			panic(err)
		}
	}
	ctx.Function.I32Const(0)
	ctx.Finish()
	return ctx
}

func TestDeterministicCompilation(t *testing.T) {
	first := compileConstants(true)
	second := compileConstants(true)

	assert.Equal(t, first.Literals.Literals(), second.Literals.Literals())
	assert.Equal(t, first.Binary(), second.Binary())
	assert.Equal(t, first.Fingerprint(), second.Fingerprint())

	assert.Equal(t, 3, first.Literals.Len())
	assert.Len(t, first.Relocations, 5)

	inline := compileConstants(false)
	assert.NotEqual(t, first.Fingerprint(), inline.Fingerprint())
	assert.Equal(t, 1, inline.Literals.Len())
}

func TestStateTransitions(t *testing.T) {
	ctx := NewCodegenContext(testOptions(true), nil)
	assert.Equal(t, StateBuilding, ctx.State())
	assert.Panics(t, func() { ctx.Finish() })
	assert.Panics(t, func() { ctx.Binary() })

	ctx.BeginLowering()
	assert.Panics(t, func() { ctx.BeginLowering() })
	ctx.Function.I32Const(0)
	ctx.Finish()
	assert.Equal(t, StateFinished, ctx.State())
	assert.NotEmpty(t, ctx.Binary())
	assert.Equal(t, "query_func(context i32, input i32) -> i32", ctx.Signature())
}

func TestUnclosedBlockPanics(t *testing.T) {
	ctx := NewCodegenContext(testOptions(true), nil)
	ctx.BeginLowering()
	ctx.Function.Block()
	assert.Panics(t, func() { ctx.Finish() })
}

func TestRelocationToMissingLiteralPanics(t *testing.T) {
	ctx := NewCodegenContext(testOptions(true), nil)
	ctx.BeginLowering()
	ctx.EmitLiteralValue(16, LiteralValue)
	ctx.Function.AppendCode(wasm.OpcodeDrop)
	ctx.Function.I32Const(0)
	assert.Panics(t, func() { ctx.Finish() })
}

func TestBranchDepth(t *testing.T) {
	ctx := NewCodegenContext(testOptions(true), nil)
	f := ctx.Function
	outer := f.Block()
	inner := f.Loop()
	f.Br(inner)
	f.BrIf(outer)
	f.End()
	f.End()
	assert.Equal(t, []byte{
		wasm.OpcodeBlock, blockTypeEmpty,
		wasm.OpcodeLoop, blockTypeEmpty,
		wasm.OpcodeBr, 0,
		wasm.OpcodeBrIf, 1,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
	}, f.Code)
	assert.Panics(t, func() { f.Br(outer) })
}

func TestImportsInFirstUseOrder(t *testing.T) {
	module := NewModuleBuilder(1, 1)
	assert.Equal(t, uint32(0), module.FunctionIndex("string_compare"))
	assert.Equal(t, uint32(1), module.FunctionIndex("agg_count"))
	assert.Equal(t, uint32(0), module.FunctionIndex("string_compare"))
	assert.Equal(t, []string{"string_compare", "agg_count"}, module.Imports())
	assert.Panics(t, func() { module.FunctionIndex("no_such_function") })
}
