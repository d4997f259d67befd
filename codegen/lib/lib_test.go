package lib

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	wasmbinary "github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/wasm"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/cube2222/octojit/abi"
	"github.com/cube2222/octojit/functions"
	"github.com/cube2222/octojit/octojit"
)

type staticHashTable map[int64][]JoinBaseValue

func (table staticHashTable) FindAll(key int64) []JoinBaseValue {
	return table[key]
}

type testEnvironment struct {
	next        uint32
	allocations int
	scratch     int
	tables      map[uint32]HashTable
	ops         []*functions.StringOp
	strings     map[[2]uint32]string
}

func (env *testEnvironment) HashTable(handle uint32) (HashTable, bool) {
	table, ok := env.tables[handle]
	return table, ok
}

func (env *testEnvironment) Allocate(size, alignment uint32) (uint32, error) {
	env.allocations++
	ptr := abi.AlignUp(env.next, alignment)
	env.next = ptr + size
	return ptr, nil
}

func (env *testEnvironment) AllocateScratch(size uint32) (uint32, error) {
	env.scratch++
	ptr := env.next
	env.next += size
	return ptr, nil
}

func (env *testEnvironment) StringOp(index uint32) (*functions.StringOp, bool) {
	if int(index) >= len(env.ops) {
		return nil, false
	}
	return env.ops[index], true
}

func (env *testEnvironment) GroupIndex(key int64, isNull bool) (uint32, error) {
	return uint32(key), nil
}

func (env *testEnvironment) GrowOutput() error {
	return nil
}

func (env *testEnvironment) SetOutputString(column, row uint32, value string) {
	env.strings[[2]uint32{column, row}] = value
}

func newTestModule(t *testing.T, env *testEnvironment) (context.Context, api.Module) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() {
		r.Close(ctx)
	})
	bin := wasmbinary.EncodeModule(&wasm.Module{
		MemorySection: &wasm.Memory{Min: 1, Max: 4, IsMaxEncoded: true},
		ExportSection: []*wasm.Export{{Type: wasm.ExternTypeMemory, Name: "memory", Index: 0}},
	})
	mod, err := r.Instantiate(ctx, bin)
	require.NoError(t, err)
	if env.next == 0 {
		env.next = abi.FirstAllocatableAddress
	}
	return WithEnvironment(ctx, env), mod
}

func call(t *testing.T, ctx context.Context, mod api.Module, name string, args ...uint64) []uint64 {
	f, ok := Lookup(name)
	require.True(t, ok, name)
	require.Len(t, args, len(f.Params), name)
	stack := make([]uint64, len(args)+len(f.Results))
	copy(stack, args)
	f.Impl(ctx, mod, stack)
	return stack[:len(f.Results)]
}

const (
	keyPtr    = 64
	nullPtr   = 72
	bufferPtr = 80
)

func TestLookUpValueByKeyNullKey(t *testing.T) {
	env := &testEnvironment{tables: map[uint32]HashTable{
		0: staticHashTable{0: {{Batch: 4096, Offset: 1}}},
	}}
	ctx, mod := newTestModule(t, env)
	mod.Memory().WriteByte(nullPtr, 1)

	out := call(t, ctx, mod, "look_up_value_by_key", 0, keyPtr, nullPtr, bufferPtr)
	assert.Equal(t, uint64(0), out[0])
	assert.Equal(t, 0, env.allocations)

	descriptor, ok := mod.Memory().Read(bufferPtr, 12)
	require.True(t, ok)
	assert.Equal(t, make([]byte, 12), descriptor)
}

func TestLookUpValueByKeyMatches(t *testing.T) {
	matches := []JoinBaseValue{
		{Batch: 4096, Offset: 3},
		{Batch: 8192, Offset: 0},
		{Batch: 4096, Offset: 7},
	}
	env := &testEnvironment{tables: map[uint32]HashTable{
		2: staticHashTable{42: matches, 43: matches[:2]},
	}}
	ctx, mod := newTestModule(t, env)
	mem := mod.Memory()

	mem.WriteUint64Le(keyPtr, 42)
	out := call(t, ctx, mod, "look_up_value_by_key", 2, keyPtr, nullPtr, bufferPtr)
	require.Equal(t, uint64(len(matches)), out[0])
	assert.Equal(t, 1, env.allocations)

	for i, match := range matches {
		batch := call(t, ctx, mod, "extract_join_res_array", bufferPtr, uint64(i))
		assert.Equal(t, match.Batch, batch[0], "batch %d", i)
		row := call(t, ctx, mod, "extract_join_row_id", bufferPtr, uint64(i))
		assert.Equal(t, match.Offset, row[0], "row %d", i)
	}

	// A smaller result fits the existing buffer.
	mem.WriteUint64Le(keyPtr, 43)
	out = call(t, ctx, mod, "look_up_value_by_key", 2, keyPtr, nullPtr, bufferPtr)
	require.Equal(t, uint64(2), out[0])
	assert.Equal(t, 1, env.allocations)
	size, ok := mem.ReadUint32Le(bufferPtr + abi.BufferSize)
	require.True(t, ok)
	assert.Equal(t, uint32(2*abi.JoinBaseValueSize), size)

	// No matches.
	mem.WriteUint64Le(keyPtr, 44)
	out = call(t, ctx, mod, "look_up_value_by_key", 2, keyPtr, nullPtr, bufferPtr)
	assert.Equal(t, uint64(0), out[0])
	assert.Equal(t, 1, env.allocations)
}

func TestAggSumNullable(t *testing.T) {
	ctx, mod := newTestModule(t, &testEnvironment{})
	mem := mod.Memory()
	const agg, null = 128, 136
	mem.WriteByte(null, 1)

	call(t, ctx, mod, "agg_sum_int64_nullable", agg, 10, null, 1)
	value, _ := mem.ReadUint64Le(agg)
	nullByte, _ := mem.ReadByte(null)
	assert.Equal(t, uint64(0), value)
	assert.Equal(t, byte(1), nullByte)

	call(t, ctx, mod, "agg_sum_int64_nullable", agg, 5, null, 0)
	call(t, ctx, mod, "agg_sum_int64_nullable", agg, api.EncodeI64(-2), null, 0)
	value, _ = mem.ReadUint64Le(agg)
	nullByte, _ = mem.ReadByte(null)
	assert.Equal(t, int64(3), int64(value))
	assert.Equal(t, byte(0), nullByte)
}

func TestAggSumWraps(t *testing.T) {
	ctx, mod := newTestModule(t, &testEnvironment{})
	mem := mod.Memory()
	const agg = 128
	mem.WriteUint32Le(agg, math.MaxInt32)

	call(t, ctx, mod, "agg_sum_int32", agg, api.EncodeI32(1))
	value, _ := mem.ReadUint32Le(agg)
	assert.Equal(t, int32(math.MinInt32), int32(value))
}

func TestAggCount(t *testing.T) {
	ctx, mod := newTestModule(t, &testEnvironment{})
	mem := mod.Memory()
	const agg, null = 128, 136

	for i := 0; i < 3; i++ {
		call(t, ctx, mod, "agg_count", agg)
	}
	value, _ := mem.ReadUint64Le(agg)
	assert.Equal(t, uint64(3), value)

	const nullableAgg = 144
	mem.WriteByte(null, 1)
	call(t, ctx, mod, "agg_count_nullable", nullableAgg, null, 1)
	value, _ = mem.ReadUint64Le(nullableAgg)
	nullByte, _ := mem.ReadByte(null)
	assert.Equal(t, uint64(0), value)
	assert.Equal(t, byte(1), nullByte)

	call(t, ctx, mod, "agg_count_nullable", nullableAgg, null, 0)
	value, _ = mem.ReadUint64Le(nullableAgg)
	nullByte, _ = mem.ReadByte(null)
	assert.Equal(t, uint64(1), value)
	assert.Equal(t, byte(0), nullByte)
}

func TestAggNarrowAndFloatWidths(t *testing.T) {
	ctx, mod := newTestModule(t, &testEnvironment{})
	mem := mod.Memory()
	const small, single = 128, 136
	mem.WriteUint16Le(small, uint16(0xFFFF))
	mem.WriteFloat32Le(single, 1.5)

	call(t, ctx, mod, "agg_max_int16", small, api.EncodeI32(-5))
	value, _ := mem.ReadUint16Le(small)
	assert.Equal(t, int16(-1), int16(value))
	call(t, ctx, mod, "agg_max_int16", small, api.EncodeI32(300))
	value, _ = mem.ReadUint16Le(small)
	assert.Equal(t, int16(300), int16(value))

	call(t, ctx, mod, "agg_sum_float", single, api.EncodeF32(2.25))
	sum, _ := mem.ReadFloat32Le(single)
	assert.Equal(t, float32(3.75), sum)

	assert.Panics(t, func() {
		call(t, ctx, mod, "agg_sum_int64", uint64(mem.Size()-4), 1)
	})
}

func TestAggMinMaxWithOffset(t *testing.T) {
	ctx, mod := newTestModule(t, &testEnvironment{})
	mem := mod.Memory()
	const buffer, nulls = 256, 512
	for i := uint32(0); i < 2; i++ {
		mem.WriteFloat64Le(buffer+i*8, math.Inf(1))
		mem.WriteByte(nulls+i, 1)
	}

	call(t, ctx, mod, "agg_min_double_with_offset_nullable", buffer, 1, api.EncodeF64(2.5), nulls, 0)
	call(t, ctx, mod, "agg_min_double_with_offset_nullable", buffer, 1, api.EncodeF64(-1.5), nulls, 0)
	call(t, ctx, mod, "agg_min_double_with_offset_nullable", buffer, 1, api.EncodeF64(-9), nulls, 1)

	first, _ := mem.ReadFloat64Le(buffer)
	second, _ := mem.ReadFloat64Le(buffer + 8)
	firstNull, _ := mem.ReadByte(nulls)
	secondNull, _ := mem.ReadByte(nulls + 1)
	assert.True(t, math.IsInf(first, 1))
	assert.Equal(t, byte(1), firstNull)
	assert.Equal(t, -1.5, second)
	assert.Equal(t, byte(0), secondNull)

	const maxBuffer = 768
	mem.WriteUint16Le(maxBuffer+2, uint16(0x8000))
	call(t, ctx, mod, "agg_max_int16_with_offset", maxBuffer, 1, api.EncodeI32(-3))
	call(t, ctx, mod, "agg_max_int16_with_offset", maxBuffer, 1, api.EncodeI32(-7))
	value, _ := mem.ReadUint16Le(maxBuffer + 2)
	assert.Equal(t, int16(-3), int16(value))
}

func TestCatalog(t *testing.T) {
	names := Names()
	assert.Len(t, names, 3*6*4+4+3+6)
	for _, name := range []string{
		"agg_sum_int8",
		"agg_min_float_nullable",
		"agg_max_double_with_offset_nullable",
		"agg_sum_int64_with_offset",
		"agg_count_with_offset_nullable",
		"look_up_value_by_key",
	} {
		_, ok := Lookup(name)
		assert.True(t, ok, name)
	}

	f, _ := Lookup("agg_sum_float_with_offset_nullable")
	assert.Equal(t, []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeI32, api.ValueTypeI32}, f.Params)
	assert.Empty(t, f.Results)
}

func TestInstantiate(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	mod, err := Instantiate(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, ModuleName, mod.Name())
	assert.NotNil(t, mod.ExportedFunction("agg_count"))
}

func TestStringRuntimeFunctions(t *testing.T) {
	upper, err := functions.NewStringOp(functions.StringOpKindUpper, nil, octojit.String)
	require.NoError(t, err)
	split, err := functions.NewStringOp(functions.StringOpKindSplitPart, []octojit.Value{octojit.NewString(","), octojit.NewInt64(5)}, octojit.String)
	require.NoError(t, err)
	tryCast, err := functions.NewStringOp(functions.StringOpKindTryStringCast, nil, octojit.Int32)
	require.NoError(t, err)

	env := &testEnvironment{
		ops:     []*functions.StringOp{upper, split, tryCast},
		strings: map[[2]uint32]string{},
	}
	ctx, mod := newTestModule(t, env)
	mem := mod.Memory()
	const abcPtr, numPtr = 128, 160
	mem.Write(abcPtr, []byte("a,b"))
	mem.Write(numPtr, []byte("-12"))

	out := call(t, ctx, mod, "string_op", 0, abcPtr, 3)
	assert.Equal(t, uint64(0), out[2])
	result, ok := mem.Read(api.DecodeU32(out[0]), api.DecodeU32(out[1]))
	require.True(t, ok)
	assert.Equal(t, "A,B", string(result))
	assert.Equal(t, 1, env.scratch)
	assert.Equal(t, 0, env.allocations)

	out = call(t, ctx, mod, "string_op", 1, abcPtr, 3)
	assert.Equal(t, uint64(1), out[2])

	out = call(t, ctx, mod, "string_try_cast", 2, numPtr, 3)
	assert.Equal(t, uint64(0), out[1])
	assert.Equal(t, int64(-12), int64(out[0]))
	out = call(t, ctx, mod, "string_try_cast", 2, abcPtr, 3)
	assert.Equal(t, uint64(1), out[1])

	out = call(t, ctx, mod, "string_compare", abcPtr, 1, numPtr+1, 1)
	assert.Equal(t, int32(1), api.DecodeI32(out[0]))
	out = call(t, ctx, mod, "string_compare", abcPtr, 1, abcPtr, 3)
	assert.Equal(t, int32(-1), api.DecodeI32(out[0]))

	call(t, ctx, mod, "output_set_string", 0, 1, 4, abcPtr, 3)
	assert.Equal(t, "a,b", env.strings[[2]uint32{1, 4}])
}
