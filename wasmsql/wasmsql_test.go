package wasmsql

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octojit/arrowexec/batch"
	"github.com/cube2222/octojit/arrowexec/execution"
	"github.com/cube2222/octojit/arrowexec/hashtable"
	"github.com/cube2222/octojit/config"
	"github.com/cube2222/octojit/functions"
	"github.com/cube2222/octojit/octojit"
	"github.com/cube2222/octojit/physical"
)

func newEngine(t *testing.T, options config.ExecutionOptions) *Engine {
	ctx := context.Background()
	engine, err := NewEngine(ctx, options)
	require.NoError(t, err)
	t.Cleanup(func() {
		engine.Close(ctx)
	})
	return engine
}

func run(t *testing.T, unit *physical.RelAlgExecutionUnit, options config.CodegenOptions, hashTables map[int]*hashtable.JoinTable, records ...execution.Record) execution.Record {
	t.Helper()
	ctx := context.Background()
	engine := newEngine(t, config.DefaultExecutionOptions())
	query, err := engine.Compile(ctx, unit, options)
	require.NoError(t, err)
	out, err := Execute(ctx, query, hashTables, records)
	require.NoError(t, err)
	return out
}

func build(t *testing.T, f func(b *batch.Builder)) execution.Record {
	t.Helper()
	b := batch.NewBuilder()
	f(b)
	record, err := b.Build()
	require.NoError(t, err)
	return record
}

func codegenOptions(hoist, bypass bool) config.CodegenOptions {
	options := config.DefaultCodegenOptions()
	options.HoistLiterals = hoist
	options.NullHandlingBypass = bypass
	return options
}

func TestSumOfNonNullValues(t *testing.T) {
	xType := octojit.Int32.WithNullable(true)
	x := physical.NewVariable("x", xType)
	unit := &physical.RelAlgExecutionUnit{
		Input: []physical.Column{{Name: "x", Type: xType}},
		Quals: []physical.Expression{physical.NewUnaryOp(physical.UnaryOpIsNotNull, x)},
		Aggregates: []physical.Aggregate{
			physical.NewAggregate("total", physical.AggregateSum, &x),
		},
	}
	record := build(t, func(b *batch.Builder) {
		batch.AddColumn(b, "x", xType, []int32{1, 0, 3}, []bool{false, true, false})
	})

	for _, hoist := range []bool{true, false} {
		t.Run(fmt.Sprintf("hoist=%t", hoist), func(t *testing.T) {
			out := run(t, unit, codegenOptions(hoist, false), nil, record)
			require.Equal(t, int64(1), out.NumRows())
			assert.Equal(t, "total", out.Schema().Field(0).Name)
			total := out.Column(0).(*array.Int64)
			assert.True(t, total.IsValid(0))
			assert.Equal(t, int64(4), total.Value(0))
		})
	}
}

func TestAggregatesWithoutRows(t *testing.T) {
	x := physical.NewVariable("x", octojit.Float64)
	unit := &physical.RelAlgExecutionUnit{
		Input: []physical.Column{{Name: "x", Type: octojit.Float64}},
		Aggregates: []physical.Aggregate{
			physical.NewAggregate("total", physical.AggregateSum, &x),
			physical.NewAggregate("rows", physical.AggregateCountStar, nil),
			physical.NewAggregate("mean", physical.AggregateAvg, &x),
		},
	}
	record := build(t, func(b *batch.Builder) {
		batch.AddColumn(b, "x", octojit.Float64, []float64{}, nil)
	})

	out := run(t, unit, codegenOptions(true, false), nil, record)
	require.Equal(t, int64(1), out.NumRows())
	assert.True(t, out.Column(0).IsNull(0))
	assert.Equal(t, int64(0), out.Column(1).(*array.Int64).Value(0))
	assert.True(t, out.Column(2).IsNull(0))
}

func TestProjectionWithFilter(t *testing.T) {
	xType := octojit.Int64.WithNullable(true)
	nameType := octojit.String.WithNullable(true)
	x := physical.NewVariable("x", xType)
	name := physical.NewVariable("name", nameType)
	unit := &physical.RelAlgExecutionUnit{
		Input: []physical.Column{{Name: "x", Type: xType}, {Name: "name", Type: nameType}},
		Quals: []physical.Expression{
			physical.NewBinaryOp(physical.BinaryOpGreater, x, physical.NewConstant(octojit.NewInt64(1))),
		},
		Targets: []physical.Target{
			{Name: "doubled", Expression: physical.NewBinaryOp(physical.BinaryOpMultiply, x, physical.NewConstant(octojit.NewInt64(2)))},
			{Name: "name", Expression: name},
			{Name: "shout", Expression: physical.NewStringOp(functions.StringOpKindUpper, name, octojit.String)},
		},
	}
	records := []execution.Record{
		build(t, func(b *batch.Builder) {
			batch.AddColumn(b, "x", xType, []int64{1, 2, 3, 0}, []bool{false, false, false, true})
			b.AddStringColumn("name", []string{"a", "b", "", "d"}, []bool{false, false, true, false})
		}),
		build(t, func(b *batch.Builder) {
			batch.AddColumn(b, "x", xType, []int64{5}, nil)
			b.AddStringColumn("name", []string{"e"}, nil)
		}),
	}

	for _, hoist := range []bool{true, false} {
		t.Run(fmt.Sprintf("hoist=%t", hoist), func(t *testing.T) {
			out := run(t, unit, codegenOptions(hoist, false), nil, records...)
			require.Equal(t, int64(3), out.NumRows())

			doubled := out.Column(0).(*array.Int64)
			assert.Equal(t, []int64{4, 6, 10}, doubled.Int64Values())

			names := out.Column(1).(*array.String)
			assert.Equal(t, "b", names.Value(0))
			assert.True(t, names.IsNull(1))
			assert.Equal(t, "e", names.Value(2))

			shout := out.Column(2).(*array.String)
			assert.Equal(t, "B", shout.Value(0))
			assert.True(t, shout.IsNull(1))
			assert.Equal(t, "E", shout.Value(2))
		})
	}
}

func TestOutputGrowth(t *testing.T) {
	x := physical.NewVariable("x", octojit.Int32)
	flag := physical.NewVariable("flag", octojit.Boolean)
	unit := &physical.RelAlgExecutionUnit{
		Input: []physical.Column{{Name: "x", Type: octojit.Int32}, {Name: "flag", Type: octojit.Boolean}},
		Targets: []physical.Target{
			{Name: "x", Expression: x},
			{Name: "flag", Expression: physical.NewUnaryOp(physical.UnaryOpNot, flag)},
			{Name: "ratio", Expression: physical.NewBinaryOp(physical.BinaryOpDivide, physical.NewConstant(octojit.NewInt32(12)), x)},
		},
	}
	const rows = 1000
	values := make([]int32, rows)
	flags := make([]bool, rows)
	for i := range values {
		values[i] = int32(i)
		flags[i] = i%3 == 0
	}
	record := build(t, func(b *batch.Builder) {
		batch.AddColumn(b, "x", octojit.Int32, values, nil)
		b.AddBoolColumn("flag", flags, nil)
	})

	ctx := context.Background()
	options := config.DefaultExecutionOptions()
	options.OutputCapacity = 3
	engine := newEngine(t, options)
	query, err := engine.Compile(ctx, unit, config.DefaultCodegenOptions())
	require.NoError(t, err)
	out, err := Execute(ctx, query, nil, []execution.Record{record, record})
	require.NoError(t, err)

	require.Equal(t, int64(2*rows), out.NumRows())
	xs := out.Column(0).(*array.Int32)
	bools := out.Column(1).(*array.Boolean)
	ratios := out.Column(2).(*array.Int32)
	for i := 0; i < 2*rows; i++ {
		assert.Equal(t, int32(i%rows), xs.Value(i))
		assert.Equal(t, (i%rows)%3 != 0, bools.Value(i))
		if i%rows == 0 {
			assert.True(t, ratios.IsNull(i))
		} else {
			assert.Equal(t, int32(12/(i%rows)), ratios.Value(i))
		}
	}
}

func TestStringResultsDontGrowMemory(t *testing.T) {
	name := physical.NewVariable("name", octojit.String)
	unit := &physical.RelAlgExecutionUnit{
		Input:   []physical.Column{{Name: "name", Type: octojit.String}},
		Targets: []physical.Target{{Name: "shout", Expression: physical.NewStringOp(functions.StringOpKindUpper, name, octojit.String)}},
	}
	const rows = 500
	names := make([]string, rows)
	for i := range names {
		names[i] = strings.Repeat(string(rune('a'+i%26)), 200)
	}
	record := build(t, func(b *batch.Builder) {
		b.AddStringColumn("name", names, nil)
	})

	ctx := context.Background()
	engine := newEngine(t, config.DefaultExecutionOptions())
	query, err := engine.Compile(ctx, unit, codegenOptions(true, false))
	require.NoError(t, err)
	instance, err := query.NewInstance(ctx)
	require.NoError(t, err)
	defer instance.Close(ctx)

	// The first batches size the input, output and scratch regions.
	for i := 0; i < 2; i++ {
		require.NoError(t, instance.Consume(ctx, record))
	}
	size, next := instance.memory.Size(), instance.next
	for i := 0; i < 100; i++ {
		require.NoError(t, instance.Consume(ctx, record))
	}
	assert.Equal(t, size, instance.memory.Size())
	assert.Equal(t, next, instance.next)

	out, err := instance.Result()
	require.NoError(t, err)
	require.Equal(t, int64(102*rows), out.NumRows())
	shout := out.Column(0).(*array.String)
	assert.Equal(t, strings.Repeat("B", 200), shout.Value(102*rows-rows+1))
}

func TestNullHandlingBypass(t *testing.T) {
	xType := octojit.Int32.WithNullable(true)
	x := physical.NewVariable("x", xType)
	unit := &physical.RelAlgExecutionUnit{
		Input: []physical.Column{{Name: "x", Type: xType}, {Name: "y", Type: octojit.Int32}},
		Targets: []physical.Target{
			{Name: "next", Expression: physical.NewBinaryOp(physical.BinaryOpAdd, x, physical.NewConstant(octojit.NewInt32(1)))},
			{Name: "y", Expression: physical.NewVariable("y", octojit.Int32)},
		},
	}
	const rows = 20
	values := make([]int32, rows)
	nulls := make([]bool, rows)
	for i := range values {
		values[i] = int32(i)
		nulls[i] = i%4 == 1
	}
	record := build(t, func(b *batch.Builder) {
		batch.AddColumn(b, "x", xType, values, nulls)
		batch.AddColumn(b, "y", octojit.Int32, values, nil)
	})

	out := run(t, unit, codegenOptions(true, true), nil, record)
	require.Equal(t, int64(rows), out.NumRows())
	assert.True(t, out.Schema().Field(0).Nullable)
	assert.False(t, out.Schema().Field(1).Nullable)
	next := out.Column(0).(*array.Int32)
	for i := 0; i < rows; i++ {
		if nulls[i] {
			assert.True(t, next.IsNull(i), "row %d", i)
		} else {
			assert.Equal(t, int32(i+1), next.Value(i), "row %d", i)
		}
		assert.True(t, out.Column(1).IsValid(i))
	}
}

func TestNullHandlingBypassKeepsNullAwareTargets(t *testing.T) {
	xType := octojit.Int32.WithNullable(true)
	x := physical.NewVariable("x", xType)
	unit := &physical.RelAlgExecutionUnit{
		Input: []physical.Column{{Name: "x", Type: xType}},
		Targets: []physical.Target{
			{Name: "missing", Expression: physical.NewUnaryOp(physical.UnaryOpIsNull, x)},
			{Name: "any", Expression: physical.NewOr(
				physical.NewBinaryOp(physical.BinaryOpGreater, x, physical.NewConstant(octojit.NewInt32(0))),
				physical.NewConstant(octojit.NewBoolean(true)),
			)},
			{Name: "next", Expression: physical.NewBinaryOp(physical.BinaryOpAdd, x, physical.NewConstant(octojit.NewInt32(1)))},
		},
	}
	record := build(t, func(b *batch.Builder) {
		batch.AddColumn(b, "x", xType, []int32{1, 0, 3}, []bool{false, true, false})
	})

	for _, bypass := range []bool{false, true} {
		t.Run(fmt.Sprintf("bypass=%t", bypass), func(t *testing.T) {
			out := run(t, unit, codegenOptions(true, bypass), nil, record)
			require.Equal(t, int64(3), out.NumRows())

			missing := out.Column(0).(*array.Boolean)
			anything := out.Column(1).(*array.Boolean)
			next := out.Column(2).(*array.Int32)
			for i := 0; i < 3; i++ {
				assert.True(t, missing.IsValid(i), "row %d", i)
				assert.Equal(t, i == 1, missing.Value(i), "row %d", i)
				assert.True(t, anything.IsValid(i), "row %d", i)
				assert.True(t, anything.Value(i), "row %d", i)
			}
			assert.Equal(t, int32(2), next.Value(0))
			assert.True(t, next.IsNull(1))
			assert.Equal(t, int32(4), next.Value(2))
		})
	}
}

func TestNullHandlingBypassUnsupportedWithFilter(t *testing.T) {
	x := physical.NewVariable("x", octojit.Int32)
	unit := &physical.RelAlgExecutionUnit{
		Input: []physical.Column{{Name: "x", Type: octojit.Int32}},
		Quals: []physical.Expression{
			physical.NewBinaryOp(physical.BinaryOpGreater, x, physical.NewConstant(octojit.NewInt32(1))),
		},
		Targets: []physical.Target{{Name: "x", Expression: x}},
	}
	engine := newEngine(t, config.DefaultExecutionOptions())
	_, err := engine.Compile(context.Background(), unit, codegenOptions(true, true))
	assert.Error(t, err)
}

func TestGroupBy(t *testing.T) {
	kType := octojit.Int32.WithNullable(true)
	vType := octojit.Float64.WithNullable(true)
	k := physical.NewVariable("k", kType)
	v := physical.NewVariable("v", vType)
	unit := &physical.RelAlgExecutionUnit{
		Input:   []physical.Column{{Name: "k", Type: kType}, {Name: "v", Type: vType}},
		GroupBy: []physical.Expression{k},
		Aggregates: []physical.Aggregate{
			physical.NewAggregate("rows", physical.AggregateCountStar, nil),
			physical.NewAggregate("total", physical.AggregateSum, &v),
			physical.NewAggregate("mean", physical.AggregateAvg, &v),
			physical.NewAggregate("lowest", physical.AggregateMin, &v),
			physical.NewAggregate("values", physical.AggregateCount, &v),
		},
	}
	record := build(t, func(b *batch.Builder) {
		batch.AddColumn(b, "k", kType, []int32{1, 2, 1, 0, 2, 1}, []bool{false, false, false, true, false, false})
		batch.AddColumn(b, "v", vType, []float64{1, 2, 3, 4, 0, 5}, []bool{false, false, false, false, true, false})
	})

	out := run(t, unit, codegenOptions(true, false), nil, record)
	require.Equal(t, int64(3), out.NumRows())
	assert.Equal(t, "k", out.Schema().Field(0).Name)

	keys := out.Column(0).(*array.Int32)
	assert.Equal(t, int32(1), keys.Value(0))
	assert.Equal(t, int32(2), keys.Value(1))
	assert.True(t, keys.IsNull(2))

	assert.Equal(t, []int64{3, 2, 1}, out.Column(1).(*array.Int64).Int64Values())
	assert.Equal(t, []float64{9, 2, 4}, out.Column(2).(*array.Float64).Float64Values())
	assert.Equal(t, []float64{3, 2, 4}, out.Column(3).(*array.Float64).Float64Values())
	assert.Equal(t, []float64{1, 2, 4}, out.Column(4).(*array.Float64).Float64Values())
	assert.Equal(t, []int64{3, 1, 1}, out.Column(5).(*array.Int64).Int64Values())
}

func TestGroupByManyGroups(t *testing.T) {
	k := physical.NewVariable("k", octojit.Int64)
	unit := &physical.RelAlgExecutionUnit{
		Input:   []physical.Column{{Name: "k", Type: octojit.Int64}},
		GroupBy: []physical.Expression{k},
		Aggregates: []physical.Aggregate{
			physical.NewAggregate("highest", physical.AggregateMax, &k),
			physical.NewAggregate("rows", physical.AggregateCountStar, nil),
		},
	}
	const groups = 1000
	keys := make([]int64, 3*groups)
	for i := range keys {
		keys[i] = int64(i % groups)
	}
	record := build(t, func(b *batch.Builder) {
		batch.AddColumn(b, "k", octojit.Int64, keys, nil)
	})

	out := run(t, unit, codegenOptions(false, false), nil, record, record)
	require.Equal(t, int64(groups), out.NumRows())
	outKeys := out.Column(0).(*array.Int64)
	highest := out.Column(1).(*array.Int64)
	counts := out.Column(2).(*array.Int64)
	for i := 0; i < groups; i++ {
		assert.Equal(t, int64(i), outKeys.Value(i))
		assert.Equal(t, int64(i), highest.Value(i))
		assert.Equal(t, int64(6), counts.Value(i))
	}
}

func TestHashJoin(t *testing.T) {
	buildSchema := []physical.Column{{Name: "id", Type: octojit.Int64}, {Name: "label", Type: octojit.String}}
	buildRecord := build(t, func(b *batch.Builder) {
		batch.AddColumn(b, "id", octojit.Int64, []int64{1, 3, 3, 4}, nil)
		b.AddStringColumn("label", []string{"one", "three", "tres", "four"}, nil)
	})
	table, err := hashtable.BuildJoinTable(buildRecord.Schema(), []execution.Record{buildRecord}, 0, 3)
	require.NoError(t, err)

	x := physical.NewVariable("x", octojit.Int32)
	unit := &physical.RelAlgExecutionUnit{
		Input: []physical.Column{{Name: "x", Type: octojit.Int32}},
		JoinConditions: []physical.JoinCondition{{
			JoinType:     physical.JoinTypeInner,
			HashTable:    0,
			ProbeKeys:    []physical.Expression{x},
			BuildColumns: buildSchema,
		}},
		Targets: []physical.Target{
			{Name: "x", Expression: x},
			{Name: "label", Expression: physical.NewVariable("label", octojit.String)},
		},
	}
	record := build(t, func(b *batch.Builder) {
		batch.AddColumn(b, "x", octojit.Int32, []int32{1, 2, 3}, nil)
	})

	out := run(t, unit, codegenOptions(true, false), map[int]*hashtable.JoinTable{0: table}, record)
	require.Equal(t, int64(3), out.NumRows())
	xs := out.Column(0).(*array.Int32)
	labels := out.Column(1).(*array.String)
	assert.Equal(t, int32(1), xs.Value(0))
	assert.Equal(t, "one", labels.Value(0))
	assert.Equal(t, []int32{3, 3}, xs.Int32Values()[1:])
	assert.ElementsMatch(t, []string{"three", "tres"}, []string{labels.Value(1), labels.Value(2)})

	ctx := context.Background()
	engine := newEngine(t, config.DefaultExecutionOptions())
	query, err := engine.Compile(ctx, unit, config.DefaultCodegenOptions())
	require.NoError(t, err)
	_, err = Execute(ctx, query, nil, []execution.Record{record})
	assert.ErrorIs(t, err, ErrMissingHashTable)
}

func TestDictionaryStrings(t *testing.T) {
	nameColumn := physical.Column{Name: "name", Type: octojit.String, Encoding: octojit.EncodingDict, DictID: 7}
	name := physical.NewVariable("name", octojit.String)
	dictionary := []string{"a", "b", "c"}
	unit := &physical.RelAlgExecutionUnit{
		Input: []physical.Column{nameColumn},
		Quals: []physical.Expression{
			physical.NewBinaryOp(physical.BinaryOpNotEqual, name, physical.NewDictConstant(octojit.NewString("b"), 7)),
		},
		Targets:      []physical.Target{{Name: "name", Expression: name}},
		Dictionaries: map[int][]string{7: dictionary},
	}
	record := build(t, func(b *batch.Builder) {
		b.AddDictColumn("name", dictionary, []int32{0, 1, 2, 1, 0}, nil)
	})

	out := run(t, unit, codegenOptions(true, false), nil, record)
	require.Equal(t, int64(3), out.NumRows())
	names := out.Column(0).(*array.String)
	assert.Equal(t, []string{"a", "c", "a"}, []string{names.Value(0), names.Value(1), names.Value(2)})
}

func TestMismatchedBatch(t *testing.T) {
	x := physical.NewVariable("x", octojit.Int32)
	unit := &physical.RelAlgExecutionUnit{
		Input:   []physical.Column{{Name: "x", Type: octojit.Int32}},
		Targets: []physical.Target{{Name: "x", Expression: x}},
	}
	ctx := context.Background()
	engine := newEngine(t, config.DefaultExecutionOptions())
	query, err := engine.Compile(ctx, unit, config.DefaultCodegenOptions())
	require.NoError(t, err)

	record := build(t, func(b *batch.Builder) {
		b.AddStringColumn("x", []string{"1"}, nil)
	})
	_, err = Execute(ctx, query, nil, []execution.Record{record})
	assert.Error(t, err)
}
