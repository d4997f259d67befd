package hashtable

import (
	"math/rand"
	"testing"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octojit/arrowexec/execution"
)

var testSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

func buildTestRecord(t *testing.T, ids []int64, names []string, nullIDs map[int]bool) execution.Record {
	t.Helper()
	recordBuilder := array.NewRecordBuilder(memory.DefaultAllocator, testSchema)
	for i := range ids {
		if nullIDs[i] {
			recordBuilder.Field(0).(*array.Int64Builder).AppendNull()
		} else {
			recordBuilder.Field(0).(*array.Int64Builder).Append(ids[i])
		}
		recordBuilder.Field(1).(*array.StringBuilder).Append(names[i])
	}
	return execution.Record{Record: recordBuilder.NewRecord()}
}

func namesOf(table *JoinTable, matches []Match) []string {
	partitions := table.Partitions()
	var out []string
	for _, match := range matches {
		out = append(out, partitions[match.Partition].Column(1).(*array.String).Value(match.Row))
	}
	return out
}

func TestJoinTableFindAll(t *testing.T) {
	for _, partitions := range []int{1, 3, 8} {
		records := []execution.Record{
			buildTestRecord(t, []int64{1, 2, 3}, []string{"a", "b", "c"}, nil),
			buildTestRecord(t, []int64{2, 0, 4}, []string{"d", "e", "f"}, map[int]bool{1: true}),
		}
		table, err := BuildJoinTable(testSchema, records, 0, partitions)
		require.NoError(t, err)

		assert.Equal(t, []string{"a"}, namesOf(table, table.FindAll(1)))
		assert.ElementsMatch(t, []string{"b", "d"}, namesOf(table, table.FindAll(2)))
		assert.Equal(t, []string{"f"}, namesOf(table, table.FindAll(4)))
		// Null keys are never stored.
		assert.Empty(t, table.FindAll(0))
		assert.Empty(t, table.FindAll(42))

		var rows int64
		for _, partition := range table.Partitions() {
			rows += partition.NumRows()
		}
		assert.Equal(t, int64(5), rows)
	}
}

func TestJoinTableRandomized(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	expected := map[int64]int{}
	var records []execution.Record
	for i := 0; i < 4; i++ {
		ids := make([]int64, 256)
		names := make([]string, 256)
		for j := range ids {
			ids[j] = int64(rnd.Intn(64))
			expected[ids[j]]++
		}
		records = append(records, buildTestRecord(t, ids, names, nil))
	}

	table, err := BuildJoinTable(testSchema, records, 0, 4)
	require.NoError(t, err)
	for key := int64(0); key < 70; key++ {
		matches := table.FindAll(key)
		assert.Len(t, matches, expected[key], "key %d", key)
	}
}

func TestBuildJoinTableInvalid(t *testing.T) {
	_, err := BuildJoinTable(testSchema, nil, 0, 0)
	assert.Error(t, err)
	_, err = BuildJoinTable(testSchema, nil, 5, 1)
	assert.Error(t, err)

	records := []execution.Record{buildTestRecord(t, []int64{1}, []string{"a"}, nil)}
	_, err = BuildJoinTable(testSchema, records, 1, 1)
	assert.Error(t, err)
}
