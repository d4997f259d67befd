package batch

import (
	"strings"
	"testing"

	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octojit/octojit"
	"github.com/cube2222/octojit/physical"
)

func TestReadJSONLines(t *testing.T) {
	columns := []physical.Column{
		{Name: "x", Type: octojit.Int16.WithNullable(true)},
		{Name: "ok", Type: octojit.Boolean},
		{Name: "name", Type: octojit.String, Encoding: octojit.EncodingDict, DictID: 1},
		{Name: "score", Type: octojit.Float64},
	}
	input := `{"x": 1, "ok": true, "name": "b", "score": 0.5}
{"ok": false, "name": "a", "score": 2}

{"x": 3, "ok": true, "name": "b", "score": -1}
`
	records, err := ReadJSONLines(strings.NewReader(input), columns, map[int][]string{1: {"a", "b"}}, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].NumRows())
	assert.Equal(t, int64(1), records[1].NumRows())

	x := records[0].Column(0).(*array.Int16)
	assert.Equal(t, int16(1), x.Value(0))
	assert.True(t, x.IsNull(1))
	assert.False(t, records[0].Column(1).(*array.Boolean).Value(1))
	names := records[0].Column(2).(*array.Dictionary)
	assert.Equal(t, []int{1, 0}, []int{names.GetValueIndex(0), names.GetValueIndex(1)})
	assert.Equal(t, -1.0, records[1].Column(3).(*array.Float64).Value(0))
}

func TestReadJSONLinesErrors(t *testing.T) {
	columns := []physical.Column{
		{Name: "x", Type: octojit.Int64},
		{Name: "name", Type: octojit.String, Encoding: octojit.EncodingDict, DictID: 1},
	}
	dictionaries := map[int][]string{1: {"a"}}
	for _, input := range []string{
		`{"x": 1, "name": "a"`,
		`[1]`,
		`{"name": "a"}`,
		`{"x": "1", "name": "a"}`,
		`{"x": 1, "name": "z"}`,
	} {
		_, err := ReadJSONLines(strings.NewReader(input), columns, dictionaries, 10)
		assert.Error(t, err, input)
	}
}
