package batch

import (
	"bufio"
	"fmt"
	"io"

	"github.com/valyala/fastjson"
	"golang.org/x/exp/slices"

	"github.com/cube2222/octojit/arrowexec/execution"
	"github.com/cube2222/octojit/octojit"
	"github.com/cube2222/octojit/physical"
)

// ReadJSONLines reads one JSON object per line into batches of at most batchSize rows.
// Object fields are matched to columns by name, missing fields are nulls.
func ReadJSONLines(r io.Reader, columns []physical.Column, dictionaries map[int][]string, batchSize int) ([]execution.Record, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns to read")
	}
	if batchSize < 1 {
		batchSize = execution.IdealBatchSize
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, 1024*1024)

	var p fastjson.Parser
	var out []execution.Record
	values := make([][]octojit.Value, len(columns))
	flush := func() error {
		if len(values[0]) == 0 {
			return nil
		}
		record, err := buildFromValues(columns, dictionaries, values)
		if err != nil {
			return err
		}
		out = append(out, record)
		for i := range values {
			values[i] = values[i][:0]
		}
		return nil
	}

	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		v, err := p.ParseBytes(sc.Bytes())
		if err != nil {
			return nil, fmt.Errorf("couldn't parse json on line %d: %w", line, err)
		}
		o, err := v.Object()
		if err != nil {
			return nil, fmt.Errorf("expected JSON object on line %d, got '%s'", line, sc.Text())
		}
		for i, column := range columns {
			value, ok := physical.ValueFromJSON(column.Type, o.Get(column.Name))
			if !ok || (value.Null && !column.Type.Nullable) {
				return nil, fmt.Errorf("line %d: invalid %s value for column %s: %s", line, column.Type, column.Name, o.Get(column.Name))
			}
			values[i] = append(values[i], value)
		}
		if len(values[0]) == batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func buildFromValues(columns []physical.Column, dictionaries map[int][]string, values [][]octojit.Value) (execution.Record, error) {
	b := NewBuilder()
	for i, column := range columns {
		column := column
		var nulls []bool
		if column.Type.Nullable {
			nulls = make([]bool, len(values[i]))
			for row := range values[i] {
				nulls[row] = values[i][row].Null
			}
		}

		switch column.Type.TypeID {
		case octojit.TypeIDBoolean:
			b.AddBoolColumn(column.Name, mapValues(values[i], func(v octojit.Value) bool { return v.Boolean }), nulls)
		case octojit.TypeIDFloat32, octojit.TypeIDFloat64:
			AddColumn(b, column.Name, column.Type, mapValues(values[i], func(v octojit.Value) float64 { return v.Float }), nulls)
		case octojit.TypeIDString:
			strs := mapValues(values[i], func(v octojit.Value) string { return v.Str })
			if column.Encoding != octojit.EncodingDict {
				b.AddStringColumn(column.Name, strs, nulls)
				continue
			}
			dictionary, ok := dictionaries[column.DictID]
			if !ok {
				return execution.Record{}, fmt.Errorf("column %s: unknown string dictionary %d", column.Name, column.DictID)
			}
			indices := make([]int32, len(strs))
			for row, str := range strs {
				if nulls != nil && nulls[row] {
					continue
				}
				index := slices.Index(dictionary, str)
				if index < 0 {
					return execution.Record{}, fmt.Errorf("column %s: '%s' isn't in dictionary %d", column.Name, str, column.DictID)
				}
				indices[row] = int32(index)
			}
			b.AddDictColumn(column.Name, dictionary, indices, nulls)
		case octojit.TypeIDList:
			return execution.Record{}, fmt.Errorf("column %s: list columns aren't supported", column.Name)
		default:
			AddColumn(b, column.Name, column.Type, mapValues(values[i], func(v octojit.Value) int64 { return v.Int }), nulls)
		}
	}
	return b.Build()
}

func mapValues[T any](values []octojit.Value, f func(v octojit.Value) T) []T {
	out := make([]T, len(values))
	for i := range values {
		out[i] = f(values[i])
	}
	return out
}
