package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cube2222/octojit/physical"
)

const sumPlan = `{
	"input": [{"name": "x", "type": "Int32?"}],
	"quals": [{"unary": "is not null", "arg": {"var": "x"}}],
	"aggregates": [{"name": "s", "kind": "sum", "argument": {"var": "x"}}]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) string {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--log-stderr"))
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	plan := writeFile(t, dir, "plan.json", sumPlan)
	rows := writeFile(t, dir, "rows.jsonl", "{\"x\": 1}\n{\"x\": null}\n{\"x\": 3}\n")

	out := execute(t, "run", plan, "--input", rows)
	assert.Contains(t, out, " s ")
	assert.Contains(t, out, " 4 ")
}

func TestCompileCommand(t *testing.T) {
	dir := t.TempDir()
	plan := writeFile(t, dir, "plan.json", sumPlan)
	module := filepath.Join(dir, "out.wasm")

	out := execute(t, "compile", plan, "-o", module)
	assert.Contains(t, out, "query_func(")
	assert.Contains(t, out, "output_capacity")

	data, err := os.ReadFile(module)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00asm"), data[:4])
}

func TestExplainCommand(t *testing.T) {
	dir := t.TempDir()
	plan := writeFile(t, dir, "plan.json", sumPlan)

	out := execute(t, "explain", plan, "--graph")
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "aggregate")
}

func TestParseHashTableFlag(t *testing.T) {
	unit := &physical.RelAlgExecutionUnit{
		JoinConditions: []physical.JoinCondition{{
			HashTable:    2,
			BuildColumns: []physical.Column{{Name: "id"}, {Name: "label"}},
		}},
	}

	input, err := parseHashTableFlag(unit, "2:label:users.jsonl")
	require.NoError(t, err)
	assert.Equal(t, 2, input.index)
	assert.Equal(t, 1, input.keyIndex)
	assert.Equal(t, "users.jsonl", input.path)

	for _, text := range []string{"2:label", "x:label:users.jsonl", "3:id:users.jsonl", "2:missing:users.jsonl"} {
		_, err := parseHashTableFlag(unit, text)
		assert.Error(t, err, text)
	}
}

func TestRunCommandProfile(t *testing.T) {
	dir := t.TempDir()
	plan := writeFile(t, dir, "plan.json", sumPlan)
	rows := writeFile(t, dir, "rows.jsonl", "{\"x\": 2}\n")
	t.Cleanup(func() {
		runProfile, runProfilePath = "", "."
	})

	out := execute(t, "run", plan, "--input", rows, "--profile", "mem", "--profile-path", dir)
	assert.Contains(t, out, " 2 ")
	_, err := os.Stat(filepath.Join(dir, "mem.pprof"))
	assert.NoError(t, err)
}

func TestProfileMode(t *testing.T) {
	for _, name := range []string{"cpu", "mem", "block", "mutex", "trace"} {
		mode, err := profileMode(name)
		require.NoError(t, err, name)
		assert.NotNil(t, mode, name)
	}
	_, err := profileMode("heap")
	assert.Error(t, err)
}
