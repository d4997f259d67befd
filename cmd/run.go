package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cube2222/octojit/arrowexec/batch"
	"github.com/cube2222/octojit/arrowexec/execution"
	"github.com/cube2222/octojit/arrowexec/hashtable"
	"github.com/cube2222/octojit/physical"
	"github.com/cube2222/octojit/wasmsql"
)

var runCmd = &cobra.Command{
	Use:   "run <plan.json>",
	Short: "Compiles a plan and runs it over JSON lines input.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		unit, err := readUnit(args[0])
		if err != nil {
			return err
		}
		codegenOptions, executionOptions, err := readOptions()
		if err != nil {
			return err
		}
		if runProfile != "" {
			mode, err := profileMode(runProfile)
			if err != nil {
				return err
			}
			defer profile.Start(mode, profile.ProfilePath(runProfilePath), profile.NoShutdownHook).Stop()
		}

		inputs := make([]hashTableInput, len(runHashTables))
		for i := range runHashTables {
			if inputs[i], err = parseHashTableFlag(unit, runHashTables[i]); err != nil {
				return err
			}
		}
		tables := make([]*hashtable.JoinTable, len(inputs))
		g, _ := errgroup.WithContext(ctx)
		for i := range inputs {
			i := i
			g.Go(func() error {
				table, err := inputs[i].build(unit.Dictionaries, executionOptions.HashTablePartitions)
				if err != nil {
					return fmt.Errorf("couldn't build hash table %d: %w", inputs[i].index, err)
				}
				tables[i] = table
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		hashTables := make(map[int]*hashtable.JoinTable, len(inputs))
		for i := range inputs {
			hashTables[inputs[i].index] = tables[i]
		}

		records, err := readRecords(runInput, unit.Input, unit.Dictionaries, runBatchSize)
		if err != nil {
			return fmt.Errorf("couldn't read input: %w", err)
		}

		engine, err := wasmsql.NewEngine(ctx, executionOptions)
		if err != nil {
			return err
		}
		defer engine.Close(ctx)
		query, err := engine.Compile(ctx, unit, codegenOptions)
		if err != nil {
			return err
		}
		defer query.Close(ctx)

		result, err := wasmsql.Execute(ctx, query, hashTables, records)
		if err != nil {
			return fmt.Errorf("couldn't run query: %w", err)
		}
		defer result.Release()
		printRecord(cmd.OutOrStdout(), result)
		return nil
	},
}

var runInput string
var runHashTables []string
var runBatchSize int
var runProfile string
var runProfilePath string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runInput, "input", "-", "JSON lines input file, - for stdin.")
	runCmd.Flags().StringArrayVar(&runHashTables, "hash-table", nil, "Hash table to join against, as index:key_column:path.")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", execution.IdealBatchSize, "Maximum number of rows per input batch.")
	runCmd.Flags().StringVar(&runProfile, "profile", "", "Profile the run: cpu, mem, block, mutex or trace.")
	runCmd.Flags().StringVar(&runProfilePath, "profile-path", ".", "Directory to write the profile to.")
}

var profileModes = map[string]func(*profile.Profile){
	"cpu":   profile.CPUProfile,
	"mem":   profile.MemProfile,
	"block": profile.BlockProfile,
	"mutex": profile.MutexProfile,
	"trace": profile.TraceProfile,
}

func profileMode(name string) (func(*profile.Profile), error) {
	mode, ok := profileModes[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile '%s', expected one of cpu, mem, block, mutex or trace", name)
	}
	return mode, nil
}

type hashTableInput struct {
	index    int
	columns  []physical.Column
	keyIndex int
	path     string
}

func parseHashTableFlag(unit *physical.RelAlgExecutionUnit, text string) (hashTableInput, error) {
	parts := strings.SplitN(text, ":", 3)
	if len(parts) != 3 {
		return hashTableInput{}, fmt.Errorf("invalid hash table '%s', expected index:key_column:path", text)
	}
	index, err := strconv.Atoi(parts[0])
	if err != nil {
		return hashTableInput{}, fmt.Errorf("invalid hash table index '%s': %w", parts[0], err)
	}
	for _, condition := range unit.JoinConditions {
		if condition.HashTable != index {
			continue
		}
		for i, column := range condition.BuildColumns {
			if column.Name == parts[1] {
				return hashTableInput{index: index, columns: condition.BuildColumns, keyIndex: i, path: parts[2]}, nil
			}
		}
		return hashTableInput{}, fmt.Errorf("hash table %d has no column %s", index, parts[1])
	}
	return hashTableInput{}, fmt.Errorf("no join uses hash table %d", index)
}

func (input hashTableInput) build(dictionaries map[int][]string, partitions int) (*hashtable.JoinTable, error) {
	records, err := readRecords(input.path, input.columns, dictionaries, execution.IdealBatchSize)
	if err != nil {
		return nil, err
	}
	return hashtable.BuildJoinTable(batch.Schema(input.columns), records, input.keyIndex, partitions)
}

func readRecords(path string, columns []physical.Column, dictionaries map[int][]string, batchSize int) ([]execution.Record, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return batch.ReadJSONLines(r, columns, dictionaries, batchSize)
}

func printRecord(w io.Writer, record execution.Record) {
	table := tablewriter.NewWriter(w)
	table.SetColWidth(24)
	table.SetRowLine(false)
	table.SetAutoFormatHeaders(false)

	schema := record.Schema()
	header := make([]string, len(schema.Fields()))
	for i, field := range schema.Fields() {
		header[i] = field.Name
	}
	table.SetHeader(header)

	for row := 0; row < int(record.NumRows()); row++ {
		values := make([]string, record.NumCols())
		for col := range values {
			column := record.Column(col)
			if column.IsNull(row) {
				values[col] = "<null>"
			} else {
				values[col] = column.ValueStr(row)
			}
		}
		table.Append(values)
	}
	table.Render()
}
