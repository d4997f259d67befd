package wasmsql

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/cube2222/octojit/arrowexec/execution"
	"github.com/cube2222/octojit/arrowexec/hashtable"
	"github.com/cube2222/octojit/codegen/lib"
)

// Consume runs the query over a single batch. The batch columns have to match the unit's input columns.
func (i *Instance) Consume(ctx context.Context, record execution.Record) error {
	for _, join := range i.cc.Layout.Joins {
		if i.readUint32(i.context+join.Handle) == 0 {
			return fmt.Errorf("hash table %d: %w", join.HashTable, ErrMissingHashTable)
		}
	}

	// Results of the previous batch have already been collected.
	i.scratchUsed = 0

	i.inputWriter.reset()
	if err := i.inputWriter.writeRecord(record.Record, i.query.unit.Input); err != nil {
		return fmt.Errorf("couldn't write batch: %w", err)
	}
	size := uint32(len(i.inputWriter.buf))
	if size > i.inputCapacity {
		address, err := i.Allocate(size, 8)
		if err != nil {
			return err
		}
		i.input, i.inputCapacity = address, size
	}
	i.write(i.input, i.inputWriter.relocate(i.input))

	start := time.Now()
	results, err := i.fn.Call(lib.WithEnvironment(ctx, i), uint64(i.context), uint64(i.input))
	i.runTime += time.Since(start)
	if err != nil {
		return fmt.Errorf("couldn't run query: %w", err)
	}
	if status := uint32(results[0]); status != 0 {
		return fmt.Errorf("query returned status %d", status)
	}
	i.batches++
	i.rowsRead += record.NumRows()

	if i.output != nil {
		if err := i.collectOutput(); err != nil {
			return err
		}
	}
	return nil
}

// Result returns the rows produced so far. For aggregations, it's the final state of the accumulators.
func (i *Instance) Result() (execution.Record, error) {
	if i.aggregating() {
		return i.aggregateResult()
	}
	return execution.Record{Record: i.output.builder.NewRecord()}, nil
}

// Execute runs the query over all batches on a fresh instance.
func Execute(ctx context.Context, query *Query, hashTables map[int]*hashtable.JoinTable, records []execution.Record) (execution.Record, error) {
	instance, err := query.NewInstance(ctx)
	if err != nil {
		return execution.Record{}, err
	}
	defer instance.Close(ctx)

	indices := maps.Keys(hashTables)
	slices.Sort(indices)
	for _, index := range indices {
		if err := instance.RegisterHashTable(index, hashTables[index]); err != nil {
			return execution.Record{}, fmt.Errorf("couldn't register hash table %d: %w", index, err)
		}
	}
	for _, record := range records {
		if err := instance.Consume(ctx, record); err != nil {
			return execution.Record{}, err
		}
	}
	return instance.Result()
}
