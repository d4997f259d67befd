package wasmsql

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/cube2222/octojit/abi"
	"github.com/cube2222/octojit/arrowexec/hashtable"
	"github.com/cube2222/octojit/codegen"
	"github.com/cube2222/octojit/codegen/lib"
	"github.com/cube2222/octojit/functions"
)

var (
	ErrOutOfMemory      = errors.New("out of instance memory")
	ErrMissingHashTable = errors.New("missing hash table")
)

// Instance is a single instantiation of a query, with its own memory and state.
// It's not safe for concurrent use, separate instances may run concurrently.
type Instance struct {
	query  *Query
	cc     *codegen.CodegenContext
	module api.Module
	memory api.Memory
	fn     api.Function

	// next is the arena pointer. Arena memory is never reused, so it's zeroed when handed out.
	next    uint32
	context uint32

	// scratch holds per-batch results of runtime functions, rewound at the start of each batch.
	scratch, scratchCapacity, scratchUsed uint32

	hashTables map[uint32]lib.HashTable
	// input is the region batches are written to, reused while they fit.
	input, inputCapacity uint32
	inputWriter          batchWriter

	output *outputState
	groups *groupState

	batches  int
	runTime  time.Duration
	rowsRead int64
}

var _ lib.Environment = &Instance{}

func (q *Query) NewInstance(ctx context.Context) (*Instance, error) {
	start := time.Now()
	module, err := q.engine.runtime.InstantiateModule(ctx, q.compiled, wazero.NewModuleConfig().WithName(uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("couldn't instantiate module: %w", err)
	}
	instance := &Instance{
		query:      q,
		cc:         q.codegen,
		module:     module,
		memory:     module.Memory(),
		fn:         module.ExportedFunction(codegen.QueryFunctionName),
		next:       abi.FirstAllocatableAddress,
		hashTables: map[uint32]lib.HashTable{},
	}
	if instance.memory == nil || instance.fn == nil {
		module.Close(ctx)
		return nil, fmt.Errorf("module doesn't export memory and %s", codegen.QueryFunctionName)
	}
	if err := instance.initialize(); err != nil {
		module.Close(ctx)
		return nil, fmt.Errorf("couldn't initialize instance: %w", err)
	}
	log.Printf("instantiated module %016x in %s", q.codegen.Fingerprint(), time.Since(start))

	return instance, nil
}

func (i *Instance) initialize() error {
	layout := i.cc.Layout

	address, err := i.Allocate(layout.Size, 8)
	if err != nil {
		return err
	}
	i.context = address

	literals := i.cc.Literals.Buffer()
	if len(literals) > 0 {
		literalBuffer, err := i.Allocate(uint32(len(literals)), 8)
		if err != nil {
			return err
		}
		i.write(literalBuffer, literals)
		i.writeUint32(i.context+abi.ContextLiteralBuffer, literalBuffer)
	}

	if i.aggregating() {
		if layout.GroupBy != nil {
			groups, err := i.newGroupState()
			if err != nil {
				return err
			}
			i.groups = groups
		} else {
			for _, state := range layout.Aggregates {
				i.initializeAccumulator(state, i.context+state.Value, i.context+state.Null)
			}
		}
		return nil
	}

	output, err := i.newOutputState(uint32(i.query.engine.options.OutputCapacity))
	if err != nil {
		return err
	}
	i.output = output
	return nil
}

func (i *Instance) aggregating() bool {
	return len(i.cc.Layout.Aggregates) > 0 || i.cc.Layout.GroupBy != nil
}

// RegisterHashTable makes the table available to all join probes against the given hash table index.
// The table's partitions are copied into the instance memory.
func (i *Instance) RegisterHashTable(index int, table *hashtable.JoinTable) error {
	var joins []codegen.JoinState
	for _, join := range i.cc.Layout.Joins {
		if join.HashTable == index {
			joins = append(joins, join)
		}
	}
	if len(joins) == 0 {
		return fmt.Errorf("no join probes hash table %d", index)
	}

	partitions := table.Partitions()
	batches := make([]uint32, len(partitions))
	for p, partition := range partitions {
		data, err := encodeRecord(partition.Record, joins[0].BuildColumns)
		if err != nil {
			return fmt.Errorf("couldn't encode partition %d of hash table %d: %w", p, index, err)
		}
		address, err := i.Allocate(uint32(len(data.buf)), 8)
		if err != nil {
			return err
		}
		i.write(address, data.relocate(address))
		batches[p] = address
	}

	handle := uint32(len(i.hashTables) + 1)
	i.hashTables[handle] = &memoryHashTable{table: table, batches: batches}
	for _, join := range joins {
		i.writeUint32(i.context+join.Handle, handle)
	}
	return nil
}

// memoryHashTable resolves matches to the addresses of the partitions in instance memory.
type memoryHashTable struct {
	table   *hashtable.JoinTable
	batches []uint32
}

func (t *memoryHashTable) FindAll(key int64) []lib.JoinBaseValue {
	matches := t.table.FindAll(key)
	out := make([]lib.JoinBaseValue, len(matches))
	for i, match := range matches {
		out[i] = lib.JoinBaseValue{
			Batch:  uint64(t.batches[match.Partition]),
			Offset: uint64(match.Row),
		}
	}
	return out
}

func (i *Instance) HashTable(handle uint32) (lib.HashTable, bool) {
	table, ok := i.hashTables[handle]
	return table, ok
}

func (i *Instance) Allocate(size, alignment uint32) (uint32, error) {
	if alignment == 0 {
		alignment = 1
	}
	ptr := abi.AlignUp(i.next, alignment)
	end := uint64(ptr) + uint64(size)
	if end > uint64(i.memory.Size()) {
		missing := end - uint64(i.memory.Size())
		pages := (missing + abi.WasmPageSize - 1) / abi.WasmPageSize
		if pages > 65536 {
			return 0, fmt.Errorf("allocating %d bytes: %w", size, ErrOutOfMemory)
		}
		if _, ok := i.memory.Grow(uint32(pages)); !ok {
			return 0, fmt.Errorf("growing memory by %d pages: %w", pages, ErrOutOfMemory)
		}
	}
	i.next = uint32(end)
	return ptr, nil
}

const minScratchCapacity = 64 * 1024

// AllocateScratch returns memory valid until the next batch starts. When the current scratch region is full,
// a region of at least twice the size is taken from the arena, so its size settles at the largest batch's needs.
func (i *Instance) AllocateScratch(size uint32) (uint32, error) {
	if uint64(i.scratchUsed)+uint64(size) > uint64(i.scratchCapacity) {
		capacity := uint64(i.scratchCapacity) * 2
		if capacity < minScratchCapacity {
			capacity = minScratchCapacity
		}
		for capacity < uint64(size) {
			capacity *= 2
		}
		if capacity > math.MaxUint32 {
			return 0, fmt.Errorf("allocating %d bytes of scratch: %w", size, ErrOutOfMemory)
		}
		address, err := i.Allocate(uint32(capacity), 8)
		if err != nil {
			return 0, err
		}
		i.scratch, i.scratchCapacity, i.scratchUsed = address, uint32(capacity), 0
	}
	ptr := i.scratch + i.scratchUsed
	i.scratchUsed += size
	return ptr, nil
}

func (i *Instance) StringOp(index uint32) (*functions.StringOp, bool) {
	if int(index) >= len(i.cc.StringOps) {
		return nil, false
	}
	return i.cc.StringOps[index], true
}

func (i *Instance) Close(ctx context.Context) error {
	log.Printf("closing instance of module %016x: %d batches, %d rows, %s running", i.cc.Fingerprint(), i.batches, i.rowsRead, i.runTime)
	return i.module.Close(ctx)
}

func (i *Instance) write(offset uint32, data []byte) {
	if !i.memory.Write(offset, data) {
		panic(fmt.Sprintf("out of bounds memory write: %d bytes at %d", len(data), offset))
	}
}

func (i *Instance) read(offset, size uint32) []byte {
	data, ok := i.memory.Read(offset, size)
	if !ok {
		panic(fmt.Sprintf("out of bounds memory read: %d bytes at %d", size, offset))
	}
	return data
}

func (i *Instance) writeUint32(offset, value uint32) {
	if !i.memory.WriteUint32Le(offset, value) {
		panic(fmt.Sprintf("out of bounds memory write at %d", offset))
	}
}

func (i *Instance) readUint32(offset uint32) uint32 {
	value, ok := i.memory.ReadUint32Le(offset)
	if !ok {
		panic(fmt.Sprintf("out of bounds memory read at %d", offset))
	}
	return value
}

func (i *Instance) readUint64(offset uint32) uint64 {
	value, ok := i.memory.ReadUint64Le(offset)
	if !ok {
		panic(fmt.Sprintf("out of bounds memory read at %d", offset))
	}
	return value
}
