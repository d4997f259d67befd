package wasmsql

import (
	"encoding/binary"
	"fmt"

	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/brentp/intintmap"

	"github.com/cube2222/octojit/arrowexec/execution"
	"github.com/cube2222/octojit/codegen"
	"github.com/cube2222/octojit/octojit"
	"github.com/cube2222/octojit/physical"
)

const initialGroupCapacity = 64

// groupState keeps the group keys on the host. The accumulators of the i-th group live at index i
// of the per-aggregate buffers, whose addresses are stored in the context.
type groupState struct {
	indices   *intintmap.Map
	nullGroup int
	keys      []int64
	keyNulls  []bool
	capacity  uint32
}

func (i *Instance) newGroupState() (*groupState, error) {
	groups := &groupState{
		indices:   intintmap.New(initialGroupCapacity, 0.6),
		nullGroup: -1,
	}
	if err := i.allocateGroupBuffers(groups, initialGroupCapacity); err != nil {
		return nil, err
	}
	return groups, nil
}

type groupBuffer struct {
	slot uint32
	size uint32
}

func groupBuffers(state codegen.AggregateState) []groupBuffer {
	out := []groupBuffer{
		{slot: state.Value, size: state.Width.Size()},
		{slot: state.Null, size: 1},
	}
	if state.Kind == physical.AggregateAvg {
		out = append(out, groupBuffer{slot: state.Count, size: 8})
	}
	return out
}

func (i *Instance) allocateGroupBuffers(groups *groupState, capacity uint32) error {
	for _, state := range i.cc.Layout.Aggregates {
		for _, buffer := range groupBuffers(state) {
			address, err := i.Allocate(capacity*buffer.size, 8)
			if err != nil {
				return err
			}
			if groups.capacity > 0 {
				old := i.readUint32(i.context + buffer.slot)
				i.write(address, i.read(old, groups.capacity*buffer.size))
			}
			i.writeUint32(i.context+buffer.slot, address)
		}
	}
	groups.capacity = capacity
	return nil
}

func (i *Instance) GroupIndex(key int64, isNull bool) (uint32, error) {
	groups := i.groups
	if groups == nil {
		return 0, fmt.Errorf("query isn't grouped")
	}
	if isNull {
		if groups.nullGroup >= 0 {
			return uint32(groups.nullGroup), nil
		}
	} else if index, ok := groups.indices.Get(key); ok {
		return uint32(index), nil
	}

	index := uint32(len(groups.keys))
	if index == groups.capacity {
		if err := i.allocateGroupBuffers(groups, 2*groups.capacity); err != nil {
			return 0, err
		}
	}
	for _, state := range i.cc.Layout.Aggregates {
		values := i.readUint32(i.context + state.Value)
		nulls := i.readUint32(i.context + state.Null)
		i.initializeAccumulator(state, values+index*state.Width.Size(), nulls+index)
	}

	groups.keys = append(groups.keys, key)
	groups.keyNulls = append(groups.keyNulls, isNull)
	if isNull {
		groups.nullGroup = int(index)
	} else {
		groups.indices.Put(key, int64(index))
	}
	return index, nil
}

// initializeAccumulator writes the initial value and marks the accumulator as null. Counts start zeroed.
func (i *Instance) initializeAccumulator(state codegen.AggregateState, value, null uint32) {
	bits := make([]byte, 8)
	binary.LittleEndian.PutUint64(bits, state.Init)
	i.write(value, bits[:state.Width.Size()])
	i.write(null, []byte{1})
}

type accumulatorAddresses struct {
	value, null, count uint32
}

func (i *Instance) accumulatorOf(state codegen.AggregateState, group uint32) accumulatorAddresses {
	if i.groups == nil {
		return accumulatorAddresses{
			value: i.context + state.Value,
			null:  i.context + state.Null,
			count: i.context + state.Count,
		}
	}
	return accumulatorAddresses{
		value: i.readUint32(i.context+state.Value) + group*state.Width.Size(),
		null:  i.readUint32(i.context+state.Null) + group,
		count: i.readUint32(i.context+state.Count) + group*8,
	}
}

// aggregateValue finalizes an accumulator.
func (i *Instance) aggregateValue(state codegen.AggregateState, group uint32) octojit.Value {
	addresses := i.accumulatorOf(state, group)
	bits := readBits(i.read(addresses.value, state.Width.Size()), state.Width.Size())
	null := i.read(addresses.null, 1)[0] != 0

	switch state.Kind {
	case physical.AggregateCount, physical.AggregateCountStar:
		return octojit.ValueFromBits(state.Type, bits)
	case physical.AggregateAvg:
		if null {
			return octojit.NewNull(state.Type)
		}
		count := i.readUint64(addresses.count)
		sum := octojit.ValueFromBits(octojit.Float64, bits).Float
		return octojit.Value{Type: state.Type, Float: sum / float64(count)}
	default:
		if null {
			return octojit.NewNull(state.Type)
		}
		return octojit.ValueFromBits(state.Type, bits)
	}
}

func (i *Instance) groupKey(group uint32) (octojit.Value, error) {
	state := i.cc.Layout.GroupBy
	if i.groups.keyNulls[group] {
		return octojit.NewNull(state.Type), nil
	}
	key := i.groups.keys[group]
	if state.Encoding == octojit.EncodingDict {
		return i.dictionaryString(state.DictID, int32(key))
	}
	return octojit.ValueFromBits(state.Type, uint64(key)), nil
}

// aggregateResult reads the accumulators into a record. Without grouping, it has a single row.
func (i *Instance) aggregateResult() (execution.Record, error) {
	builder := array.NewRecordBuilder(memory.NewGoAllocator(), outputSchema(i.cc.Output))
	defer builder.Release()

	groups := uint32(1)
	column := 0
	if i.groups != nil {
		groups = uint32(len(i.groups.keys))
		for group := uint32(0); group < groups; group++ {
			key, err := i.groupKey(group)
			if err != nil {
				return execution.Record{}, fmt.Errorf("couldn't read group key: %w", err)
			}
			appendValue(builder.Field(0), key)
		}
		column++
	}
	for _, state := range i.cc.Layout.Aggregates {
		for group := uint32(0); group < groups; group++ {
			appendValue(builder.Field(column), i.aggregateValue(state, group))
		}
		column++
	}

	return execution.Record{Record: builder.NewRecord()}, nil
}
