package codegen

import (
	"fmt"

	"github.com/cube2222/octojit/abi"
	"github.com/cube2222/octojit/codegen/lib"
	"github.com/cube2222/octojit/octojit"
	"github.com/cube2222/octojit/physical"
)

type Slot struct {
	Name   string
	Offset uint32
	Size   uint32
}

// Layout describes the context struct passed to the generated function.
// The header is fixed, operator state slots are assigned during lowering.
type Layout struct {
	Size  uint32
	Slots []Slot

	Aggregates []AggregateState
	GroupBy    *GroupByState
	Joins      []JoinState
}

func NewLayout() *Layout {
	return &Layout{
		Size: abi.ContextHeaderSize,
		Slots: []Slot{
			{Name: "literal_buffer", Offset: abi.ContextLiteralBuffer, Size: 4},
			{Name: "output_batch", Offset: abi.ContextOutputBatch, Size: 4},
			{Name: "output_rows", Offset: abi.ContextOutputRows, Size: 4},
			{Name: "output_capacity", Offset: abi.ContextOutputCapacity, Size: 4},
		},
	}
}

func (l *Layout) Allocate(name string, size, alignment uint32) uint32 {
	offset := abi.AlignUp(l.Size, alignment)
	l.Slots = append(l.Slots, Slot{Name: name, Offset: offset, Size: size})
	l.Size = offset + size
	return offset
}

func (l *Layout) Slot(name string) (Slot, bool) {
	for i := range l.Slots {
		if l.Slots[i].Name == name {
			return l.Slots[i], true
		}
	}
	return Slot{}, false
}

// AggregateState describes the accumulator of a single aggregate.
// Without grouping, Value and Null are the accumulator slots themselves.
// With grouping, they hold pointers to per-group buffers.
type AggregateState struct {
	Name string
	Kind physical.AggregateKind
	// Type is the result type.
	Type octojit.Type
	// Width is the accumulator width, avg accumulates a double sum.
	Width lib.Width
	Value uint32
	Null  uint32
	// Count is the count accumulator of avg.
	Count uint32
	// Init is the initial bit pattern of the accumulator.
	Init uint64
}

// GroupByState describes the group key. Group slots are assigned by the host, which also keeps the keys.
type GroupByState struct {
	Name     string
	Type     octojit.Type
	Encoding octojit.Encoding
	DictID   int
}

// JoinState describes the probe state of a single hash join.
type JoinState struct {
	HashTable    int
	BuildColumns []physical.Column
	// Handle holds the runtime hash table handle, filled by the executor.
	Handle  uint32
	Key     uint32
	KeyNull uint32
	// Buffer is the probe result buffer descriptor.
	Buffer uint32
}

func (state AggregateState) String() string {
	return fmt.Sprintf("%s %s(%s) at %d", state.Name, state.Kind, state.Width, state.Value)
}
