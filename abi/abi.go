// Package abi describes the memory layout shared by generated code, the runtime library and the executor.
// All pointers are 32-bit offsets into the linear memory of a query instance.
package abi

// Arrays follow the arrow C data interface, with 32-bit fields.
const (
	ArrayLength    = 0
	ArrayNullCount = 4
	ArrayOffset    = 8
	ArrayNBuffers  = 12
	ArrayNChildren = 16
	ArrayBuffers   = 20
	ArrayChildren  = 24
	ArraySize      = 28
)

// Buffer indices within an array's buffer list.
const (
	BufferValidity = 0
	BufferValues   = 1
	// Variable-length columns keep int32 offsets in BufferValues and bytes in BufferData.
	BufferData = 2
)

// Buffer is the scratch buffer descriptor used by hash join probes.
const (
	BufferPtr      = 0
	BufferCapacity = 4
	BufferSize     = 8
)

// JoinBaseValueSize is the size of a single probe result entry: u64 batch pointer followed by u64 row offset.
const JoinBaseValueSize = 16

// The context struct starts with a fixed header. Operator-specific slots follow and are assigned at compile time.
const (
	ContextLiteralBuffer  = 0
	ContextOutputBatch    = 4
	ContextOutputRows     = 8
	ContextOutputCapacity = 12
	ContextHeaderSize     = 16
)

// The output batch is an array of column descriptors. Fixed-width values are stored in their byte width,
// booleans take a byte each. Strings are handed to the host and only use the validity bitmap.
const (
	OutputColumnValues   = 0
	OutputColumnValidity = 4
	OutputColumnSize     = 8
)

// WasmPageSize is the size of a linear memory page.
const WasmPageSize = 65536

// FirstAllocatableAddress keeps address zero unused, so a zero pointer always means "absent".
const FirstAllocatableAddress = 1024

func AlignUp(v, alignment uint32) uint32 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// ValidityBytes is the size of a validity bitmap for the given number of rows.
func ValidityBytes(rows uint32) uint32 {
	return (rows + 7) / 8
}
