package lib

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/cube2222/octojit/abi"
)

// lookUpValueByKey probes the hash table with the key and writes all matches to the buffer.
// Parameters: hash table handle, key pointer (i64), null pointer (byte), buffer descriptor pointer.
// Returns the number of matches. A null key never matches and doesn't touch the buffer.
func lookUpValueByKey(ctx context.Context, mod api.Module, stack []uint64) {
	handle := api.DecodeU32(stack[0])
	keyPtr := api.DecodeU32(stack[1])
	nullPtr := api.DecodeU32(stack[2])
	bufferPtr := api.DecodeU32(stack[3])
	mem := mod.Memory()

	if readByte(mem, nullPtr) != 0 {
		stack[0] = 0
		return
	}
	key := int64(readUint64(mem, keyPtr))

	env := environmentFrom(ctx)
	table, ok := env.HashTable(handle)
	if !ok {
		panic(fmt.Sprintf("unknown hash table: %d", handle))
	}
	matches := table.FindAll(key)

	size := uint32(len(matches)) * abi.JoinBaseValueSize
	if size > readUint32(mem, bufferPtr+abi.BufferCapacity) {
		ptr, err := env.Allocate(size, 8)
		if err != nil {
			panic(fmt.Errorf("couldn't allocate join result buffer: %w", err))
		}
		writeUint32(mem, bufferPtr+abi.BufferPtr, ptr)
		writeUint32(mem, bufferPtr+abi.BufferCapacity, size)
	}
	writeUint32(mem, bufferPtr+abi.BufferSize, size)

	entries := readUint32(mem, bufferPtr+abi.BufferPtr)
	for i, match := range matches {
		entry := entries + uint32(i)*abi.JoinBaseValueSize
		writeUint64(mem, entry, match.Batch)
		writeUint64(mem, entry+8, match.Offset)
	}

	stack[0] = uint64(len(matches))
}

// joinResultEntry returns the address of the index-th probe result.
func joinResultEntry(mem api.Memory, bufferPtr uint32, index uint64) uint32 {
	return readUint32(mem, bufferPtr+abi.BufferPtr) + uint32(index)*abi.JoinBaseValueSize
}

// extractJoinResArray returns the batch address of the index-th probe result.
func extractJoinResArray(ctx context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	entry := joinResultEntry(mem, api.DecodeU32(stack[0]), stack[1])
	stack[0] = api.EncodeU32(uint32(readUint64(mem, entry)))
}

// extractJoinRowID returns the row offset of the index-th probe result.
func extractJoinRowID(ctx context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	entry := joinResultEntry(mem, api.DecodeU32(stack[0]), stack[1])
	stack[0] = readUint64(mem, entry+8)
}
