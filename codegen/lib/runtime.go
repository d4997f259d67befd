package lib

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// getGroupIndex maps a group key to its slot in the group state buffers.
// Parameters: context pointer, key, is null.
func getGroupIndex(ctx context.Context, mod api.Module, stack []uint64) {
	index, err := environmentFrom(ctx).GroupIndex(int64(stack[1]), api.DecodeU32(stack[2]) != 0)
	if err != nil {
		panic(fmt.Errorf("couldn't get group index: %w", err))
	}
	stack[0] = uint64(index)
}

func outputGrow(ctx context.Context, mod api.Module, stack []uint64) {
	if err := environmentFrom(ctx).GrowOutput(); err != nil {
		panic(fmt.Errorf("couldn't grow output: %w", err))
	}
}

// outputSetString stores a string output value on the host.
// Parameters: context pointer, column, row, string pointer, string length.
func outputSetString(ctx context.Context, mod api.Module, stack []uint64) {
	value := readString(mod.Memory(), api.DecodeU32(stack[3]), api.DecodeU32(stack[4]))
	environmentFrom(ctx).SetOutputString(api.DecodeU32(stack[1]), api.DecodeU32(stack[2]), value)
}

// stringCompare compares two strings bytewise, returning -1, 0 or 1.
func stringCompare(ctx context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	left := view(mem, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	right := view(mem, api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
	stack[0] = api.EncodeI32(int32(bytes.Compare(left, right)))
}

// stringOp applies a string-producing operation registered at compile time.
// Parameters: operation index, string pointer, string length. Results: pointer, length, is null.
func stringOp(ctx context.Context, mod api.Module, stack []uint64) {
	env := environmentFrom(ctx)
	op, ok := env.StringOp(api.DecodeU32(stack[0]))
	if !ok {
		panic(fmt.Sprintf("unknown string operation: %d", api.DecodeU32(stack[0])))
	}
	mem := mod.Memory()
	out, null := op.Eval(readString(mem, api.DecodeU32(stack[1]), api.DecodeU32(stack[2])))
	if null || len(out) == 0 {
		stack[0], stack[1], stack[2] = 0, 0, boolToStack(null)
		return
	}
	ptr, err := env.AllocateScratch(uint32(len(out)))
	if err != nil {
		panic(fmt.Errorf("couldn't allocate string operation result: %w", err))
	}
	copy(view(mem, ptr, uint32(len(out))), out)
	stack[0], stack[1], stack[2] = api.EncodeU32(ptr), api.EncodeU32(uint32(len(out))), 0
}

// stringTryCast parses a string into the operation's target type.
// Parameters: operation index, string pointer, string length. Results: value bits, is null.
func stringTryCast(ctx context.Context, mod api.Module, stack []uint64) {
	op, ok := environmentFrom(ctx).StringOp(api.DecodeU32(stack[0]))
	if !ok {
		panic(fmt.Sprintf("unknown string operation: %d", api.DecodeU32(stack[0])))
	}
	value := op.NumericEval(readString(mod.Memory(), api.DecodeU32(stack[1]), api.DecodeU32(stack[2])))
	if value.Null {
		stack[0], stack[1] = 0, 1
		return
	}
	stack[0], stack[1] = value.Bits(), 0
}

func readString(mem api.Memory, ptr, length uint32) string {
	if length == 0 {
		return ""
	}
	return string(view(mem, ptr, length))
}

func boolToStack(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
