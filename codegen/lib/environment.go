package lib

import (
	"context"

	"github.com/cube2222/octojit/functions"
)

// JoinBaseValue identifies a single build-side row: the address of its batch and the row offset in it.
type JoinBaseValue struct {
	Batch  uint64
	Offset uint64
}

type HashTable interface {
	// FindAll returns all matching build-side rows, in table order.
	FindAll(key int64) []JoinBaseValue
}

// Environment is the per-instance state runtime functions operate on.
type Environment interface {
	HashTable(handle uint32) (HashTable, bool)
	// Allocate returns zeroed memory of the given size in the instance's linear memory.
	Allocate(size, alignment uint32) (uint32, error)
	// AllocateScratch returns memory which is only valid until the current batch is done.
	AllocateScratch(size uint32) (uint32, error)
	StringOp(index uint32) (*functions.StringOp, bool)
	// GroupIndex returns the group slot for the key, creating it and growing the group state if necessary.
	GroupIndex(key int64, isNull bool) (uint32, error)
	// GrowOutput enlarges the output batch and updates its pointers in the context.
	GrowOutput() error
	SetOutputString(column, row uint32, value string)
}

type environmentKey struct{}

func WithEnvironment(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, environmentKey{}, env)
}

func environmentFrom(ctx context.Context) Environment {
	env, ok := ctx.Value(environmentKey{}).(Environment)
	if !ok {
		panic("runtime function called without an environment")
	}
	return env
}
