// Package lib is the runtime function library linked into every generated module.
// All functions are Go host functions exported from a single host module, instantiated once per engine.
package lib

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ModuleName is the import module name of all runtime functions.
const ModuleName = "env"

type Function struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	Impl    api.GoModuleFunc
}

var catalog = buildCatalog()

func buildCatalog() map[string]*Function {
	out := make(map[string]*Function)
	add := func(f *Function) {
		if _, ok := out[f.Name]; ok {
			panic(fmt.Sprintf("duplicate runtime function: %s", f.Name))
		}
		out[f.Name] = f
	}

	for _, variant := range Variants {
		for _, op := range []AggregateOp{AggregateOpSum, AggregateOpMin, AggregateOpMax} {
			for width := WidthInt8; width <= WidthDouble; width++ {
				add(aggregateFunction(op, width, variant))
			}
		}
		add(countFunction(variant))
	}

	add(&Function{
		Name:    "look_up_value_by_key",
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI64},
		Impl:    lookUpValueByKey,
	})
	add(&Function{
		Name:    "extract_join_res_array",
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI64},
		Results: []api.ValueType{api.ValueTypeI32},
		Impl:    extractJoinResArray,
	})
	add(&Function{
		Name:    "extract_join_row_id",
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI64},
		Results: []api.ValueType{api.ValueTypeI64},
		Impl:    extractJoinRowID,
	})

	add(&Function{
		Name:    "get_group_index",
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI64},
		Impl:    getGroupIndex,
	})
	add(&Function{
		Name:   "output_grow",
		Params: []api.ValueType{api.ValueTypeI32},
		Impl:   outputGrow,
	})
	add(&Function{
		Name:   "output_set_string",
		Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
		Impl:   outputSetString,
	})
	add(&Function{
		Name:    "string_compare",
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32},
		Impl:    stringCompare,
	})
	add(&Function{
		Name:    "string_op",
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
		Impl:    stringOp,
	})
	add(&Function{
		Name:    "string_try_cast",
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI64, api.ValueTypeI32},
		Impl:    stringTryCast,
	})

	return out
}

func Lookup(name string) (*Function, bool) {
	f, ok := catalog[name]
	return f, ok
}

// Names returns the names of all runtime functions in sorted order.
func Names() []string {
	names := maps.Keys(catalog)
	slices.Sort(names)
	return names
}

// Instantiate registers the runtime library as a host module in the given runtime.
func Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(ModuleName)
	for _, name := range Names() {
		f := catalog[name]
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.Impl, f.Params, f.Results).
			WithName(f.Name).
			Export(f.Name)
	}
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't instantiate runtime library: %w", err)
	}
	return mod, nil
}

func outOfBounds(size int, offset uint32) string {
	return fmt.Sprintf("out of bounds memory access: %d bytes at %d", size, offset)
}

func readByte(mem api.Memory, offset uint32) byte {
	value, ok := mem.ReadByte(offset)
	if !ok {
		panic(outOfBounds(1, offset))
	}
	return value
}

func writeByte(mem api.Memory, offset uint32, value byte) {
	if !mem.WriteByte(offset, value) {
		panic(outOfBounds(1, offset))
	}
}

func readUint32(mem api.Memory, offset uint32) uint32 {
	value, ok := mem.ReadUint32Le(offset)
	if !ok {
		panic(outOfBounds(4, offset))
	}
	return value
}

func writeUint32(mem api.Memory, offset, value uint32) {
	if !mem.WriteUint32Le(offset, value) {
		panic(outOfBounds(4, offset))
	}
}

func readUint64(mem api.Memory, offset uint32) uint64 {
	value, ok := mem.ReadUint64Le(offset)
	if !ok {
		panic(outOfBounds(8, offset))
	}
	return value
}

func writeUint64(mem api.Memory, offset uint32, value uint64) {
	if !mem.WriteUint64Le(offset, value) {
		panic(outOfBounds(8, offset))
	}
}

func view(mem api.Memory, offset, size uint32) []byte {
	data, ok := mem.Read(offset, size)
	if !ok {
		panic(fmt.Sprintf("out of bounds memory access: %d bytes at %d", size, offset))
	}
	return data
}
