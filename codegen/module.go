package codegen

import (
	"fmt"

	wasmbinary "github.com/tetratelabs/wabin/binary"
	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/codegen/lib"
)

const (
	QueryFunctionName = "query_func"
	MemoryExportName  = "memory"
	moduleName        = "octojit_query"
)

// ModuleBuilder owns the module-level state of a compilation: function types and imported runtime functions.
// Imports are added in order of first use, which keeps encoding deterministic.
type ModuleBuilder struct {
	MemoryPages    uint32
	MaxMemoryPages uint32

	types       []*wasm.FunctionType
	typeIndices map[string]wasm.Index

	imports       []*wasm.Import
	importIndices map[string]wasm.Index
}

func NewModuleBuilder(memoryPages, maxMemoryPages uint32) *ModuleBuilder {
	return &ModuleBuilder{
		MemoryPages:    memoryPages,
		MaxMemoryPages: maxMemoryPages,
		typeIndices:    map[string]wasm.Index{},
		importIndices:  map[string]wasm.Index{},
	}
}

func signatureKey(params, results []wasm.ValueType) string {
	return string(params) + ":" + string(results)
}

func (m *ModuleBuilder) TypeIndex(params, results []wasm.ValueType) wasm.Index {
	key := signatureKey(params, results)
	if index, ok := m.typeIndices[key]; ok {
		return index
	}
	m.types = append(m.types, &wasm.FunctionType{Params: params, Results: results})
	index := wasm.Index(len(m.types) - 1)
	m.typeIndices[key] = index
	return index
}

// FunctionIndex returns the function index of the runtime library function, importing it if necessary.
func (m *ModuleBuilder) FunctionIndex(name string) wasm.Index {
	if index, ok := m.importIndices[name]; ok {
		return index
	}
	f, ok := lib.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("unknown library function: %s", name))
	}
	m.imports = append(m.imports, &wasm.Import{
		Type:     wasm.ExternTypeFunc,
		Module:   lib.ModuleName,
		Name:     name,
		DescFunc: m.TypeIndex(f.Params, f.Results),
	})
	index := wasm.Index(len(m.imports) - 1)
	m.importIndices[name] = index
	return index
}

// Imports lists the imported runtime functions in index order.
func (m *ModuleBuilder) Imports() []string {
	out := make([]string, len(m.imports))
	for i := range m.imports {
		out[i] = m.imports[i].Name
	}
	return out
}

func (m *ModuleBuilder) NewFunction(name string, params []wasm.ValueType, paramNames []string, results []wasm.ValueType) *FunctionBuilder {
	return &FunctionBuilder{
		Name:       name,
		Params:     params,
		ParamNames: paramNames,
		Results:    results,
		module:     m,
	}
}

// Encode assembles the binary module with the given function as its only exported function.
// The memory is defined by the module and exported, so that the host can fill it.
func (m *ModuleBuilder) Encode(f *FunctionBuilder) []byte {
	// Types of the defined function must be added before the type section is frozen.
	typeIndex := m.TypeIndex(f.Params, f.Results)
	functionIndex := wasm.Index(len(m.imports))

	var functionNames wasm.NameMap
	for i, imp := range m.imports {
		functionNames = append(functionNames, &wasm.NameAssoc{Index: wasm.Index(i), Name: imp.Name})
	}
	functionNames = append(functionNames, &wasm.NameAssoc{Index: functionIndex, Name: f.Name})

	var localNames wasm.NameMap
	for i, name := range f.ParamNames {
		localNames = append(localNames, &wasm.NameAssoc{Index: wasm.Index(i), Name: name})
	}
	for i, name := range f.LocalNames {
		localNames = append(localNames, &wasm.NameAssoc{Index: wasm.Index(len(f.Params) + i), Name: name})
	}

	module := &wasm.Module{
		TypeSection:     m.types,
		ImportSection:   m.imports,
		FunctionSection: []wasm.Index{typeIndex},
		MemorySection: &wasm.Memory{
			Min:          m.MemoryPages,
			Max:          m.MaxMemoryPages,
			IsMaxEncoded: true,
		},
		ExportSection: []*wasm.Export{
			{Type: wasm.ExternTypeFunc, Name: f.Name, Index: functionIndex},
			{Type: wasm.ExternTypeMemory, Name: MemoryExportName, Index: 0},
		},
		CodeSection: []*wasm.Code{
			{LocalTypes: f.Locals, Body: f.Code},
		},
		NameSection: &wasm.NameSection{
			ModuleName:    moduleName,
			FunctionNames: functionNames,
			LocalNames: wasm.IndirectNameMap{
				&wasm.NameMapAssoc{Index: functionIndex, NameMap: localNames},
			},
		},
	}

	return wasmbinary.EncodeModule(module)
}
