package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dchest/siphash"
	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/config"
	"github.com/cube2222/octojit/functions"
	"github.com/cube2222/octojit/octojit"
)

var ErrUnsupported = errors.New("unsupported construct")

type State int

const (
	StateBuilding State = iota
	StateLowering
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateLowering:
		return "lowering"
	case StateFinished:
		return "finished"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Parameters of the generated function.
const (
	ContextParam = 0
	InputParam   = 1
)

// Fingerprint keys are fixed, so that fingerprints are stable across processes.
const (
	fingerprintKey0 = 0x6f63746f6a697430
	fingerprintKey1 = 0x71756572795f6670
)

type OutputColumn struct {
	Name     string
	Type     octojit.Type
	Encoding octojit.Encoding
	DictID   int
}

// CodegenContext is a single compilation session. It owns the module and everything lowering registers in it.
type CodegenContext struct {
	Options  config.CodegenOptions
	Module   *ModuleBuilder
	Function *FunctionBuilder
	Literals *LiteralTable
	// Relocations are resolved by the link step in Finish.
	Relocations []Relocation
	Layout      *Layout
	Output      []OutputColumn
	// StringOps are referenced by index from runtime string function calls.
	StringOps    []*functions.StringOp
	Dictionaries map[int][]string

	state       State
	binary      []byte
	fingerprint uint64
	uniqueNames map[string]int
}

func NewCodegenContext(options config.CodegenOptions, dictionaries map[int][]string) *CodegenContext {
	module := NewModuleBuilder(options.MemoryPages, options.MaxMemoryPages)
	return &CodegenContext{
		Options: options,
		Module:  module,
		Function: module.NewFunction(
			QueryFunctionName,
			[]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
			[]string{"context", "input"},
			[]wasm.ValueType{wasm.ValueTypeI32},
		),
		Literals:     NewLiteralTable(options.DeviceCount, dictionaries),
		Layout:       NewLayout(),
		Dictionaries: dictionaries,
		state:        StateBuilding,
	}
}

func (ctx *CodegenContext) State() State {
	return ctx.state
}

func (ctx *CodegenContext) transition(from, to State) {
	if ctx.state != from {
		panic(fmt.Sprintf("invalid codegen state transition to %s: in state %s, expected %s", to, ctx.state, from))
	}
	ctx.state = to
}

func (ctx *CodegenContext) BeginLowering() {
	ctx.transition(StateBuilding, StateLowering)
}

// Finish closes the function body, links literals, and encodes the module.
func (ctx *CodegenContext) Finish() {
	ctx.transition(StateLowering, StateFinished)
	if !ctx.Function.balanced() {
		panic("finishing a function with unclosed blocks")
	}
	ctx.Function.AppendCode(wasm.OpcodeEnd)
	ctx.link()
	ctx.binary = ctx.Module.Encode(ctx.Function)
	ctx.fingerprint = siphash.Hash(fingerprintKey0, fingerprintKey1, ctx.binary)
}

func (ctx *CodegenContext) assertFinished() {
	if ctx.state != StateFinished {
		panic(fmt.Sprintf("compilation not finished, in state %s", ctx.state))
	}
}

// Binary returns the encoded module.
func (ctx *CodegenContext) Binary() []byte {
	ctx.assertFinished()
	return ctx.binary
}

func (ctx *CodegenContext) Fingerprint() uint64 {
	ctx.assertFinished()
	return ctx.fingerprint
}

func (ctx *CodegenContext) Signature() string {
	f := ctx.Function
	params := make([]string, len(f.Params))
	for i := range f.Params {
		params[i] = fmt.Sprintf("%s %s", f.ParamNames[i], valueTypeName(f.Params[i]))
	}
	results := make([]string, len(f.Results))
	for i := range f.Results {
		results[i] = valueTypeName(f.Results[i])
	}
	return fmt.Sprintf("%s(%s) -> %s", f.Name, strings.Join(params, ", "), strings.Join(results, ", "))
}

// RegisterStringOp makes the operation available to runtime string functions, returning its index.
func (ctx *CodegenContext) RegisterStringOp(op *functions.StringOp) int32 {
	ctx.StringOps = append(ctx.StringOps, op)
	return int32(len(ctx.StringOps) - 1)
}

func valueTypeName(t wasm.ValueType) string {
	switch t {
	case wasm.ValueTypeI32:
		return "i32"
	case wasm.ValueTypeI64:
		return "i64"
	case wasm.ValueTypeF32:
		return "f32"
	case wasm.ValueTypeF64:
		return "f64"
	}
	return fmt.Sprintf("ValueType(%#x)", t)
}
