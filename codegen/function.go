package codegen

import (
	"fmt"
	"math"

	"github.com/tetratelabs/wabin/leb128"
	"github.com/tetratelabs/wabin/wasm"
)

const blockTypeEmpty = 0x40

// Label is a branch target, valid until the construct that opened it is ended.
type Label struct {
	depth int
}

// FunctionBuilder accumulates the body of a single function.
type FunctionBuilder struct {
	Name    string
	Params  []wasm.ValueType
	Results []wasm.ValueType

	ParamNames []string
	Locals     []wasm.ValueType
	LocalNames []string

	Code []byte

	module *ModuleBuilder
	// controlDepth is the number of currently open blocks, loops and ifs.
	controlDepth int
}

func (f *FunctionBuilder) AddLocal(name string, valueType wasm.ValueType) uint32 {
	f.Locals = append(f.Locals, valueType)
	f.LocalNames = append(f.LocalNames, name)

	return uint32(len(f.Params) + len(f.Locals) - 1)
}

func (f *FunctionBuilder) AppendCode(data ...byte) {
	f.Code = append(f.Code, data...)
}

// Offset is the current end of the body.
func (f *FunctionBuilder) Offset() int {
	return len(f.Code)
}

func (f *FunctionBuilder) LocalGet(index uint32) {
	f.AppendCode(wasm.OpcodeLocalGet)
	f.AppendCode(leb128.EncodeUint32(index)...)
}

func (f *FunctionBuilder) LocalSet(index uint32) {
	f.AppendCode(wasm.OpcodeLocalSet)
	f.AppendCode(leb128.EncodeUint32(index)...)
}

func (f *FunctionBuilder) LocalTee(index uint32) {
	f.AppendCode(wasm.OpcodeLocalTee)
	f.AppendCode(leb128.EncodeUint32(index)...)
}

func (f *FunctionBuilder) I32Const(value int32) {
	f.AppendCode(wasm.OpcodeI32Const)
	f.AppendCode(leb128.EncodeInt32(value)...)
}

func (f *FunctionBuilder) I64Const(value int64) {
	f.AppendCode(wasm.OpcodeI64Const)
	f.AppendCode(leb128.EncodeInt64(value)...)
}

func (f *FunctionBuilder) F32Const(value float32) {
	bits := math.Float32bits(value)
	f.AppendCode(wasm.OpcodeF32Const, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
}

func (f *FunctionBuilder) F64Const(value float64) {
	bits := math.Float64bits(value)
	f.AppendCode(wasm.OpcodeF64Const)
	for i := 0; i < 8; i++ {
		f.AppendCode(byte(bits >> (8 * i)))
	}
}

// Load emits a memory load with the natural alignment of the opcode.
func (f *FunctionBuilder) Load(op wasm.Opcode, offset uint32) {
	f.memoryAccess(op, offset)
}

func (f *FunctionBuilder) Store(op wasm.Opcode, offset uint32) {
	f.memoryAccess(op, offset)
}

func (f *FunctionBuilder) memoryAccess(op wasm.Opcode, offset uint32) {
	f.AppendCode(op)
	f.AppendCode(leb128.EncodeUint32(naturalAlignment(op))...)
	f.AppendCode(leb128.EncodeUint32(offset)...)
}

// naturalAlignment returns the log2 of the access width.
func naturalAlignment(op wasm.Opcode) uint32 {
	switch op {
	case wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U,
		wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
		return 0
	case wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
		return 1
	case wasm.OpcodeI32Load, wasm.OpcodeF32Load, wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U,
		wasm.OpcodeI32Store, wasm.OpcodeF32Store, wasm.OpcodeI64Store32:
		return 2
	case wasm.OpcodeI64Load, wasm.OpcodeF64Load, wasm.OpcodeI64Store, wasm.OpcodeF64Store:
		return 3
	}
	panic(fmt.Sprintf("not a memory access opcode: %#x", op))
}

func (f *FunctionBuilder) Block() Label {
	return f.open(wasm.OpcodeBlock)
}

func (f *FunctionBuilder) Loop() Label {
	return f.open(wasm.OpcodeLoop)
}

// If pops the condition and opens a conditional block.
func (f *FunctionBuilder) If() Label {
	return f.open(wasm.OpcodeIf)
}

func (f *FunctionBuilder) Else() {
	f.AppendCode(wasm.OpcodeElse)
}

func (f *FunctionBuilder) End() {
	if f.controlDepth == 0 {
		panic("end without an open block")
	}
	f.controlDepth--
	f.AppendCode(wasm.OpcodeEnd)
}

func (f *FunctionBuilder) open(op wasm.Opcode) Label {
	f.AppendCode(op, blockTypeEmpty)
	f.controlDepth++
	return Label{depth: f.controlDepth}
}

func (f *FunctionBuilder) relativeDepth(label Label) uint32 {
	if label.depth > f.controlDepth || label.depth < 1 {
		panic("branch to a closed label")
	}
	return uint32(f.controlDepth - label.depth)
}

func (f *FunctionBuilder) Br(label Label) {
	f.AppendCode(wasm.OpcodeBr)
	f.AppendCode(leb128.EncodeUint32(f.relativeDepth(label))...)
}

func (f *FunctionBuilder) BrIf(label Label) {
	f.AppendCode(wasm.OpcodeBrIf)
	f.AppendCode(leb128.EncodeUint32(f.relativeDepth(label))...)
}

func (f *FunctionBuilder) Return() {
	f.AppendCode(wasm.OpcodeReturn)
}

// Call emits a call to a runtime library function, importing it on first use.
func (f *FunctionBuilder) Call(name string) {
	f.AppendCode(wasm.OpcodeCall)
	f.AppendCode(leb128.EncodeUint32(f.module.FunctionIndex(name))...)
}

// balanced reports whether all blocks have been ended.
func (f *FunctionBuilder) balanced() bool {
	return f.controlDepth == 0
}
