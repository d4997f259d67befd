package codegen

import (
	"fmt"

	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/abi"
	"github.com/cube2222/octojit/octojit"
)

// link emits the literal loading prologue and resolves all relocations to the locals it assigns.
func (ctx *CodegenContext) link() {
	f := ctx.Function
	prologue := &FunctionBuilder{module: f.module}

	literalLocals := make(map[int16][]uint32, ctx.Literals.Len())
	if ctx.Literals.Len() > 0 {
		literalBuffer := f.AddLocal("literal_buffer", wasm.ValueTypeI32)
		prologue.LocalGet(ContextParam)
		prologue.Load(wasm.OpcodeI32Load, abi.ContextLiteralBuffer)
		prologue.LocalSet(literalBuffer)

		for _, literal := range ctx.Literals.Literals() {
			literalLocals[literal.Offset] = emitLiteralLoad(prologue, f, literalBuffer, literal)
		}
	}

	for _, relocation := range ctx.Relocations {
		locals, ok := literalLocals[relocation.LiteralOffset]
		if !ok {
			panic(fmt.Sprintf("relocation at %d references missing literal at offset %d", relocation.CodeOffset, relocation.LiteralOffset))
		}
		if relocation.SubIndex >= len(locals) {
			panic(fmt.Sprintf("relocation at %d references value %d of literal at offset %d, which has %d values", relocation.CodeOffset, relocation.SubIndex, relocation.LiteralOffset, len(locals)))
		}
		copy(f.Code[relocation.CodeOffset:relocation.CodeOffset+paddedIndexLength], paddedUint32(locals[relocation.SubIndex]))
	}

	f.Code = append(prologue.Code, f.Code...)
}

// emitLiteralLoad loads all values of a literal into fresh locals, which are returned in sub-index order.
func emitLiteralLoad(prologue, f *FunctionBuilder, literalBuffer uint32, literal Literal) []uint32 {
	offset := uint32(literal.Offset)
	name := fmt.Sprintf("literal_%d", literal.Offset)

	switch literal.Kind {
	case LiteralKindScalar:
		local := f.AddLocal(name, ValueType(literal.Value.Type))
		prologue.LocalGet(literalBuffer)
		prologue.Load(LoadOpcode(literal.Value.Type), offset)
		prologue.LocalSet(local)
		return []uint32{local}

	case LiteralKindDictString:
		local := f.AddLocal(name, wasm.ValueTypeI32)
		prologue.LocalGet(literalBuffer)
		prologue.Load(wasm.OpcodeI32Load, offset)
		prologue.LocalSet(local)
		return []uint32{local}

	case LiteralKindString, LiteralKindArray:
		header := f.AddLocal(name+"_header", wasm.ValueTypeI32)
		start := f.AddLocal(name+"_start", wasm.ValueTypeI32)
		address := f.AddLocal(name+"_address", wasm.ValueTypeI32)
		length := f.AddLocal(name+"_length", wasm.ValueTypeI32)

		prologue.LocalGet(literalBuffer)
		prologue.Load(wasm.OpcodeI32Load, offset)
		prologue.LocalTee(header)
		prologue.I32Const(16)
		prologue.AppendCode(wasm.OpcodeI32ShrU)
		prologue.LocalTee(start)
		prologue.LocalGet(literalBuffer)
		prologue.AppendCode(wasm.OpcodeI32Add)
		prologue.LocalSet(address)
		prologue.LocalGet(header)
		prologue.I32Const(0xFFFF)
		prologue.AppendCode(wasm.OpcodeI32And)
		prologue.LocalSet(length)

		if literal.Kind == LiteralKindArray {
			return []uint32{address, length}
		}
		return []uint32{start, address, length}
	}
	panic("unexhaustive literal kind match")
}

// ValueType is the type of the local holding a value of the given type. Strings and lists are held as addresses.
func ValueType(t octojit.Type) wasm.ValueType {
	switch t.TypeID {
	case octojit.TypeIDInt64, octojit.TypeIDTimestamp:
		return wasm.ValueTypeI64
	case octojit.TypeIDFloat32:
		return wasm.ValueTypeF32
	case octojit.TypeIDFloat64:
		return wasm.ValueTypeF64
	default:
		return wasm.ValueTypeI32
	}
}

// LoadOpcode loads a fixed-width value stored in its byte width. Booleans are stored as single bytes.
func LoadOpcode(t octojit.Type) wasm.Opcode {
	switch t.TypeID {
	case octojit.TypeIDBoolean:
		return wasm.OpcodeI32Load8U
	case octojit.TypeIDInt8:
		return wasm.OpcodeI32Load8S
	case octojit.TypeIDInt16:
		return wasm.OpcodeI32Load16S
	case octojit.TypeIDInt64, octojit.TypeIDTimestamp:
		return wasm.OpcodeI64Load
	case octojit.TypeIDFloat32:
		return wasm.OpcodeF32Load
	case octojit.TypeIDFloat64:
		return wasm.OpcodeF64Load
	default:
		return wasm.OpcodeI32Load
	}
}

func StoreOpcode(t octojit.Type) wasm.Opcode {
	switch t.TypeID {
	case octojit.TypeIDBoolean, octojit.TypeIDInt8:
		return wasm.OpcodeI32Store8
	case octojit.TypeIDInt16:
		return wasm.OpcodeI32Store16
	case octojit.TypeIDInt64, octojit.TypeIDTimestamp:
		return wasm.OpcodeI64Store
	case octojit.TypeIDFloat32:
		return wasm.OpcodeF32Store
	case octojit.TypeIDFloat64:
		return wasm.OpcodeF64Store
	default:
		return wasm.OpcodeI32Store
	}
}
