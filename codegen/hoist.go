package codegen

import (
	"fmt"

	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/octojit"
)

// Relocation is a local index placeholder in the function body, to be replaced by the local holding a hoisted literal value.
type Relocation struct {
	// CodeOffset is the offset of the padded local index in the function body.
	CodeOffset    int
	LiteralOffset int16
	SubIndex      int
}

const paddedIndexLength = 5

// paddedUint32 encodes the value as an LEB128 of maximum length, so that it can be patched in place.
func paddedUint32(value uint32) []byte {
	out := make([]byte, paddedIndexLength)
	for i := 0; i < paddedIndexLength-1; i++ {
		out[i] = byte(value&0x7f) | 0x80
		value >>= 7
	}
	out[paddedIndexLength-1] = byte(value & 0x7f)
	return out
}

// AddLiteral registers the literal on all devices, returning its buffer offset.
func (ctx *CodegenContext) AddLiteral(value octojit.Value, encoding octojit.Encoding, dictID int) (int16, error) {
	offset, err := ctx.Literals.GetOrAdd(value, encoding, dictID, 0)
	if err != nil {
		return 0, err
	}
	for device := 1; device < ctx.Options.DeviceCount; device++ {
		deviceOffset, err := ctx.Literals.GetOrAdd(value, encoding, dictID, device)
		if err != nil {
			return 0, err
		}
		if deviceOffset != offset {
			panic(fmt.Sprintf("literal %s got offset %d on device %d, expected %d", value, deviceOffset, device, offset))
		}
	}
	return offset, nil
}

// EmitLiteralValue pushes the sub-value of a hoisted literal. The actual load happens once, in the function prologue.
func (ctx *CodegenContext) EmitLiteralValue(offset int16, subIndex int) {
	f := ctx.Function
	f.AppendCode(wasm.OpcodeLocalGet)
	ctx.Relocations = append(ctx.Relocations, Relocation{
		CodeOffset:    f.Offset(),
		LiteralOffset: offset,
		SubIndex:      subIndex,
	})
	f.AppendCode(paddedUint32(0)...)
}
