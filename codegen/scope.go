package codegen

import (
	"fmt"

	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/octojit"
)

// Value is a lowered expression result held in locals.
type Value struct {
	Type     octojit.Type
	Encoding octojit.Encoding
	DictID   int

	// Local holds the value. Strings and lists hold their data address.
	Local uint32
	// Length holds the byte length of strings.
	Length uint32
	// Null is the null flag local, only valid if Nullable is set.
	Null     uint32
	Nullable bool

	// Constant is set for values known at compile time.
	Constant *octojit.Value
}

func (v Value) IsString() bool {
	return v.Type.TypeID == octojit.TypeIDString && v.Encoding == octojit.EncodingNone
}

type ColumnBinding struct {
	Name  string
	Value Value
}

type VariableContext struct {
	Parent  *VariableContext
	Columns []ColumnBinding
}

func (varCtx *VariableContext) WithColumns(columns []ColumnBinding) *VariableContext {
	return &VariableContext{
		Parent:  varCtx,
		Columns: columns,
	}
}

func (varCtx *VariableContext) GetValue(name string) (Value, bool) {
	cur := varCtx
	for cur != nil {
		for i := range cur.Columns {
			if cur.Columns[i].Name == name {
				return cur.Columns[i].Value, true
			}
		}
		cur = cur.Parent
	}
	return Value{}, false
}

// Unique returns a fresh local name with the given prefix.
func (ctx *CodegenContext) Unique(name string) string {
	if ctx.uniqueNames == nil {
		ctx.uniqueNames = map[string]int{}
	}
	i := ctx.uniqueNames[name]
	ctx.uniqueNames[name]++
	return fmt.Sprintf("%s_%d", name, i)
}

// NewValue allocates the locals of a value of the given type.
func (ctx *CodegenContext) NewValue(name string, t octojit.Type, nullable bool) Value {
	name = ctx.Unique(name)
	f := ctx.Function
	v := Value{
		Type:     t,
		Local:    f.AddLocal(name, ValueType(t)),
		Nullable: nullable,
	}
	if v.Type.TypeID == octojit.TypeIDString {
		v.Length = f.AddLocal(name+"_length", wasm.ValueTypeI32)
	}
	if nullable {
		v.Null = f.AddLocal(name+"_null", wasm.ValueTypeI32)
	}
	return v
}

// NewLocal allocates a scratch local.
func (ctx *CodegenContext) NewLocal(name string, valueType wasm.ValueType) uint32 {
	return ctx.Function.AddLocal(ctx.Unique(name), valueType)
}

// EmitNull pushes the null flag of the value.
func (ctx *CodegenContext) EmitNull(v Value) {
	if v.Nullable {
		ctx.Function.LocalGet(v.Null)
	} else {
		ctx.Function.I32Const(0)
	}
}

// emitNullOr pushes the disjunction of the null flags of the values.
func (ctx *CodegenContext) emitNullOr(values ...Value) {
	first := true
	for _, v := range values {
		if !v.Nullable {
			continue
		}
		ctx.Function.LocalGet(v.Null)
		if !first {
			ctx.Function.AppendCode(wasm.OpcodeI32Or)
		}
		first = false
	}
	if first {
		ctx.Function.I32Const(0)
	}
}
