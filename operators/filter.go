package operators

import (
	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/codegen"
)

// consumeFilter passes the row on only if all quals are true. Quals are evaluated in order and short-circuit.
func (t *Translator) consumeFilter(ctx *codegen.CodegenContext, vars *codegen.VariableContext) error {
	f := ctx.Function

	skip := f.Block()
	for _, qual := range t.Node.Expressions {
		v, err := ctx.Expression(vars, qual)
		if err != nil {
			return err
		}
		if err := pushBool(ctx, v); err != nil {
			return err
		}
		f.AppendCode(wasm.OpcodeI32Eqz)
		f.BrIf(skip)
	}

	if err := t.consumeSuccessor(ctx, vars); err != nil {
		return err
	}
	f.End()

	return nil
}
