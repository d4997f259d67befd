package operators

import (
	"fmt"

	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/codegen"
	"github.com/cube2222/octojit/octojit"
)

// Translator emits the code of a single node. Translators form a chain from the source to the terminal operator,
// each passing the rows it produces on to its successor.
type Translator struct {
	Node      *Node
	successor *Translator
	pipeline  *pipelineState
}

// pipelineState is shared by all translators of a chain.
type pipelineState struct {
	head *Translator
	// referenced are the variables any operator of the chain evaluates.
	referenced map[string]bool
	// tracked are the variables read with null tracking even when null handling is bypassed,
	// because a target over them doesn't propagate nulls.
	tracked map[string]bool
	// readers are the column readers of the source, available after it's been consumed.
	readers []codegen.ColumnReader
}

// ToTranslator creates the translator of the node, with the given successor.
func (node *Node) ToTranslator(successor *Translator) *Translator {
	state := &pipelineState{referenced: map[string]bool{}, tracked: map[string]bool{}}
	if successor != nil {
		state = successor.pipeline
	}
	for _, name := range node.Variables() {
		state.referenced[name] = true
	}
	if node.Kind == KindProject {
		for i := range node.Expressions {
			if node.Expressions[i].PropagatesNulls() {
				continue
			}
			for _, name := range node.Expressions[i].Variables() {
				state.tracked[name] = true
			}
		}
	}
	t := &Translator{
		Node:      node,
		successor: successor,
		pipeline:  state,
	}
	state.head = t
	return t
}

// ToTranslator builds the translator chain of the leaf-to-root node list, returning its head.
func ToTranslator(nodes []*Node) *Translator {
	var successor *Translator
	for i := len(nodes) - 1; i >= 0; i-- {
		successor = nodes[i].ToTranslator(successor)
	}
	return successor
}

func (t *Translator) Successor() *Translator {
	return t.successor
}

// Consume emits the code of the whole chain, starting at this translator.
func (t *Translator) Consume(ctx *codegen.CodegenContext) error {
	return t.consume(ctx, &codegen.VariableContext{})
}

func (t *Translator) consume(ctx *codegen.CodegenContext, vars *codegen.VariableContext) error {
	switch t.Node.Kind {
	case KindSource:
		return t.consumeSource(ctx, vars)
	case KindJoinProbe:
		return t.consumeJoinProbe(ctx, vars)
	case KindFilter:
		return t.consumeFilter(ctx, vars)
	case KindProject:
		return t.consumeProject(ctx, vars)
	case KindAggregate:
		return t.consumeAggregate(ctx, vars)
	}
	panic("unexhaustive operator kind match")
}

func (t *Translator) consumeSuccessor(ctx *codegen.CodegenContext, vars *codegen.VariableContext) error {
	if t.successor == nil {
		return nil
	}
	return t.successor.consume(ctx, vars)
}

// ConsumeNull emits the null handling which has been left out of the row loop, as a separate pass over whole columns.
// It must be called after Consume.
func (t *Translator) ConsumeNull(ctx *codegen.CodegenContext) error {
	switch t.Node.Kind {
	case KindProject:
		return t.consumeNullProject(ctx)
	}
	return fmt.Errorf("separate null handling for %s: %w", t.Node.Kind, codegen.ErrUnsupported)
}

func pushContextAddress(ctx *codegen.CodegenContext, offset uint32) {
	f := ctx.Function
	f.LocalGet(codegen.ContextParam)
	f.I32Const(int32(offset))
	f.AppendCode(wasm.OpcodeI32Add)
}

// pushKey pushes a join or group key as an int64. Only integral and dictionary-encoded keys are supported.
func pushKey(ctx *codegen.CodegenContext, v codegen.Value) error {
	f := ctx.Function
	if v.IsString() || v.Type.IsFloat() {
		return fmt.Errorf("key of type %s: %w", v.Type, codegen.ErrUnsupported)
	}
	switch codegen.ValueType(v.Type) {
	case wasm.ValueTypeI64:
		f.LocalGet(v.Local)
	case wasm.ValueTypeI32:
		f.LocalGet(v.Local)
		f.AppendCode(wasm.OpcodeI64ExtendI32S)
	default:
		return fmt.Errorf("key of type %s: %w", v.Type, codegen.ErrUnsupported)
	}
	return nil
}

// pushBool pushes the value of a boolean, with null treated as false.
func pushBool(ctx *codegen.CodegenContext, v codegen.Value) error {
	f := ctx.Function
	if v.Type.TypeID != octojit.TypeIDBoolean {
		return fmt.Errorf("condition of type %s: %w", v.Type, codegen.ErrUnsupported)
	}
	f.LocalGet(v.Local)
	if v.Nullable {
		f.LocalGet(v.Null)
		f.AppendCode(wasm.OpcodeI32Eqz)
		f.AppendCode(wasm.OpcodeI32And)
	}
	return nil
}
