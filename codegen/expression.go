package codegen

import (
	"fmt"

	"github.com/tetratelabs/wabin/wasm"

	"github.com/cube2222/octojit/functions"
	"github.com/cube2222/octojit/octojit"
	"github.com/cube2222/octojit/physical"
)

// Expression lowers the expression, returning the value it's been evaluated into.
// Values of variables are shared with the variable context and must not be modified.
func (ctx *CodegenContext) Expression(vars *VariableContext, expr physical.Expression) (Value, error) {
	switch expr.ExpressionType {
	case physical.ExpressionTypeVariable:
		v, ok := vars.GetValue(expr.Variable.Name)
		if !ok {
			return Value{}, fmt.Errorf("unknown variable '%s'", expr.Variable.Name)
		}
		return v, nil
	case physical.ExpressionTypeConstant:
		return ctx.Constant(expr.Constant.Value, expr.Constant.Encoding, expr.Constant.DictID)
	case physical.ExpressionTypeBinaryOp:
		return ctx.binaryOp(vars, expr)
	case physical.ExpressionTypeUnaryOp:
		return ctx.unaryOp(vars, expr)
	case physical.ExpressionTypeAnd:
		return ctx.logicalOp(vars, expr.And.Arguments, true)
	case physical.ExpressionTypeOr:
		return ctx.logicalOp(vars, expr.Or.Arguments, false)
	case physical.ExpressionTypeCast:
		arg, err := ctx.Expression(vars, expr.Cast.Expression)
		if err != nil {
			return Value{}, err
		}
		return ctx.Cast(arg, expr.Cast.TargetType)
	case physical.ExpressionTypeStringOp:
		return ctx.stringOp(vars, expr)
	case physical.ExpressionTypeInList:
		return ctx.inList(vars, expr)
	}
	panic("unexhaustive expression type match")
}

// Constant lowers a compile-time constant. Numeric constants are hoisted if enabled, strings always are.
func (ctx *CodegenContext) Constant(value octojit.Value, encoding octojit.Encoding, dictID int) (Value, error) {
	f := ctx.Function
	if value.Type.TypeID == octojit.TypeIDList {
		return Value{}, fmt.Errorf("list constant outside of IN: %w", ErrUnsupported)
	}
	v := ctx.NewValue("constant", value.Type.WithNullable(value.Null), value.Null)
	v.Encoding = encoding
	v.DictID = dictID
	constant := value
	v.Constant = &constant

	if value.Null {
		f.I32Const(1)
		f.LocalSet(v.Null)
		return v, nil
	}

	switch {
	case value.Type.TypeID == octojit.TypeIDString && encoding == octojit.EncodingNone:
		offset, err := ctx.AddLiteral(value, encoding, dictID)
		if err != nil {
			return Value{}, fmt.Errorf("couldn't add literal %s: %w", value, err)
		}
		ctx.EmitLiteralValue(offset, LiteralStringAddress)
		f.LocalSet(v.Local)
		ctx.EmitLiteralValue(offset, LiteralStringLength)
		f.LocalSet(v.Length)

	case value.Type.TypeID == octojit.TypeIDString || ctx.Options.HoistLiterals:
		offset, err := ctx.AddLiteral(value, encoding, dictID)
		if err != nil {
			return Value{}, fmt.Errorf("couldn't add literal %s: %w", value, err)
		}
		ctx.EmitLiteralValue(offset, LiteralValue)
		f.LocalSet(v.Local)

	default:
		ctx.EmitImmediate(value)
		f.LocalSet(v.Local)
	}
	return v, nil
}

// EmitImmediate pushes a fixed-width value as an inline constant.
func (ctx *CodegenContext) EmitImmediate(value octojit.Value) {
	f := ctx.Function
	switch ValueType(value.Type) {
	case wasm.ValueTypeI32:
		f.I32Const(int32(value.Bits()))
	case wasm.ValueTypeI64:
		f.I64Const(int64(value.Bits()))
	case wasm.ValueTypeF32:
		f.F32Const(float32(value.Float))
	case wasm.ValueTypeF64:
		f.F64Const(value.Float)
	}
}

// narrow wraps an i32 holding a small integer to its width.
func (ctx *CodegenContext) narrow(t octojit.Type) {
	switch t.TypeID {
	case octojit.TypeIDInt8:
		ctx.Function.AppendCode(wasm.OpcodeI32Extend8S)
	case octojit.TypeIDInt16:
		ctx.Function.AppendCode(wasm.OpcodeI32Extend16S)
	}
}

type opcodes struct {
	i32, i64, f32, f64 wasm.Opcode
}

func (ops opcodes) forType(t octojit.Type) (wasm.Opcode, bool) {
	var op wasm.Opcode
	switch ValueType(t) {
	case wasm.ValueTypeI32:
		op = ops.i32
	case wasm.ValueTypeI64:
		op = ops.i64
	case wasm.ValueTypeF32:
		op = ops.f32
	case wasm.ValueTypeF64:
		op = ops.f64
	}
	return op, op != 0
}

var arithmeticOpcodes = map[physical.BinaryOpKind]opcodes{
	physical.BinaryOpAdd:      {wasm.OpcodeI32Add, wasm.OpcodeI64Add, wasm.OpcodeF32Add, wasm.OpcodeF64Add},
	physical.BinaryOpSubtract: {wasm.OpcodeI32Sub, wasm.OpcodeI64Sub, wasm.OpcodeF32Sub, wasm.OpcodeF64Sub},
	physical.BinaryOpMultiply: {wasm.OpcodeI32Mul, wasm.OpcodeI64Mul, wasm.OpcodeF32Mul, wasm.OpcodeF64Mul},
	physical.BinaryOpDivide:   {wasm.OpcodeI32DivS, wasm.OpcodeI64DivS, wasm.OpcodeF32Div, wasm.OpcodeF64Div},
	physical.BinaryOpModulo:   {i32: wasm.OpcodeI32RemS, i64: wasm.OpcodeI64RemS},
}

var comparisonOpcodes = map[physical.BinaryOpKind]opcodes{
	physical.BinaryOpEqual:        {wasm.OpcodeI32Eq, wasm.OpcodeI64Eq, wasm.OpcodeF32Eq, wasm.OpcodeF64Eq},
	physical.BinaryOpNotEqual:     {wasm.OpcodeI32Ne, wasm.OpcodeI64Ne, wasm.OpcodeF32Ne, wasm.OpcodeF64Ne},
	physical.BinaryOpLess:         {wasm.OpcodeI32LtS, wasm.OpcodeI64LtS, wasm.OpcodeF32Lt, wasm.OpcodeF64Lt},
	physical.BinaryOpLessEqual:    {wasm.OpcodeI32LeS, wasm.OpcodeI64LeS, wasm.OpcodeF32Le, wasm.OpcodeF64Le},
	physical.BinaryOpGreater:      {wasm.OpcodeI32GtS, wasm.OpcodeI64GtS, wasm.OpcodeF32Gt, wasm.OpcodeF64Gt},
	physical.BinaryOpGreaterEqual: {wasm.OpcodeI32GeS, wasm.OpcodeI64GeS, wasm.OpcodeF32Ge, wasm.OpcodeF64Ge},
}

func (ctx *CodegenContext) binaryOp(vars *VariableContext, expr physical.Expression) (Value, error) {
	op := expr.BinaryOp.Op
	left, err := ctx.Expression(vars, expr.BinaryOp.Left)
	if err != nil {
		return Value{}, err
	}
	right, err := ctx.Expression(vars, expr.BinaryOp.Right)
	if err != nil {
		return Value{}, err
	}
	if !left.Type.Equals(right.Type) {
		return Value{}, fmt.Errorf("operator %s on mismatched types %s and %s: %w", op, left.Type, right.Type, ErrUnsupported)
	}
	if op.IsComparison() {
		return ctx.comparison(op, left, right)
	}
	return ctx.arithmetic(op, left, right)
}

func (ctx *CodegenContext) arithmetic(op physical.BinaryOpKind, left, right Value) (Value, error) {
	f := ctx.Function
	if !left.Type.IsNumeric() {
		return Value{}, fmt.Errorf("operator %s on type %s: %w", op, left.Type, ErrUnsupported)
	}
	opcode, ok := arithmeticOpcodes[op].forType(left.Type)
	if !ok {
		return Value{}, fmt.Errorf("operator %s on type %s: %w", op, left.Type, ErrUnsupported)
	}
	integerDivision := (op == physical.BinaryOpDivide || op == physical.BinaryOpModulo) && left.Type.IsInteger()
	nullable := left.Nullable || right.Nullable || integerDivision
	resultType := left.Type.WithNullable(nullable)
	v := ctx.NewValue("arithmetic", resultType, nullable)

	if v.Nullable {
		ctx.emitNullOr(left, right)
		f.LocalSet(v.Null)
	}

	if !integerDivision {
		f.LocalGet(left.Local)
		f.LocalGet(right.Local)
		f.AppendCode(opcode)
		ctx.narrow(resultType)
		f.LocalSet(v.Local)
		return v, nil
	}

	// Division by zero yields null. Division of the minimum value by -1 would trap, so it's negated instead.
	wide := ValueType(left.Type) == wasm.ValueTypeI64
	f.LocalGet(right.Local)
	if wide {
		f.AppendCode(wasm.OpcodeI64Eqz)
	} else {
		f.AppendCode(wasm.OpcodeI32Eqz)
	}
	f.If()
	{
		f.I32Const(1)
		f.LocalSet(v.Null)
	}
	f.Else()
	{
		f.LocalGet(right.Local)
		if wide {
			f.I64Const(-1)
			f.AppendCode(wasm.OpcodeI64Eq)
		} else {
			f.I32Const(-1)
			f.AppendCode(wasm.OpcodeI32Eq)
		}
		f.If()
		{
			ctx.emitZero(left.Type)
			if op == physical.BinaryOpDivide {
				f.LocalGet(left.Local)
				if wide {
					f.AppendCode(wasm.OpcodeI64Sub)
				} else {
					f.AppendCode(wasm.OpcodeI32Sub)
				}
				ctx.narrow(resultType)
			}
			f.LocalSet(v.Local)
		}
		f.Else()
		{
			f.LocalGet(left.Local)
			f.LocalGet(right.Local)
			f.AppendCode(opcode)
			ctx.narrow(resultType)
			f.LocalSet(v.Local)
		}
		f.End()
	}
	f.End()

	return v, nil
}

func (ctx *CodegenContext) emitZero(t octojit.Type) {
	if t.TypeID == octojit.TypeIDString || t.TypeID == octojit.TypeIDList {
		ctx.Function.I32Const(0)
		return
	}
	ctx.EmitImmediate(octojit.ValueFromBits(t, 0))
}

func (ctx *CodegenContext) comparison(op physical.BinaryOpKind, left, right Value) (Value, error) {
	f := ctx.Function
	opcode, _ := comparisonOpcodes[op].forType(octojit.Int32)

	v := ctx.NewValue("comparison", octojit.Boolean.WithNullable(left.Nullable || right.Nullable), left.Nullable || right.Nullable)
	if v.Nullable {
		ctx.emitNullOr(left, right)
		f.LocalSet(v.Null)
	}

	switch {
	case left.Type.TypeID == octojit.TypeIDList:
		return Value{}, fmt.Errorf("comparison of lists: %w", ErrUnsupported)

	case left.Type.TypeID == octojit.TypeIDString && (left.Encoding == octojit.EncodingDict || right.Encoding == octojit.EncodingDict):
		if left.Encoding != right.Encoding || left.DictID != right.DictID {
			return Value{}, fmt.Errorf("comparison of strings with different encodings: %w", ErrUnsupported)
		}
		if op != physical.BinaryOpEqual && op != physical.BinaryOpNotEqual {
			return Value{}, fmt.Errorf("operator %s on dictionary-encoded strings: %w", op, ErrUnsupported)
		}
		f.LocalGet(left.Local)
		f.LocalGet(right.Local)
		f.AppendCode(opcode)

	case left.Type.TypeID == octojit.TypeIDString:
		f.LocalGet(left.Local)
		f.LocalGet(left.Length)
		f.LocalGet(right.Local)
		f.LocalGet(right.Length)
		f.Call("string_compare")
		f.I32Const(0)
		f.AppendCode(opcode)

	case left.Type.TypeID == octojit.TypeIDBoolean:
		f.LocalGet(left.Local)
		f.LocalGet(right.Local)
		f.AppendCode(opcode)

	default:
		opcode, _ = comparisonOpcodes[op].forType(left.Type)
		f.LocalGet(left.Local)
		f.LocalGet(right.Local)
		f.AppendCode(opcode)
	}
	f.LocalSet(v.Local)
	return v, nil
}

func (ctx *CodegenContext) unaryOp(vars *VariableContext, expr physical.Expression) (Value, error) {
	f := ctx.Function
	arg, err := ctx.Expression(vars, expr.UnaryOp.Argument)
	if err != nil {
		return Value{}, err
	}

	switch expr.UnaryOp.Op {
	case physical.UnaryOpNot:
		if arg.Type.TypeID != octojit.TypeIDBoolean {
			return Value{}, fmt.Errorf("not on type %s: %w", arg.Type, ErrUnsupported)
		}
		v := ctx.NewValue("not", arg.Type, false)
		v.Nullable, v.Null = arg.Nullable, arg.Null
		f.LocalGet(arg.Local)
		f.AppendCode(wasm.OpcodeI32Eqz)
		f.LocalSet(v.Local)
		return v, nil

	case physical.UnaryOpNegate:
		if !arg.Type.IsNumeric() {
			return Value{}, fmt.Errorf("negation of type %s: %w", arg.Type, ErrUnsupported)
		}
		v := ctx.NewValue("negate", arg.Type, false)
		v.Nullable, v.Null = arg.Nullable, arg.Null
		switch ValueType(arg.Type) {
		case wasm.ValueTypeF32:
			f.LocalGet(arg.Local)
			f.AppendCode(wasm.OpcodeF32Neg)
		case wasm.ValueTypeF64:
			f.LocalGet(arg.Local)
			f.AppendCode(wasm.OpcodeF64Neg)
		case wasm.ValueTypeI64:
			f.I64Const(0)
			f.LocalGet(arg.Local)
			f.AppendCode(wasm.OpcodeI64Sub)
		default:
			f.I32Const(0)
			f.LocalGet(arg.Local)
			f.AppendCode(wasm.OpcodeI32Sub)
			ctx.narrow(arg.Type)
		}
		f.LocalSet(v.Local)
		return v, nil

	case physical.UnaryOpIsNull, physical.UnaryOpIsNotNull:
		v := ctx.NewValue("is_null", octojit.Boolean, false)
		ctx.EmitNull(arg)
		if expr.UnaryOp.Op == physical.UnaryOpIsNotNull {
			f.AppendCode(wasm.OpcodeI32Eqz)
		}
		f.LocalSet(v.Local)
		return v, nil
	}
	panic("unexhaustive unary op match")
}

// logicalOp implements three-valued AND and OR.
// AND is false if any argument is false, otherwise null if any argument is null.
// OR is true if any argument is true, otherwise null if any argument is null.
func (ctx *CodegenContext) logicalOp(vars *VariableContext, args []physical.Expression, and bool) (Value, error) {
	if len(args) == 0 {
		return Value{}, fmt.Errorf("logical operator without arguments: %w", ErrUnsupported)
	}
	acc, err := ctx.Expression(vars, args[0])
	if err != nil {
		return Value{}, err
	}
	if acc.Type.TypeID != octojit.TypeIDBoolean {
		return Value{}, fmt.Errorf("logical operator on type %s: %w", acc.Type, ErrUnsupported)
	}
	for i := 1; i < len(args); i++ {
		next, err := ctx.Expression(vars, args[i])
		if err != nil {
			return Value{}, err
		}
		if next.Type.TypeID != octojit.TypeIDBoolean {
			return Value{}, fmt.Errorf("logical operator on type %s: %w", next.Type, ErrUnsupported)
		}
		acc = ctx.kleene(acc, next, and)
	}
	return acc, nil
}

func (ctx *CodegenContext) kleene(left, right Value, and bool) Value {
	f := ctx.Function
	nullable := left.Nullable || right.Nullable
	name := "or"
	if and {
		name = "and"
	}
	v := ctx.NewValue(name, octojit.Boolean.WithNullable(nullable), nullable)

	// decisive pushes whether the value decides the result on its own: false for AND, true for OR.
	decisive := func(x Value) {
		f.LocalGet(x.Local)
		if and {
			f.AppendCode(wasm.OpcodeI32Eqz)
		}
		if x.Nullable {
			f.LocalGet(x.Null)
			f.AppendCode(wasm.OpcodeI32Eqz)
			f.AppendCode(wasm.OpcodeI32And)
		}
	}

	decided := ctx.NewLocal(name+"_decided", wasm.ValueTypeI32)
	decisive(left)
	decisive(right)
	f.AppendCode(wasm.OpcodeI32Or)
	f.LocalTee(decided)
	if and {
		f.AppendCode(wasm.OpcodeI32Eqz)
	}
	f.LocalSet(v.Local)

	if nullable {
		f.LocalGet(decided)
		f.AppendCode(wasm.OpcodeI32Eqz)
		ctx.emitNullOr(left, right)
		f.AppendCode(wasm.OpcodeI32And)
		f.LocalSet(v.Null)
	}
	return v
}

// Cast converts between numeric types. Integers wrap, casts from floating point to integers aren't supported.
func (ctx *CodegenContext) Cast(arg Value, target octojit.Type) (Value, error) {
	f := ctx.Function
	target = target.WithNullable(arg.Nullable)
	if arg.Type.TypeID == target.TypeID {
		out := arg
		out.Type = target
		return out, nil
	}
	isIntegral := func(t octojit.Type) bool {
		return t.IsInteger() || t.TypeID == octojit.TypeIDBoolean
	}
	if !(isIntegral(arg.Type) || arg.Type.IsFloat()) || !(isIntegral(target) || target.IsFloat()) {
		return Value{}, fmt.Errorf("cast from %s to %s: %w", arg.Type, target, ErrUnsupported)
	}
	if arg.Type.IsFloat() && !target.IsFloat() {
		return Value{}, fmt.Errorf("cast from %s to %s: %w", arg.Type, target, ErrUnsupported)
	}

	v := ctx.NewValue("cast", target, false)
	v.Nullable, v.Null = arg.Nullable, arg.Null
	from, to := ValueType(arg.Type), ValueType(target)

	f.LocalGet(arg.Local)
	switch {
	case target.TypeID == octojit.TypeIDBoolean:
		if from == wasm.ValueTypeI64 {
			f.I64Const(0)
			f.AppendCode(wasm.OpcodeI64Ne)
		} else {
			f.I32Const(0)
			f.AppendCode(wasm.OpcodeI32Ne)
		}

	case isIntegral(target):
		switch {
		case from == wasm.ValueTypeI32 && to == wasm.ValueTypeI64:
			f.AppendCode(wasm.OpcodeI64ExtendI32S)
		case from == wasm.ValueTypeI64 && to == wasm.ValueTypeI32:
			f.AppendCode(wasm.OpcodeI32WrapI64)
		}
		ctx.narrow(target)

	case from == wasm.ValueTypeI32 && to == wasm.ValueTypeF32:
		f.AppendCode(wasm.OpcodeF32ConvertI32S)
	case from == wasm.ValueTypeI64 && to == wasm.ValueTypeF32:
		f.AppendCode(wasm.OpcodeF32ConvertI64S)
	case from == wasm.ValueTypeI32 && to == wasm.ValueTypeF64:
		f.AppendCode(wasm.OpcodeF64ConvertI32S)
	case from == wasm.ValueTypeI64 && to == wasm.ValueTypeF64:
		f.AppendCode(wasm.OpcodeF64ConvertI64S)
	case from == wasm.ValueTypeF32 && to == wasm.ValueTypeF64:
		f.AppendCode(wasm.OpcodeF64PromoteF32)
	case from == wasm.ValueTypeF64 && to == wasm.ValueTypeF32:
		f.AppendCode(wasm.OpcodeF32DemoteF64)
	}
	f.LocalSet(v.Local)
	return v, nil
}

func (ctx *CodegenContext) stringOp(vars *VariableContext, expr physical.Expression) (Value, error) {
	f := ctx.Function
	op, err := functions.NewStringOp(expr.StringOp.Kind, expr.StringOp.Params, expr.Type)
	if err != nil {
		return Value{}, fmt.Errorf("couldn't bind %s parameters: %w", expr.StringOp.Kind, err)
	}
	input, err := ctx.Expression(vars, expr.StringOp.Input)
	if err != nil {
		return Value{}, err
	}
	if !input.IsString() {
		return Value{}, fmt.Errorf("%s on %s with encoding %s: %w", op.Kind, input.Type, input.Encoding, ErrUnsupported)
	}
	resultType := op.ResultType()

	if input.Constant != nil {
		var folded octojit.Value
		switch {
		case input.Constant.Null:
			folded = octojit.NewNull(resultType)
		case op.ReturnsString():
			out, null := op.Eval(input.Constant.Str)
			if null {
				folded = octojit.NewNull(resultType)
			} else {
				folded = octojit.NewString(out)
			}
		default:
			folded = op.NumericEval(input.Constant.Str)
		}
		return ctx.Constant(folded, octojit.EncodingNone, 0)
	}

	if op.Kind == functions.StringOpKindCharLength {
		v := ctx.NewValue("char_length", octojit.Int64, false)
		v.Nullable, v.Null = input.Nullable, input.Null
		f.LocalGet(input.Length)
		f.AppendCode(wasm.OpcodeI64ExtendI32U)
		f.LocalSet(v.Local)
		return v, nil
	}

	index := ctx.RegisterStringOp(op)
	v := ctx.NewValue(op.Kind.String(), resultType.WithNullable(true), true)
	f.I32Const(index)
	f.LocalGet(input.Local)
	f.LocalGet(input.Length)

	if op.ReturnsString() {
		f.Call("string_op")
		f.LocalSet(v.Null)
		f.LocalSet(v.Length)
		f.LocalSet(v.Local)
	} else {
		f.Call("string_try_cast")
		f.LocalSet(v.Null)
		switch ValueType(resultType) {
		case wasm.ValueTypeI32:
			f.AppendCode(wasm.OpcodeI32WrapI64)
		case wasm.ValueTypeF32:
			f.AppendCode(wasm.OpcodeI32WrapI64, wasm.OpcodeF32ReinterpretI32)
		case wasm.ValueTypeF64:
			f.AppendCode(wasm.OpcodeF64ReinterpretI64)
		}
		f.LocalSet(v.Local)
	}

	if input.Nullable {
		f.LocalGet(v.Null)
		f.LocalGet(input.Null)
		f.AppendCode(wasm.OpcodeI32Or)
		f.LocalSet(v.Null)
	}
	return v, nil
}

func (ctx *CodegenContext) inList(vars *VariableContext, expr physical.Expression) (Value, error) {
	f := ctx.Function
	list := expr.InList.List
	if list.Type.TypeID != octojit.TypeIDList || list.Null {
		return Value{}, fmt.Errorf("IN with a non-list operand %s: %w", list, ErrUnsupported)
	}
	for i := range list.List {
		if list.List[i].Null {
			return Value{}, fmt.Errorf("IN list with null elements: %w", ErrUnsupported)
		}
	}
	arg, err := ctx.Expression(vars, expr.InList.Argument)
	if err != nil {
		return Value{}, err
	}
	element := *list.Type.List.Element
	if !arg.Type.Equals(element) || !(arg.Type.IsNumeric() || arg.Type.TypeID == octojit.TypeIDBoolean) {
		return Value{}, fmt.Errorf("%s IN list of %s: %w", arg.Type, element, ErrUnsupported)
	}
	equal, _ := comparisonOpcodes[physical.BinaryOpEqual].forType(element)

	offset, err := ctx.AddLiteral(list, octojit.EncodingNone, 0)
	if err != nil {
		return Value{}, fmt.Errorf("couldn't add literal %s: %w", list, err)
	}

	v := ctx.NewValue("in", octojit.Boolean, false)
	v.Nullable, v.Null = arg.Nullable, arg.Null
	i := ctx.NewLocal("in_index", wasm.ValueTypeI32)

	f.I32Const(0)
	f.LocalSet(v.Local)
	f.I32Const(0)
	f.LocalSet(i)
	done := f.Block()
	{
		loop := f.Loop()
		{
			f.LocalGet(i)
			ctx.EmitLiteralValue(offset, LiteralArrayLength)
			f.AppendCode(wasm.OpcodeI32GeU)
			f.BrIf(done)

			ctx.EmitLiteralValue(offset, LiteralArrayAddress)
			f.LocalGet(i)
			if width := element.ByteWidth(); width > 1 {
				f.I32Const(int32(width))
				f.AppendCode(wasm.OpcodeI32Mul)
			}
			f.AppendCode(wasm.OpcodeI32Add)
			f.Load(LoadOpcode(element), 0)
			f.LocalGet(arg.Local)
			f.AppendCode(equal)
			f.If()
			{
				f.I32Const(1)
				f.LocalSet(v.Local)
				f.Br(done)
			}
			f.End()

			f.LocalGet(i)
			f.I32Const(1)
			f.AppendCode(wasm.OpcodeI32Add)
			f.LocalSet(i)
			f.Br(loop)
		}
		f.End()
	}
	f.End()

	return v, nil
}
