package physical

import (
	"fmt"
	"strings"

	"github.com/cube2222/octojit/functions"
	"github.com/cube2222/octojit/octojit"
)

type Expression struct {
	Type octojit.Type

	ExpressionType ExpressionType
	// Only one of the below may be non-null.
	Variable *Variable
	Constant *Constant
	BinaryOp *BinaryOp
	UnaryOp  *UnaryOp
	And      *And
	Or       *Or
	Cast     *Cast
	StringOp *StringOp
	InList   *InList
}

type ExpressionType int

const (
	ExpressionTypeVariable ExpressionType = iota
	ExpressionTypeConstant
	ExpressionTypeBinaryOp
	ExpressionTypeUnaryOp
	ExpressionTypeAnd
	ExpressionTypeOr
	ExpressionTypeCast
	ExpressionTypeStringOp
	ExpressionTypeInList
)

type Variable struct {
	Name string
}

type Constant struct {
	Value    octojit.Value
	Encoding octojit.Encoding
	// DictID identifies the string dictionary of dictionary-encoded string constants.
	DictID int
}

type BinaryOpKind int

const (
	BinaryOpAdd BinaryOpKind = iota
	BinaryOpSubtract
	BinaryOpMultiply
	BinaryOpDivide
	BinaryOpModulo
	BinaryOpEqual
	BinaryOpNotEqual
	BinaryOpLess
	BinaryOpLessEqual
	BinaryOpGreater
	BinaryOpGreaterEqual
)

var binaryOpSymbols = map[BinaryOpKind]string{
	BinaryOpAdd:          "+",
	BinaryOpSubtract:     "-",
	BinaryOpMultiply:     "*",
	BinaryOpDivide:       "/",
	BinaryOpModulo:       "%",
	BinaryOpEqual:        "=",
	BinaryOpNotEqual:     "<>",
	BinaryOpLess:         "<",
	BinaryOpLessEqual:    "<=",
	BinaryOpGreater:      ">",
	BinaryOpGreaterEqual: ">=",
}

func (kind BinaryOpKind) String() string {
	return binaryOpSymbols[kind]
}

func BinaryOpKindFromSymbol(symbol string) (BinaryOpKind, bool) {
	for kind, s := range binaryOpSymbols {
		if s == symbol {
			return kind, true
		}
	}
	return 0, false
}

func (kind BinaryOpKind) IsComparison() bool {
	return kind >= BinaryOpEqual
}

type BinaryOp struct {
	Op          BinaryOpKind
	Left, Right Expression
}

type UnaryOpKind int

const (
	UnaryOpNot UnaryOpKind = iota
	UnaryOpNegate
	UnaryOpIsNull
	UnaryOpIsNotNull
)

func (kind UnaryOpKind) String() string {
	switch kind {
	case UnaryOpNot:
		return "not"
	case UnaryOpNegate:
		return "-"
	case UnaryOpIsNull:
		return "is null"
	case UnaryOpIsNotNull:
		return "is not null"
	}
	return fmt.Sprintf("UnaryOpKind(%d)", int(kind))
}

type UnaryOp struct {
	Op       UnaryOpKind
	Argument Expression
}

type And struct {
	Arguments []Expression
}

type Or struct {
	Arguments []Expression
}

type Cast struct {
	Expression Expression
	TargetType octojit.Type
}

type StringOp struct {
	Kind  functions.StringOpKind
	Input Expression
	// Params are the literal arguments following the input.
	Params []octojit.Value
}

type InList struct {
	Argument Expression
	// List is a list-typed constant.
	List octojit.Value
}

func NewVariable(name string, t octojit.Type) Expression {
	return Expression{
		Type:           t,
		ExpressionType: ExpressionTypeVariable,
		Variable:       &Variable{Name: name},
	}
}

func NewConstant(value octojit.Value) Expression {
	return Expression{
		Type:           value.Type,
		ExpressionType: ExpressionTypeConstant,
		Constant:       &Constant{Value: value},
	}
}

func NewDictConstant(value octojit.Value, dictID int) Expression {
	return Expression{
		Type:           value.Type,
		ExpressionType: ExpressionTypeConstant,
		Constant:       &Constant{Value: value, Encoding: octojit.EncodingDict, DictID: dictID},
	}
}

// NewBinaryOp types the result as Boolean for comparisons and as the left operand's type otherwise.
func NewBinaryOp(op BinaryOpKind, left, right Expression) Expression {
	t := left.Type
	if op.IsComparison() {
		t = octojit.Boolean
	}
	return Expression{
		Type:           t.WithNullable(left.Type.Nullable || right.Type.Nullable || op == BinaryOpDivide || op == BinaryOpModulo),
		ExpressionType: ExpressionTypeBinaryOp,
		BinaryOp:       &BinaryOp{Op: op, Left: left, Right: right},
	}
}

func NewUnaryOp(op UnaryOpKind, argument Expression) Expression {
	var t octojit.Type
	switch op {
	case UnaryOpNot:
		t = octojit.Boolean.WithNullable(argument.Type.Nullable)
	case UnaryOpNegate:
		t = argument.Type
	case UnaryOpIsNull, UnaryOpIsNotNull:
		t = octojit.Boolean
	}
	return Expression{
		Type:           t,
		ExpressionType: ExpressionTypeUnaryOp,
		UnaryOp:        &UnaryOp{Op: op, Argument: argument},
	}
}

func NewAnd(arguments ...Expression) Expression {
	return Expression{
		Type:           octojit.Boolean.WithNullable(anyNullable(arguments)),
		ExpressionType: ExpressionTypeAnd,
		And:            &And{Arguments: arguments},
	}
}

func NewOr(arguments ...Expression) Expression {
	return Expression{
		Type:           octojit.Boolean.WithNullable(anyNullable(arguments)),
		ExpressionType: ExpressionTypeOr,
		Or:             &Or{Arguments: arguments},
	}
}

func NewCast(expr Expression, target octojit.Type) Expression {
	return Expression{
		Type:           target.WithNullable(expr.Type.Nullable),
		ExpressionType: ExpressionTypeCast,
		Cast:           &Cast{Expression: expr, TargetType: target},
	}
}

// NewStringOp types the expression using the operation's result type. Parameter errors are reported at compile time.
func NewStringOp(kind functions.StringOpKind, input Expression, returnType octojit.Type, params ...octojit.Value) Expression {
	return Expression{
		Type:           returnType.WithNullable(returnType.Nullable || input.Type.Nullable),
		ExpressionType: ExpressionTypeStringOp,
		StringOp:       &StringOp{Kind: kind, Input: input, Params: params},
	}
}

func NewInList(argument Expression, list octojit.Value) Expression {
	return Expression{
		Type:           octojit.Boolean.WithNullable(argument.Type.Nullable),
		ExpressionType: ExpressionTypeInList,
		InList:         &InList{Argument: argument, List: list},
	}
}

func anyNullable(exprs []Expression) bool {
	for i := range exprs {
		if exprs[i].Type.Nullable {
			return true
		}
	}
	return false
}

// Variables lists the names of all variables referenced in the expression, in order of first appearance.
func (expr *Expression) Variables() []string {
	var out []string
	seen := map[string]bool{}
	expr.walk(func(e *Expression) {
		if e.ExpressionType == ExpressionTypeVariable && !seen[e.Variable.Name] {
			seen[e.Variable.Name] = true
			out = append(out, e.Variable.Name)
		}
	})
	return out
}

// PropagatesNulls reports whether the expression is null exactly when one of its variables is null,
// or because of its own operations (like division by zero), but never non-null over a null variable.
func (expr *Expression) PropagatesNulls() bool {
	strict := true
	expr.walk(func(e *Expression) {
		switch e.ExpressionType {
		case ExpressionTypeAnd, ExpressionTypeOr, ExpressionTypeInList:
			strict = false
		case ExpressionTypeUnaryOp:
			if e.UnaryOp.Op == UnaryOpIsNull || e.UnaryOp.Op == UnaryOpIsNotNull {
				strict = false
			}
		}
	})
	return strict
}

func (expr *Expression) walk(f func(e *Expression)) {
	f(expr)
	switch expr.ExpressionType {
	case ExpressionTypeVariable, ExpressionTypeConstant:
	case ExpressionTypeBinaryOp:
		expr.BinaryOp.Left.walk(f)
		expr.BinaryOp.Right.walk(f)
	case ExpressionTypeUnaryOp:
		expr.UnaryOp.Argument.walk(f)
	case ExpressionTypeAnd:
		for i := range expr.And.Arguments {
			expr.And.Arguments[i].walk(f)
		}
	case ExpressionTypeOr:
		for i := range expr.Or.Arguments {
			expr.Or.Arguments[i].walk(f)
		}
	case ExpressionTypeCast:
		expr.Cast.Expression.walk(f)
	case ExpressionTypeStringOp:
		expr.StringOp.Input.walk(f)
	case ExpressionTypeInList:
		expr.InList.Argument.walk(f)
	default:
		panic("unexhaustive expression type match")
	}
}

func (expr Expression) String() string {
	switch expr.ExpressionType {
	case ExpressionTypeVariable:
		return expr.Variable.Name
	case ExpressionTypeConstant:
		if expr.Constant.Encoding == octojit.EncodingDict {
			return fmt.Sprintf("%s@dict%d", expr.Constant.Value, expr.Constant.DictID)
		}
		return expr.Constant.Value.String()
	case ExpressionTypeBinaryOp:
		return fmt.Sprintf("(%s %s %s)", expr.BinaryOp.Left, expr.BinaryOp.Op, expr.BinaryOp.Right)
	case ExpressionTypeUnaryOp:
		switch expr.UnaryOp.Op {
		case UnaryOpIsNull, UnaryOpIsNotNull:
			return fmt.Sprintf("(%s %s)", expr.UnaryOp.Argument, expr.UnaryOp.Op)
		}
		return fmt.Sprintf("(%s %s)", expr.UnaryOp.Op, expr.UnaryOp.Argument)
	case ExpressionTypeAnd:
		return joinExpressions(expr.And.Arguments, " AND ")
	case ExpressionTypeOr:
		return joinExpressions(expr.Or.Arguments, " OR ")
	case ExpressionTypeCast:
		return fmt.Sprintf("CAST(%s AS %s)", expr.Cast.Expression, expr.Cast.TargetType)
	case ExpressionTypeStringOp:
		args := []string{expr.StringOp.Input.String()}
		for _, param := range expr.StringOp.Params {
			args = append(args, param.String())
		}
		return fmt.Sprintf("%s(%s)", expr.StringOp.Kind, strings.Join(args, ", "))
	case ExpressionTypeInList:
		return fmt.Sprintf("(%s IN %s)", expr.InList.Argument, expr.InList.List)
	}
	panic("unexhaustive expression type match")
}

func joinExpressions(exprs []Expression, sep string) string {
	parts := make([]string, len(exprs))
	for i := range exprs {
		parts[i] = exprs[i].String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
