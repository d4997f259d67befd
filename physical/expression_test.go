package physical

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cube2222/octojit/functions"
	"github.com/cube2222/octojit/octojit"
)

func TestPropagatesNulls(t *testing.T) {
	x := NewVariable("x", octojit.Int32.WithNullable(true))
	s := NewVariable("s", octojit.String.WithNullable(true))
	positive := NewBinaryOp(BinaryOpGreater, x, NewConstant(octojit.NewInt32(0)))

	tests := []struct {
		name string
		expr Expression
		want bool
	}{
		{name: "variable", expr: x, want: true},
		{name: "arithmetic", expr: NewBinaryOp(BinaryOpDivide, x, NewConstant(octojit.NewInt32(2))), want: true},
		{name: "negate", expr: NewUnaryOp(UnaryOpNegate, x), want: true},
		{name: "not", expr: NewUnaryOp(UnaryOpNot, positive), want: true},
		{name: "cast", expr: NewCast(x, octojit.Int64.WithNullable(true)), want: true},
		{name: "string op", expr: NewStringOp(functions.StringOpKindUpper, s, octojit.String.WithNullable(true)), want: true},
		{name: "is null", expr: NewUnaryOp(UnaryOpIsNull, x), want: false},
		{name: "nested is not null", expr: NewUnaryOp(UnaryOpNot, NewUnaryOp(UnaryOpIsNotNull, x)), want: false},
		{name: "or", expr: NewOr(positive, NewConstant(octojit.NewBoolean(true))), want: false},
		{name: "and", expr: NewAnd(positive, positive), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.expr.PropagatesNulls())
		})
	}
}
