package physical

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/cube2222/octojit/functions"
	"github.com/cube2222/octojit/octojit"
)

// ParseUnit reads an execution unit from its JSON description.
func ParseUnit(data []byte) (*RelAlgExecutionUnit, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse json: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("expected JSON object, got %s", v.Type())
	}

	unit := &RelAlgExecutionUnit{}
	if unit.Input, err = parseColumns(v.GetArray("input")); err != nil {
		return nil, fmt.Errorf("couldn't parse input: %w", err)
	}
	if dictionaries := v.GetObject("dictionaries"); dictionaries != nil {
		unit.Dictionaries = map[int][]string{}
		var dictErr error
		dictionaries.Visit(func(key []byte, value *fastjson.Value) {
			id, err := strconv.Atoi(string(key))
			if err != nil {
				dictErr = fmt.Errorf("invalid dictionary id '%s'", key)
				return
			}
			for _, entry := range value.GetArray() {
				unit.Dictionaries[id] = append(unit.Dictionaries[id], string(entry.GetStringBytes()))
			}
		})
		if dictErr != nil {
			return nil, dictErr
		}
	}

	parser := &unitParser{scope: map[string]Column{}}
	parser.bind(unit.Input)

	for i, condition := range v.GetArray("join_conditions") {
		joinCondition, err := parser.parseJoinCondition(condition)
		if err != nil {
			return nil, fmt.Errorf("couldn't parse join condition %d: %w", i, err)
		}
		unit.JoinConditions = append(unit.JoinConditions, joinCondition)
	}
	if unit.Quals, err = parser.parseExpressions(v.GetArray("quals")); err != nil {
		return nil, fmt.Errorf("couldn't parse quals: %w", err)
	}
	if unit.GroupBy, err = parser.parseExpressions(v.GetArray("group_by")); err != nil {
		return nil, fmt.Errorf("couldn't parse group by: %w", err)
	}
	for i, aggregate := range v.GetArray("aggregates") {
		name := string(aggregate.GetStringBytes("name"))
		kind, ok := AggregateKindFromName(string(aggregate.GetStringBytes("kind")))
		if !ok {
			return nil, fmt.Errorf("aggregate %d: unknown kind '%s'", i, aggregate.GetStringBytes("kind"))
		}
		var argument *Expression
		if arg := aggregate.Get("argument"); arg != nil {
			expr, err := parser.parseExpression(arg)
			if err != nil {
				return nil, fmt.Errorf("couldn't parse argument of aggregate %s: %w", name, err)
			}
			argument = &expr
		} else if kind != AggregateCountStar {
			return nil, fmt.Errorf("aggregate %s: missing argument", name)
		}
		unit.Aggregates = append(unit.Aggregates, NewAggregate(name, kind, argument))
	}
	for i, target := range v.GetArray("targets") {
		expr, err := parser.parseExpression(target.Get("expression"))
		if err != nil {
			return nil, fmt.Errorf("couldn't parse target %d: %w", i, err)
		}
		name := string(target.GetStringBytes("name"))
		if name == "" {
			name = expr.String()
		}
		unit.Targets = append(unit.Targets, Target{Name: name, Expression: expr})
	}
	for i, orderBy := range v.GetArray("order_by") {
		expr, err := parser.parseExpression(orderBy.Get("expression"))
		if err != nil {
			return nil, fmt.Errorf("couldn't parse order by %d: %w", i, err)
		}
		unit.OrderBy = append(unit.OrderBy, OrderBy{Expression: expr, Descending: orderBy.GetBool("descending")})
	}

	return unit, nil
}

// ParseType reads types in the form they're printed: Int32, Int32? for nullable, [Int32] for lists.
func ParseType(text string) (octojit.Type, error) {
	nullable := strings.HasSuffix(text, "?")
	text = strings.TrimSuffix(text, "?")
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		element, err := ParseType(text[1 : len(text)-1])
		if err != nil {
			return octojit.Type{}, err
		}
		return octojit.ListOf(element).WithNullable(nullable), nil
	}
	for _, t := range []octojit.Type{
		octojit.Boolean, octojit.Int8, octojit.Int16, octojit.Int32, octojit.Int64,
		octojit.Float32, octojit.Float64, octojit.String, octojit.Date, octojit.Timestamp,
	} {
		if t.String() == text {
			return t.WithNullable(nullable), nil
		}
	}
	return octojit.Type{}, fmt.Errorf("unknown type '%s'", text)
}

// ValueFromJSON converts the JSON value to a value of the given type. Missing and null values are nulls.
func ValueFromJSON(t octojit.Type, value *fastjson.Value) (octojit.Value, bool) {
	if value == nil || value.Type() == fastjson.TypeNull {
		return octojit.NewNull(t), true
	}

	switch t.TypeID {
	case octojit.TypeIDBoolean:
		if value.Type() == fastjson.TypeTrue {
			return octojit.NewBoolean(true), true
		} else if value.Type() == fastjson.TypeFalse {
			return octojit.NewBoolean(false), true
		}
	case octojit.TypeIDInt8, octojit.TypeIDInt16, octojit.TypeIDInt32, octojit.TypeIDInt64, octojit.TypeIDDate, octojit.TypeIDTimestamp:
		if value.Type() == fastjson.TypeNumber {
			v, err := value.Int64()
			if err != nil {
				return octojit.Value{}, false
			}
			return octojit.Value{Type: t.WithNullable(false), Int: v}, true
		}
	case octojit.TypeIDFloat32, octojit.TypeIDFloat64:
		if value.Type() == fastjson.TypeNumber {
			v, _ := value.Float64()
			return octojit.Value{Type: t.WithNullable(false), Float: v}, true
		}
	case octojit.TypeIDString:
		if value.Type() == fastjson.TypeString {
			v, _ := value.StringBytes()
			return octojit.NewString(string(v)), true
		}
	case octojit.TypeIDList:
		if value.Type() == fastjson.TypeArray {
			arr, _ := value.Array()
			values := make([]octojit.Value, len(arr))
			for i := range arr {
				v, ok := ValueFromJSON(*t.List.Element, arr[i])
				if !ok {
					return octojit.Value{}, false
				}
				values[i] = v
			}
			return octojit.NewList(*t.List.Element, values), true
		}
	}

	return octojit.Value{}, false
}

func parseColumns(values []*fastjson.Value) ([]Column, error) {
	columns := make([]Column, len(values))
	for i, value := range values {
		t, err := ParseType(string(value.GetStringBytes("type")))
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		columns[i] = Column{
			Name: string(value.GetStringBytes("name")),
			Type: t,
		}
		switch encoding := string(value.GetStringBytes("encoding")); encoding {
		case "", "none":
		case "dict":
			columns[i].Encoding = octojit.EncodingDict
			columns[i].DictID = value.GetInt("dict_id")
		default:
			return nil, fmt.Errorf("column %s: unknown encoding '%s'", columns[i].Name, encoding)
		}
	}
	return columns, nil
}

type unitParser struct {
	scope map[string]Column
}

func (p *unitParser) bind(columns []Column) {
	for _, column := range columns {
		p.scope[column.Name] = column
	}
}

func (p *unitParser) parseJoinCondition(value *fastjson.Value) (JoinCondition, error) {
	var condition JoinCondition
	switch joinType := string(value.GetStringBytes("type")); joinType {
	case "", JoinTypeInner.String():
		condition.JoinType = JoinTypeInner
	case JoinTypeLeft.String():
		condition.JoinType = JoinTypeLeft
	default:
		return condition, fmt.Errorf("unknown join type '%s'", joinType)
	}
	condition.HashTable = value.GetInt("hash_table")

	var err error
	if condition.ProbeKeys, err = p.parseExpressions(value.GetArray("probe_keys")); err != nil {
		return condition, fmt.Errorf("couldn't parse probe keys: %w", err)
	}
	if condition.BuildColumns, err = parseColumns(value.GetArray("build_columns")); err != nil {
		return condition, fmt.Errorf("couldn't parse build columns: %w", err)
	}
	// Build-side columns are visible to everything above the join.
	p.bind(condition.BuildColumns)
	return condition, nil
}

func (p *unitParser) parseExpressions(values []*fastjson.Value) ([]Expression, error) {
	var out []Expression
	for i := range values {
		expr, err := p.parseExpression(values[i])
		if err != nil {
			return nil, err
		}
		out = append(out, expr)
	}
	return out, nil
}

func (p *unitParser) parseExpression(value *fastjson.Value) (Expression, error) {
	if value == nil || value.Type() != fastjson.TypeObject {
		return Expression{}, fmt.Errorf("expected expression object")
	}

	switch {
	case value.Exists("var"):
		name := string(value.GetStringBytes("var"))
		column, ok := p.scope[name]
		if !ok {
			return Expression{}, fmt.Errorf("unknown variable '%s'", name)
		}
		return NewVariable(name, column.Type), nil

	case value.Exists("const"):
		t, err := ParseType(string(value.GetStringBytes("type")))
		if err != nil {
			return Expression{}, err
		}
		constant, ok := ValueFromJSON(t, value.Get("const"))
		if !ok {
			return Expression{}, fmt.Errorf("invalid %s constant: %s", t, value.Get("const"))
		}
		if value.Exists("dict_id") {
			return NewDictConstant(constant, value.GetInt("dict_id")), nil
		}
		return NewConstant(constant), nil

	case value.Exists("op"):
		symbol := string(value.GetStringBytes("op"))
		op, ok := BinaryOpKindFromSymbol(symbol)
		if !ok {
			return Expression{}, fmt.Errorf("unknown binary operator '%s'", symbol)
		}
		left, err := p.parseExpression(value.Get("left"))
		if err != nil {
			return Expression{}, err
		}
		right, err := p.parseExpression(value.Get("right"))
		if err != nil {
			return Expression{}, err
		}
		return NewBinaryOp(op, left, right), nil

	case value.Exists("unary"):
		name := string(value.GetStringBytes("unary"))
		for op := UnaryOpNot; op <= UnaryOpIsNotNull; op++ {
			if op.String() != name {
				continue
			}
			arg, err := p.parseExpression(value.Get("arg"))
			if err != nil {
				return Expression{}, err
			}
			return NewUnaryOp(op, arg), nil
		}
		return Expression{}, fmt.Errorf("unknown unary operator '%s'", name)

	case value.Exists("and"), value.Exists("or"):
		key := "and"
		if value.Exists("or") {
			key = "or"
		}
		args, err := p.parseExpressions(value.GetArray(key))
		if err != nil {
			return Expression{}, err
		}
		if key == "and" {
			return NewAnd(args...), nil
		}
		return NewOr(args...), nil

	case value.Exists("cast"):
		arg, err := p.parseExpression(value.Get("cast"))
		if err != nil {
			return Expression{}, err
		}
		t, err := ParseType(string(value.GetStringBytes("to")))
		if err != nil {
			return Expression{}, err
		}
		return NewCast(arg, t), nil

	case value.Exists("fn"):
		name := string(value.GetStringBytes("fn"))
		kind, ok := functions.StringOpKindFromName(name)
		if !ok {
			return Expression{}, fmt.Errorf("unknown function '%s'", name)
		}
		input, err := p.parseExpression(value.Get("input"))
		if err != nil {
			return Expression{}, err
		}
		returnType := octojit.String
		if value.Exists("type") {
			if returnType, err = ParseType(string(value.GetStringBytes("type"))); err != nil {
				return Expression{}, err
			}
		}
		var params []octojit.Value
		for i, param := range value.GetArray("params") {
			switch param.Type() {
			case fastjson.TypeString:
				params = append(params, octojit.NewString(string(param.GetStringBytes())))
			case fastjson.TypeNumber:
				params = append(params, octojit.NewInt64(param.GetInt64()))
			default:
				return Expression{}, fmt.Errorf("parameter %d of %s: expected string or integer", i, name)
			}
		}
		return NewStringOp(kind, input, returnType, params...), nil

	case value.Exists("in"):
		arg, err := p.parseExpression(value.Get("in"))
		if err != nil {
			return Expression{}, err
		}
		list, ok := ValueFromJSON(octojit.ListOf(arg.Type.WithNullable(false)), value.Get("list"))
		if !ok || list.Null {
			return Expression{}, fmt.Errorf("invalid list of %s: %s", arg.Type, value.Get("list"))
		}
		return NewInList(arg, list), nil
	}

	return Expression{}, fmt.Errorf("unknown expression: %s", value)
}
