package operators

import (
	"fmt"
	"strings"

	"github.com/cube2222/octojit/physical"
)

type Kind int

const (
	KindSource Kind = iota
	KindJoinProbe
	KindFilter
	KindProject
	KindAggregate
)

func (kind Kind) String() string {
	switch kind {
	case KindSource:
		return "source"
	case KindJoinProbe:
		return "join_probe"
	case KindFilter:
		return "filter"
	case KindProject:
		return "project"
	case KindAggregate:
		return "aggregate"
	}
	return fmt.Sprintf("Kind(%d)", int(kind))
}

// ValueShape is the form in which an operator receives its values.
type ValueShape int

const (
	ValueShapeRow ValueShape = iota
	ValueShapeColumnar
)

func (shape ValueShape) String() string {
	switch shape {
	case ValueShapeRow:
		return "row"
	case ValueShapeColumnar:
		return "columnar"
	}
	return fmt.Sprintf("ValueShape(%d)", int(shape))
}

// Node is a single operator of a compiled pipeline. Nodes are immutable once built.
type Node struct {
	Kind  Kind
	Shape ValueShape
	// Expressions are all expressions the operator evaluates, in evaluation order:
	// probe keys for joins, quals for filters, targets for projections,
	// and the group key followed by aggregate arguments for aggregations.
	Expressions []physical.Expression

	// Only the one matching the kind may be non-null. Filters need nothing beyond their expressions.
	Source    *Source
	JoinProbe *JoinProbe
	Project   *Project
	Aggregate *Aggregate
}

type Source struct {
	Columns []physical.Column
}

type JoinProbe struct {
	Condition physical.JoinCondition
}

type Project struct {
	// Names are the output column names, one per expression.
	Names []string
}

type Aggregate struct {
	GroupBy    []physical.Expression
	Aggregates []physical.Aggregate
}

func NewSource(columns []physical.Column) *Node {
	return &Node{
		Kind:   KindSource,
		Shape:  ValueShapeColumnar,
		Source: &Source{Columns: columns},
	}
}

func NewJoinProbe(condition physical.JoinCondition) *Node {
	return &Node{
		Kind:        KindJoinProbe,
		Shape:       ValueShapeRow,
		Expressions: condition.ProbeKeys,
		JoinProbe:   &JoinProbe{Condition: condition},
	}
}

func NewFilter(quals []physical.Expression) *Node {
	return &Node{
		Kind:        KindFilter,
		Shape:       ValueShapeRow,
		Expressions: quals,
	}
}

func NewProject(targets []physical.Target) *Node {
	exprs := make([]physical.Expression, len(targets))
	names := make([]string, len(targets))
	for i := range targets {
		exprs[i] = targets[i].Expression
		names[i] = targets[i].Name
	}
	return &Node{
		Kind:        KindProject,
		Shape:       ValueShapeRow,
		Expressions: exprs,
		Project:     &Project{Names: names},
	}
}

func NewAggregate(groupBy []physical.Expression, aggregates []physical.Aggregate) *Node {
	exprs := append([]physical.Expression{}, groupBy...)
	for i := range aggregates {
		if aggregates[i].Argument != nil {
			exprs = append(exprs, *aggregates[i].Argument)
		}
	}
	return &Node{
		Kind:        KindAggregate,
		Shape:       ValueShapeRow,
		Expressions: exprs,
		Aggregate:   &Aggregate{GroupBy: groupBy, Aggregates: aggregates},
	}
}

// Variables lists the variables referenced by the node's expressions.
func (node *Node) Variables() []string {
	var out []string
	for i := range node.Expressions {
		out = append(out, node.Expressions[i].Variables()...)
	}
	return out
}

func (node *Node) String() string {
	var args []string
	switch node.Kind {
	case KindSource:
		for _, column := range node.Source.Columns {
			args = append(args, fmt.Sprintf("%s %s", column.Name, column.Type))
		}
	case KindJoinProbe:
		args = append(args, fmt.Sprintf("table %d", node.JoinProbe.Condition.HashTable))
		for i := range node.Expressions {
			args = append(args, node.Expressions[i].String())
		}
	case KindFilter:
		for i := range node.Expressions {
			args = append(args, node.Expressions[i].String())
		}
	case KindProject:
		for i := range node.Expressions {
			args = append(args, fmt.Sprintf("%s AS %s", node.Expressions[i], node.Project.Names[i]))
		}
	case KindAggregate:
		for i := range node.Aggregate.GroupBy {
			args = append(args, "BY "+node.Aggregate.GroupBy[i].String())
		}
		for _, aggregate := range node.Aggregate.Aggregates {
			args = append(args, fmt.Sprintf("%s AS %s", aggregate, aggregate.Name))
		}
	}
	return fmt.Sprintf("%s[%s](%s)", node.Kind, node.Shape, strings.Join(args, ", "))
}
