package physical

import (
	"fmt"

	"github.com/cube2222/octojit/octojit"
)

// RelAlgExecutionUnit is a planned query fragment. It's read-only to the compiler.
type RelAlgExecutionUnit struct {
	// Input describes the columns of the batches passed to the compiled function.
	Input          []Column
	JoinConditions []JoinCondition
	Quals          []Expression
	GroupBy        []Expression
	Aggregates     []Aggregate
	Targets        []Target
	OrderBy        []OrderBy
	// Dictionaries are the string dictionaries of dictionary-encoded columns, by dictionary id.
	Dictionaries map[int][]string
}

type Column struct {
	Name     string
	Type     octojit.Type
	Encoding octojit.Encoding
	DictID   int
}

type JoinType int

const (
	JoinTypeInner JoinType = iota
	JoinTypeLeft
)

func (t JoinType) String() string {
	switch t {
	case JoinTypeInner:
		return "inner"
	case JoinTypeLeft:
		return "left"
	}
	return fmt.Sprintf("JoinType(%d)", int(t))
}

type JoinCondition struct {
	JoinType JoinType
	// HashTable is the index of the hash table the probe side is matched against, as registered with the executor.
	HashTable int
	ProbeKeys []Expression
	// BuildColumns are the columns of the batches stored in the hash table, bound for matching rows.
	BuildColumns []Column
}

type AggregateKind int

const (
	AggregateSum AggregateKind = iota
	AggregateMin
	AggregateMax
	AggregateCount
	AggregateCountStar
	AggregateAvg
)

func (kind AggregateKind) String() string {
	switch kind {
	case AggregateSum:
		return "sum"
	case AggregateMin:
		return "min"
	case AggregateMax:
		return "max"
	case AggregateCount:
		return "count"
	case AggregateCountStar:
		return "count_star"
	case AggregateAvg:
		return "avg"
	}
	return fmt.Sprintf("AggregateKind(%d)", int(kind))
}

func AggregateKindFromName(name string) (AggregateKind, bool) {
	for kind := AggregateSum; kind <= AggregateAvg; kind++ {
		if kind.String() == name {
			return kind, true
		}
	}
	return 0, false
}

type Aggregate struct {
	Name string
	Kind AggregateKind
	// Argument is nil for count_star.
	Argument *Expression
	// Type is the type of the accumulator and the aggregate result.
	Type octojit.Type
}

type Target struct {
	Name       string
	Expression Expression
}

type OrderBy struct {
	Expression Expression
	Descending bool
}

// NewAggregate derives the accumulator type the way the planner does: count is Int64, avg is Float64,
// sum widens integers to Int64 and min/max keep the argument type.
func NewAggregate(name string, kind AggregateKind, argument *Expression) Aggregate {
	var t octojit.Type
	switch kind {
	case AggregateCount, AggregateCountStar:
		t = octojit.Int64
	case AggregateAvg:
		t = octojit.Float64.WithNullable(true)
	case AggregateSum:
		t = argument.Type.WithNullable(true)
		if argument.Type.IsInteger() {
			t = octojit.Int64.WithNullable(true)
		}
	default:
		t = argument.Type.WithNullable(true)
	}
	return Aggregate{
		Name:     name,
		Kind:     kind,
		Argument: argument,
		Type:     t,
	}
}

func (agg Aggregate) String() string {
	if agg.Argument == nil {
		return "count(*)"
	}
	return fmt.Sprintf("%s(%s)", agg.Kind, agg.Argument)
}

func (unit *RelAlgExecutionUnit) InputColumn(name string) (Column, bool) {
	for _, column := range unit.Input {
		if column.Name == name {
			return column, true
		}
	}
	return Column{}, false
}
