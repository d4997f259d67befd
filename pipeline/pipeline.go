// Package pipeline turns a relational execution unit into the ordered operator nodes it's compiled from.
package pipeline

import (
	"fmt"

	"github.com/cube2222/octojit/codegen"
	"github.com/cube2222/octojit/operators"
	"github.com/cube2222/octojit/physical"
)

var ErrUnsupportedOperator = fmt.Errorf("unsupported operator: %w", codegen.ErrUnsupported)

// Build returns the nodes of the unit from the leaf to the root:
// the source, a join probe per join condition, a filter if there are quals,
// and finally an aggregation if there are group keys or aggregates, a projection otherwise.
func Build(unit *physical.RelAlgExecutionUnit) ([]*operators.Node, error) {
	if len(unit.OrderBy) > 0 {
		return nil, fmt.Errorf("ORDER BY: %w", ErrUnsupportedOperator)
	}
	if len(unit.Input) == 0 {
		return nil, fmt.Errorf("no input columns: %w", ErrUnsupportedOperator)
	}

	nodes := []*operators.Node{operators.NewSource(unit.Input)}

	for i, condition := range unit.JoinConditions {
		if condition.JoinType != physical.JoinTypeInner {
			return nil, fmt.Errorf("%s join: %w", condition.JoinType, ErrUnsupportedOperator)
		}
		if len(condition.ProbeKeys) != 1 {
			return nil, fmt.Errorf("join %d with %d keys: %w", i, len(condition.ProbeKeys), ErrUnsupportedOperator)
		}
		nodes = append(nodes, operators.NewJoinProbe(condition))
	}

	if len(unit.Quals) > 0 {
		nodes = append(nodes, operators.NewFilter(unit.Quals))
	}

	switch {
	case len(unit.GroupBy) > 0 || len(unit.Aggregates) > 0:
		if len(unit.GroupBy) > 1 {
			return nil, fmt.Errorf("grouping by %d keys: %w", len(unit.GroupBy), ErrUnsupportedOperator)
		}
		if len(unit.Aggregates) == 0 {
			return nil, fmt.Errorf("grouping without aggregates: %w", ErrUnsupportedOperator)
		}
		nodes = append(nodes, operators.NewAggregate(unit.GroupBy, unit.Aggregates))
	case len(unit.Targets) > 0:
		nodes = append(nodes, operators.NewProject(unit.Targets))
	default:
		return nil, fmt.Errorf("no targets: %w", ErrUnsupportedOperator)
	}

	return nodes, nil
}
