package operators

import (
	"fmt"
	"strings"

	"github.com/cube2222/octojit/graph"
)

func (node *Node) Visualize() *graph.Node {
	n := graph.NewNode(node.Kind.String())
	n.AddField("shape", node.Shape.String())
	switch node.Kind {
	case KindSource:
		names := make([]string, len(node.Source.Columns))
		for i, column := range node.Source.Columns {
			names[i] = fmt.Sprintf("%s %s", column.Name, column.Type)
		}
		n.AddField("columns", strings.Join(names, ", "))
	case KindJoinProbe:
		n.AddField("type", node.JoinProbe.Condition.JoinType.String())
		n.AddField("hash_table", fmt.Sprint(node.JoinProbe.Condition.HashTable))
		for i := range node.Expressions {
			n.AddField(fmt.Sprintf("key_%d", i), node.Expressions[i].String())
		}
	case KindFilter:
		for i := range node.Expressions {
			n.AddField(fmt.Sprintf("qual_%d", i), node.Expressions[i].String())
		}
	case KindProject:
		for i := range node.Expressions {
			n.AddField(fmt.Sprintf("target_%d", i), fmt.Sprintf("%s = %s", node.Project.Names[i], node.Expressions[i]))
		}
	case KindAggregate:
		for i := range node.Aggregate.GroupBy {
			n.AddField(fmt.Sprintf("group_by_%d", i), node.Aggregate.GroupBy[i].String())
		}
		for i, aggregate := range node.Aggregate.Aggregates {
			n.AddField(fmt.Sprintf("aggregate_%d", i), fmt.Sprintf("%s = %s", aggregate.Name, aggregate))
		}
	default:
		panic("unexhaustive operator kind match")
	}
	return n
}

// Visualize returns the pipeline as a tree rooted at its last node.
func Visualize(nodes []*Node) *graph.Node {
	var root *graph.Node
	for _, node := range nodes {
		n := node.Visualize()
		if root != nil {
			n.AddChild("source", root)
		}
		root = n
	}
	return root
}
