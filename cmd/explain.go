package cmd

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cube2222/octojit/graph"
	"github.com/cube2222/octojit/operators"
	"github.com/cube2222/octojit/pipeline"
)

var explainCmd = &cobra.Command{
	Use:   "explain <plan.json>",
	Short: "Shows the operator pipeline a plan is compiled into.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unit, err := readUnit(args[0])
		if err != nil {
			return err
		}
		nodes, err := pipeline.Build(unit)
		if err != nil {
			return fmt.Errorf("couldn't build operator pipeline: %w", err)
		}

		if explainGraph {
			g, err := graph.Show(operators.Visualize(nodes))
			if err != nil {
				return fmt.Errorf("couldn't render graph: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), g.String())
			return nil
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"#", "operator", "shape", "expressions"})
		table.SetAutoFormatHeaders(false)
		table.SetAutoWrapText(false)
		for i, node := range nodes {
			exprs := make([]string, len(node.Expressions))
			for j := range node.Expressions {
				exprs[j] = node.Expressions[j].String()
			}
			table.Append([]string{fmt.Sprint(i), node.Kind.String(), node.Shape.String(), strings.Join(exprs, "\n")})
		}
		table.Render()
		return nil
	},
}

var explainGraph bool

func init() {
	rootCmd.AddCommand(explainCmd)
	explainCmd.Flags().BoolVar(&explainGraph, "graph", false, "Print the pipeline as a graphviz graph.")
}
