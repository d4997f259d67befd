package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cube2222/octojit/codegen"
	"github.com/cube2222/octojit/compiler"
)

var compileCmd = &cobra.Command{
	Use:   "compile <plan.json>",
	Short: "Compiles a plan into a WebAssembly module.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		unit, err := readUnit(args[0])
		if err != nil {
			return err
		}
		codegenOptions, _, err := readOptions()
		if err != nil {
			return err
		}
		cc, err := compiler.Compile(unit, codegenOptions)
		if err != nil {
			return err
		}

		outputPath := compileOutput
		if outputPath == "" {
			outputPath = strings.TrimSuffix(args[0], ".json") + ".wasm"
		}
		if err := os.WriteFile(outputPath, cc.Binary(), 0644); err != nil {
			return fmt.Errorf("couldn't write module: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d bytes, fingerprint %016x\n", outputPath, len(cc.Binary()), cc.Fingerprint())
		fmt.Fprintln(out, cc.Signature())
		printLayout(cmd, cc)
		printLiterals(cmd, cc)
		if compileDebug {
			spew.Fdump(out, cc.Layout)
		}
		return nil
	},
}

var compileOutput string
var compileDebug bool

func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "", "Module output path, defaults to the plan path with a .wasm extension.")
	compileCmd.Flags().BoolVar(&compileDebug, "debug", false, "Dump the complete context layout.")
}

func printLayout(cmd *cobra.Command, cc *codegen.CodegenContext) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"slot", "offset", "size"})
	table.SetAutoFormatHeaders(false)
	for _, slot := range cc.Layout.Slots {
		table.Append([]string{slot.Name, fmt.Sprint(slot.Offset), fmt.Sprint(slot.Size)})
	}
	table.SetFooter([]string{"context", "", fmt.Sprint(cc.Layout.Size)})
	table.Render()
}

func printLiterals(cmd *cobra.Command, cc *codegen.CodegenContext) {
	literals := cc.Literals.Literals()
	if len(literals) == 0 {
		return
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"offset", "kind", "type", "value"})
	table.SetAutoFormatHeaders(false)
	table.SetColWidth(24)
	for _, literal := range literals {
		table.Append([]string{
			fmt.Sprint(literal.Offset),
			literal.Kind.String(),
			literal.Value.Type.String(),
			literal.Value.String(),
		})
	}
	table.Render()
}
