// Package compiler is the entry point compiling relational execution units into WebAssembly modules.
package compiler

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cube2222/octojit/codegen"
	"github.com/cube2222/octojit/config"
	"github.com/cube2222/octojit/operators"
	"github.com/cube2222/octojit/physical"
	"github.com/cube2222/octojit/pipeline"
)

// Compile lowers the unit into a finished compilation context, which owns the resulting module.
// No module is produced if any part of the unit can't be lowered.
func Compile(unit *physical.RelAlgExecutionUnit, options config.CodegenOptions) (*codegen.CodegenContext, error) {
	start := time.Now()
	ctx := codegen.NewCodegenContext(options, unit.Dictionaries)

	nodes, err := pipeline.Build(unit)
	if err != nil {
		return nil, fmt.Errorf("couldn't build operator pipeline: %w", err)
	}

	ctx.BeginLowering()
	head := operators.ToTranslator(nodes)
	if err := head.Consume(ctx); err != nil {
		return nil, fmt.Errorf("couldn't lower operator pipeline: %w", err)
	}
	if options.NullHandlingBypass {
		if err := head.Successor().ConsumeNull(ctx); err != nil {
			return nil, fmt.Errorf("couldn't lower null handling: %w", err)
		}
	}
	ctx.Function.I32Const(0)
	ctx.Function.Return()
	ctx.Finish()

	kinds := make([]string, len(nodes))
	for i := range nodes {
		kinds[i] = nodes[i].Kind.String()
	}
	log.Printf("compiled %s: %d literals, %d bytes, fingerprint %016x in %s",
		strings.Join(kinds, " -> "), ctx.Literals.Len(), len(ctx.Binary()), ctx.Fingerprint(), time.Since(start))

	return ctx, nil
}
