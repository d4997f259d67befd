// Package wasmsql runs compiled query modules over arrow batches.
package wasmsql

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/cube2222/octojit/codegen"
	"github.com/cube2222/octojit/codegen/lib"
	"github.com/cube2222/octojit/compiler"
	"github.com/cube2222/octojit/config"
	"github.com/cube2222/octojit/physical"
)

// Engine holds the wasm runtime with the runtime library instantiated. It's safe for concurrent use.
type Engine struct {
	runtime wazero.Runtime
	options config.ExecutionOptions
}

func NewEngine(ctx context.Context, options config.ExecutionOptions) (*Engine, error) {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigCompiler())
	if _, err := lib.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, err
	}
	return &Engine{
		runtime: r,
		options: options,
	}, nil
}

func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Query is a compiled module ready to be instantiated.
type Query struct {
	engine   *Engine
	unit     *physical.RelAlgExecutionUnit
	codegen  *codegen.CodegenContext
	compiled wazero.CompiledModule
}

// Compile lowers the unit and prepares the resulting module.
func (e *Engine) Compile(ctx context.Context, unit *physical.RelAlgExecutionUnit, options config.CodegenOptions) (*Query, error) {
	cc, err := compiler.Compile(unit, options)
	if err != nil {
		return nil, err
	}
	return e.Prepare(ctx, unit, cc)
}

// Prepare compiles the module of a finished compilation of the unit to machine code.
func (e *Engine) Prepare(ctx context.Context, unit *physical.RelAlgExecutionUnit, cc *codegen.CodegenContext) (*Query, error) {
	if dir := e.options.DumpModulesDirectory; dir != "" {
		if err := dumpModule(dir, cc); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	compiled, err := e.runtime.CompileModule(ctx, cc.Binary())
	if err != nil {
		return nil, fmt.Errorf("couldn't compile module: %w", err)
	}
	log.Printf("compiled module %016x to machine code in %s", cc.Fingerprint(), time.Since(start))

	return &Query{
		engine:   e,
		unit:     unit,
		codegen:  cc,
		compiled: compiled,
	}, nil
}

func dumpModule(dir string, cc *codegen.CodegenContext) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("couldn't create module dump directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%016x.wasm", cc.Fingerprint()))
	if err := os.WriteFile(path, cc.Binary(), 0644); err != nil {
		return fmt.Errorf("couldn't dump module: %w", err)
	}
	return nil
}

func (q *Query) Codegen() *codegen.CodegenContext {
	return q.codegen
}

func (q *Query) Close(ctx context.Context) error {
	return q.compiled.Close(ctx)
}
