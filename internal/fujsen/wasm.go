package fujsen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// wasmExecutor runs WASM bundles under wazero with WASI. The compiled
// module bytes live in the bundle's CompiledCode. Arguments travel as
// JSON on stdin and the module's stdout is its result; a module exporting
// a function named after the bundle is invoked instead of _start.
type wasmExecutor struct{}

func newWASMExecutor() *wasmExecutor { return &wasmExecutor{} }

func (e *wasmExecutor) Language() string { return "wasm" }

func (e *wasmExecutor) Execute(ctx context.Context, fn *Function, args map[string]any) (any, error) {
	if len(fn.CompiledCode) == 0 {
		return nil, fmt.Errorf("wasm bundle %s has no compiled module", fn.Name)
	}

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	compiled, err := rt.CompileModule(ctx, fn.CompiledCode)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	inputData, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}

	var stdout bytes.Buffer
	config := wazero.NewModuleConfig().
		WithName(fn.Name).
		WithStdin(bytes.NewReader(inputData)).
		WithStdout(&stdout).
		WithArgs(fn.Name)

	// Exported-function form: instantiate without running _start, then
	// call the export named after the bundle.
	hasExport := false
	for name := range compiled.ExportedFunctions() {
		if name == fn.Name {
			hasExport = true
			break
		}
	}

	if hasExport {
		mod, err := rt.InstantiateModule(ctx, compiled, config.WithStartFunctions())
		if err != nil {
			return nil, fmt.Errorf("instantiate: %w", err)
		}
		defer mod.Close(ctx)
		if _, err := mod.ExportedFunction(fn.Name).Call(ctx); err != nil {
			return nil, fmt.Errorf("call %s: %w", fn.Name, err)
		}
		return parseResult(stdout.String()), nil
	}

	// WASI command form: _start runs main.
	mod, err := rt.InstantiateModule(ctx, compiled, config)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer mod.Close(ctx)
	return parseResult(stdout.String()), nil
}
