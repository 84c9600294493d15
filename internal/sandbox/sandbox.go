// Package sandbox evaluates reduced module graphs in an embedded JS runtime.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
)

// Function is a callable exported from the runtime. It must be called from
// the goroutine that owns the evaluation.
type Function func(args ...any) (any, error)

// Object is a plain JS object with its own enumerable keys in order.
type Object struct {
	Keys   []string
	Fields map[string]any
}

// Get returns a field value or nil.
func (o *Object) Get(key string) any {
	if o == nil {
		return nil
	}
	return o.Fields[key]
}

// Module is one reduced module of a program.
type Module struct {
	Path string
	Code string
	// Requires maps each specifier the code imports to the path of another
	// module of the program. An empty path evaluates to an empty object.
	Requires map[string]string
}

// Program is a reduced module graph ordered dependencies first.
type Program struct {
	Modules []Module
	Entry   string
	Export  string // name of the entry export holding lazy bindings
}

// Values maps lazy binding names to their settled values.
type Values map[string]any

// Sandbox runs programs, each in a fresh runtime.
type Sandbox struct {
	logger zerolog.Logger
}

// New creates a sandbox that routes console output to logger.
func New(logger zerolog.Logger) *Sandbox {
	return &Sandbox{logger: logger}
}

// Evaluate runs every module of the program and settles the entry's lazy bindings.
func (s *Sandbox) Evaluate(ctx context.Context, program Program) (Values, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vm := goja.New()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	if err := s.installConsole(vm); err != nil {
		return nil, err
	}

	loaded := make(map[string]*goja.Object, len(program.Modules))
	for _, module := range program.Modules {
		moduleObj, err := s.load(vm, module, loaded)
		if err != nil {
			return nil, interruptCause(ctx, err)
		}
		loaded[module.Path] = moduleObj
	}

	entry, ok := loaded[program.Entry]
	if !ok {
		return nil, fmt.Errorf("entry %s is not part of the program", program.Entry)
	}
	values, err := s.settle(vm, entry, program.Export)
	if err != nil {
		return nil, interruptCause(ctx, err)
	}
	return values, nil
}

func (s *Sandbox) load(vm *goja.Runtime, module Module, loaded map[string]*goja.Object) (*goja.Object, error) {
	code, err := Transform(module.Path, module.Code)
	if err != nil {
		return nil, err
	}

	// the wrapper shares the first line so source-mapped positions hold
	wrapped := "(function (exports, require, module) {" + code + "\n})"
	fnValue, err := vm.RunScript(module.Path, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", module.Path, err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, fmt.Errorf("%s: module wrapper is not callable", module.Path)
	}

	moduleObj := vm.NewObject()
	exportsObj := vm.NewObject()
	if err := moduleObj.Set("exports", exportsObj); err != nil {
		return nil, err
	}

	require := func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		target, ok := module.Requires[specifier]
		if !ok {
			panic(vm.NewGoError(fmt.Errorf("cannot require %q from %s", specifier, module.Path)))
		}
		if target == "" {
			return vm.NewObject()
		}
		dep, ok := loaded[target]
		if !ok {
			panic(vm.NewGoError(fmt.Errorf("module %s required before evaluation", target)))
		}
		return dep.Get("exports")
	}

	if _, err := fn(goja.Undefined(), exportsObj, vm.ToValue(require), moduleObj); err != nil {
		return nil, fmt.Errorf("%s: %w", module.Path, err)
	}
	return moduleObj, nil
}

func (s *Sandbox) settle(vm *goja.Runtime, moduleObj *goja.Object, export string) (Values, error) {
	values := make(Values)
	exportsValue := moduleObj.Get("exports")
	if export == "" || exportsValue == nil || goja.IsUndefined(exportsValue) || goja.IsNull(exportsValue) {
		return values, nil
	}

	preval := exportsValue.ToObject(vm).Get(export)
	if preval == nil || goja.IsUndefined(preval) {
		return values, nil
	}

	bindings := preval.ToObject(vm)
	for _, name := range bindings.Keys() {
		thunk, ok := goja.AssertFunction(bindings.Get(name))
		if !ok {
			return nil, fmt.Errorf("lazy binding %s is not callable", name)
		}
		result, err := thunk(goja.Undefined())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		settled, err := settlePromise(result)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		values[name] = exportValue(vm, settled)
	}
	return values, nil
}

// settlePromise unwraps a promise; jobs run when the outermost call
// returns, so anything still pending waits on something that never comes.
func settlePromise(value goja.Value) (goja.Value, error) {
	if value == nil {
		return goja.Undefined(), nil
	}
	promise, ok := value.Export().(*goja.Promise)
	if !ok {
		return value, nil
	}
	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return promise.Result(), nil
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("promise rejected: %s", promise.Result().String())
	default:
		return nil, errors.New("promise did not settle")
	}
}

func (s *Sandbox) installConsole(vm *goja.Runtime) error {
	console := vm.NewObject()
	logAt := func(level zerolog.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, arg.String())
			}
			s.logger.WithLevel(level).Str("source", "sandbox").Msg(strings.Join(parts, " "))
			return goja.Undefined()
		}
	}
	for name, level := range map[string]zerolog.Level{
		"log":   zerolog.DebugLevel,
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	} {
		if err := console.Set(name, logAt(level)); err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}

// Transform compiles TS/ESM source to CommonJS the runtime understands.
// The output carries an inline source map, so runtime errors point at the
// given code rather than the compiled output.
func Transform(path, code string) (string, error) {
	result := api.Transform(code, api.TransformOptions{
		Loader:     loaderFor(path),
		Format:     api.FormatCommonJS,
		Target:     api.ES2017,
		Sourcefile: path,
		Sourcemap:  api.SourceMapInline,
		Platform:   api.PlatformNeutral,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, msg := range result.Errors {
			if msg.Location != nil {
				msgs = append(msgs, fmt.Sprintf("%s:%d: %s", path, msg.Location.Line, msg.Text))
				continue
			}
			msgs = append(msgs, msg.Text)
		}
		return "", fmt.Errorf("transform failed: %s", strings.Join(msgs, "; "))
	}
	return string(result.Code), nil
}

func loaderFor(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

func interruptCause(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}
