package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/processor"
)

var (
	ErrUnresolvedImport = errors.New("unresolved import")
	ErrCyclicDependency = errors.New("cyclic dependency")
	ErrUnsafeReduction  = parser.ErrUnsafeReduction
	ErrEvaluation       = errors.New("evaluation failed")
	ErrProcessorBuild   = processor.ErrBuild
)

// UnresolvedImportError is returned when a specifier matches no module and
// no ignore rule.
type UnresolvedImportError struct {
	Specifier string
	Importer  string
	Line      int
}

func (e *UnresolvedImportError) Error() string {
	if e == nil {
		return ""
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s: %q from %s:%d", ErrUnresolvedImport.Error(), e.Specifier, e.Importer, e.Line)
	}
	return fmt.Sprintf("%s: %q from %s", ErrUnresolvedImport.Error(), e.Specifier, e.Importer)
}

func (e *UnresolvedImportError) Unwrap() error { return ErrUnresolvedImport }

// Frame is one action on the current call chain.
type Frame struct {
	Kind string
	Path string
}

func (f Frame) String() string {
	return f.Kind + "(" + f.Path + ")"
}

// CycleError reports an action that re-entered itself.
type CycleError struct {
	Trail []Frame
}

func (e *CycleError) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, len(e.Trail))
	for _, frame := range e.Trail {
		parts = append(parts, frame.String())
	}
	return fmt.Sprintf("%s: %s", ErrCyclicDependency.Error(), strings.Join(parts, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCyclicDependency }

// EvaluationError is a failure raised while executing reduced code.
type EvaluationError struct {
	Path string
	Err  error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s: %v", ErrEvaluation.Error(), e.Path, e.Err)
}

func (e *EvaluationError) Unwrap() []error { return []error{ErrEvaluation, e.Err} }

// Warning is a problem that did not stop the build.
type Warning struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func warningFor(file string, err error) Warning {
	w := Warning{File: file, Message: err.Error(), Err: err}
	var unsafe *parser.UnsafeError
	var build *processor.BuildError
	var unresolved *UnresolvedImportError
	switch {
	case errors.As(err, &unsafe):
		w.Line = unsafe.Line
	case errors.As(err, &build):
		w.Line = build.Line
	case errors.As(err, &unresolved):
		w.Line = unresolved.Line
	}
	return w
}

// soft reports errors the soft error mode may turn into warnings.
func soft(err error) bool {
	return errors.Is(err, ErrUnsafeReduction) || errors.Is(err, ErrEvaluation)
}
