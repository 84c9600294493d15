// Package processor defines how tagged expressions are turned into class
// names at evaluation time and into artifacts after evaluation.
package processor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/morozRed/husk/internal/parser"
)

// ErrBuild marks a processor that failed to build its artifacts.
var ErrBuild = errors.New("processor build failed")

// BuildError scopes a build failure to one tagged usage.
type BuildError struct {
	File      string
	Line      int
	Processor string
	Err       error
}

func (e *BuildError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s:%d (%s): %v", ErrBuild.Error(), e.File, e.Line, e.Processor, e.Err)
}

func (e *BuildError) Unwrap() []error { return []error{ErrBuild, e.Err} }

// Usage describes one tagged expression found in a module.
type Usage struct {
	File        string
	RelPath     string // File relative to the project root, slash-separated
	Index       int    // position among the module's usages
	Source      string // module specifier the tag is imported from
	Imported    string // imported name, or the member for namespace imports
	Member      string
	DisplayName string
	Form        parser.CallForm
	Quasis      []string
	Args        []string // source text of each interpolation or argument
	Span        parser.Span
	Line        int
	Prefix      string // class name prefix from configuration
}

// Artifact is one extracted output. Payload is immutable once built.
type Artifact struct {
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

// Edit replaces [Start, End) of the original source.
type Edit struct {
	Start       uint32
	End         uint32
	Replacement string
}

// Output is what a processor contributes after evaluation.
type Output struct {
	Artifacts []Artifact
	Edits     []Edit
}

// Processor handles one tagged usage.
type Processor interface {
	// Name identifies the processor kind in warnings and logs.
	Name() string

	// ClassName is the deterministic identifier assigned to the usage.
	ClassName() string

	// EvalValue is the JS expression that stands in for the usage while
	// the module is evaluated.
	EvalValue() string

	// Build receives the settled interpolation values in argument order.
	Build(values []any) (Output, error)
}

// Constructor creates the processor for one usage.
type Constructor func(usage Usage) (Processor, error)

// Status is the outcome of a registry lookup.
type Status int

const (
	Unknown Status = iota
	Ignored
	Registered
)

type key struct {
	source   string
	imported string
}

type entry struct {
	ctor    Constructor
	ignored bool
}

// Registry maps (module specifier, imported name) pairs to processors.
type Registry struct {
	mu      sync.RWMutex
	entries map[key]entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[key]entry)}
}

// Register binds a constructor to an imported tag.
func (r *Registry) Register(source, imported string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key{source: source, imported: imported}] = entry{ctor: ctor}
}

// Ignore marks an imported tag as recognised but left untouched.
func (r *Registry) Ignore(source, imported string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key{source: source, imported: imported}] = entry{ignored: true}
}

// Lookup returns the constructor for an imported tag.
func (r *Registry) Lookup(source, imported string) (Constructor, Status) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key{source: source, imported: imported}]
	switch {
	case !ok:
		return nil, Unknown
	case e.ignored:
		return nil, Ignored
	}
	return e.ctor, Registered
}

// Sources lists every module specifier with at least one registered tag.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	out := make([]string, 0)
	for k, e := range r.entries {
		if e.ignored || seen[k.source] {
			continue
		}
		seen[k.source] = true
		out = append(out, k.source)
	}
	sort.Strings(out)
	return out
}
