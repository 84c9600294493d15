// Package shaker removes the statements of a module that are not needed to
// compute a requested set of exports.
package shaker

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/morozRed/husk/internal/parser"
)

// DefaultGlobals are the identifier patterns treated as browser-only globals.
var DefaultGlobals = []string{"window", "document", "navigator", "localStorage", "sessionStorage", "location", "HTMLElement"}

// Options controls how aggressively code is removed.
type Options struct {
	SoftErrors           bool
	SideEffectRemoval    bool
	DangerousCodeRemover bool
	Globals              []string // doublestar patterns matched against free identifiers
}

// Dependency is a module the reduced code still imports from.
type Dependency struct {
	Source  string
	Only    parser.ExportSet
	Dynamic bool
	Line    int
}

// Result is the reduced module.
type Result struct {
	Code         string
	Kept         []int // indexes of kept statements
	Removed      int
	Fallback     string // reason the code was returned untouched in soft mode
	Dependencies []Dependency
}

type shake struct {
	module    *parser.Module
	only      parser.ExportSet
	opts      Options
	declarers map[string][]int
	declared  map[string]bool

	kept    map[int]bool
	needed  map[string]bool
	queue   []string
	exports map[int]map[string]bool // statement -> kept exported names of clauses and re-exports
}

// Shake reduces module to the statements needed by only.
func Shake(module *parser.Module, only parser.ExportSet, opts Options) (*Result, error) {
	s := &shake{
		module:    module,
		only:      only,
		opts:      opts,
		declarers: module.Declarers(),
		declared:  make(map[string]bool),
		kept:      make(map[int]bool),
		needed:    make(map[string]bool),
		exports:   make(map[int]map[string]bool),
	}
	for name := range s.declarers {
		s.declared[name] = true
	}
	if len(s.opts.Globals) == 0 {
		s.opts.Globals = DefaultGlobals
	}

	if only.IsEmpty() {
		return &Result{Code: "", Removed: len(module.Statements)}, nil
	}

	// a CommonJS module is kept whole, its exports are not statically known
	commonJS := module.CommonJS
	if commonJS {
		for _, stmt := range module.Statements {
			s.kept[stmt.Index] = true
		}
	} else {
		s.seed()
		s.drain()
		if opts.SideEffectRemoval {
			s.fixpoint()
		}
	}

	if stmt, unsafe := s.firstUnsafe(); unsafe {
		err := &parser.UnsafeError{File: module.Path, Line: stmt.Line, Reason: stmt.Unsafe}
		if !opts.SoftErrors {
			return nil, err
		}
		return s.whole(err.Error()), nil
	}
	if commonJS {
		return s.whole(""), nil
	}

	return s.render(), nil
}

func (s *shake) seed() {
	if s.only.Exports() {
		for _, exp := range s.module.Exports {
			if !s.only.Has(exp.Exported) {
				continue
			}
			stmt := s.module.Statements[exp.Stmt]
			if len(stmt.Bindings) > 0 {
				s.keepExport(exp.Stmt, exp.Exported)
				s.need(exp.Local)
				continue
			}
			s.keep(exp.Stmt)
		}

		missing := s.missingNames()
		for _, re := range s.module.Reexports {
			switch {
			case re.Exported == "*":
				if s.only.IsAll() || missing {
					s.keep(re.Stmt)
				}
			case s.only.Has(re.Exported):
				s.keepExport(re.Stmt, re.Exported)
			}
		}
	}

	for _, stmt := range s.module.Statements {
		switch {
		case stmt.Kind == parser.StatementType:
			s.kept[stmt.Index] = true
		case stmt.Kind == parser.StatementExpression && !stmt.SideEffect:
			// directive prologue
			s.kept[stmt.Index] = true
		case stmt.SideEffect && !s.opts.SideEffectRemoval && !s.dangerous(stmt):
			s.keep(stmt.Index)
		}
	}
}

// missingNames reports whether a requested name is not explicitly exported
// and so may come from a wildcard re-export.
func (s *shake) missingNames() bool {
	if s.only.IsAll() {
		return true
	}
	explicit := make(map[string]bool)
	for _, name := range s.module.ExportNames() {
		explicit[name] = true
	}
	for _, name := range s.only.Names() {
		if name != parser.SideEffectsOnly && name != "default" && !explicit[name] {
			return true
		}
	}
	return false
}

func (s *shake) keep(index int) {
	if s.kept[index] {
		return
	}
	s.kept[index] = true
	stmt := s.module.Statements[index]
	if stmt.Kind == parser.StatementImport {
		return
	}
	for _, ref := range stmt.References {
		s.need(ref)
	}
}

func (s *shake) keepExport(index int, exported string) {
	s.kept[index] = true
	names := s.exports[index]
	if names == nil {
		names = make(map[string]bool)
		s.exports[index] = names
	}
	names[exported] = true
}

func (s *shake) need(name string) {
	if name == "" || s.needed[name] {
		return
	}
	s.needed[name] = true
	s.queue = append(s.queue, name)
}

func (s *shake) drain() {
	for len(s.queue) > 0 {
		name := s.queue[0]
		s.queue = s.queue[1:]
		for _, index := range s.declarers[name] {
			s.keep(index)
		}
	}
}

// fixpoint keeps expression statements that touch needed bindings, since
// they may mutate them before the exports are read.
func (s *shake) fixpoint() {
	for changed := true; changed; {
		changed = false
		for _, stmt := range s.module.Statements {
			if s.kept[stmt.Index] || stmt.Kind != parser.StatementExpression || s.dangerous(stmt) {
				continue
			}
			for _, ref := range stmt.References {
				if s.needed[ref] {
					s.keep(stmt.Index)
					changed = true
					break
				}
			}
		}
		s.drain()
	}
}

// dangerous reports statements that read environment globals when the
// dangerous code remover is enabled.
func (s *shake) dangerous(stmt parser.Statement) bool {
	if !s.opts.DangerousCodeRemover || !stmt.SideEffect {
		return false
	}
	return len(s.globalRefs(stmt)) > 0
}

func (s *shake) globalRefs(stmt parser.Statement) []string {
	out := make([]string, 0)
	for _, ref := range stmt.References {
		if s.declared[ref] {
			continue
		}
		for _, pattern := range s.opts.Globals {
			if ok, _ := doublestar.Match(pattern, ref); ok {
				out = append(out, ref)
				break
			}
		}
	}
	return out
}

func (s *shake) firstUnsafe() (parser.Statement, bool) {
	for _, stmt := range s.module.Statements {
		if stmt.Unsafe == "" || strings.HasPrefix(stmt.Unsafe, parser.UnsafeCommonJS) {
			continue
		}
		if s.kept[stmt.Index] {
			return stmt, true
		}
	}
	return parser.Statement{}, false
}

// whole returns the module untouched with every dependency requested in
// full. reason is set when this is a soft-error fallback.
func (s *shake) whole(reason string) *Result {
	result := &Result{
		Code:     string(s.module.Source),
		Fallback: reason,
	}
	for _, stmt := range s.module.Statements {
		result.Kept = append(result.Kept, stmt.Index)
	}
	result.Dependencies = dependencies(s.module, func(int) bool { return true }, func(parser.Import) bool { return true }, nil)
	return result
}

func (s *shake) render() *Result {
	result := &Result{}
	parts := make([]string, 0, len(s.kept))

	for _, stmt := range s.module.Statements {
		if !s.kept[stmt.Index] {
			result.Removed++
			continue
		}
		text := s.text(stmt)
		if text == "" {
			result.Removed++
			delete(s.kept, stmt.Index)
			continue
		}
		result.Kept = append(result.Kept, stmt.Index)
		parts = append(parts, terminate(text))
	}

	result.Code = strings.Join(parts, "\n")
	result.Dependencies = dependencies(s.module, func(i int) bool { return s.kept[i] }, func(imp parser.Import) bool {
		return s.needed[imp.Local]
	}, s.exports)
	return result
}

func (s *shake) text(stmt parser.Statement) string {
	src := s.module.Source
	switch stmt.Kind {
	case parser.StatementImport:
		if len(stmt.Bindings) == 0 {
			return stmt.Text(src)
		}
		kept := make([]parser.Binding, 0, len(stmt.Bindings))
		for _, binding := range stmt.Bindings {
			if s.needed[binding.Local] {
				kept = append(kept, binding)
			}
		}
		switch {
		case len(kept) == 0:
			return ""
		case len(kept) == len(stmt.Bindings):
			return stmt.Text(src)
		}
		return renderImport(kept, stmt.SourceRaw)

	case parser.StatementExport, parser.StatementReexport:
		names, partial := s.exports[stmt.Index]
		if !partial || stmt.Wildcard {
			return stmt.Text(src)
		}
		kept := make([]parser.Binding, 0, len(stmt.Bindings))
		for _, binding := range stmt.Bindings {
			exported := binding.Remote
			if stmt.Kind == parser.StatementReexport {
				exported = binding.Local
			}
			if names[exported] {
				kept = append(kept, binding)
			}
		}
		switch {
		case len(kept) == 0:
			return ""
		case len(kept) == len(stmt.Bindings):
			return stmt.Text(src)
		}
		if stmt.Kind == parser.StatementReexport {
			return renderReexport(kept, stmt.SourceRaw)
		}
		return renderExportClause(kept)
	}
	return stmt.Text(src)
}

// dependencies lists the modules the kept statements still read from.
func dependencies(module *parser.Module, kept func(int) bool, used func(parser.Import) bool, exports map[int]map[string]bool) []Dependency {
	bySource := make(map[string]*Dependency)
	order := make([]string, 0)
	add := func(source string, names parser.ExportSet, dynamic bool, line int) {
		dep, ok := bySource[source]
		if !ok {
			dep = &Dependency{Source: source, Line: line}
			bySource[source] = dep
			order = append(order, source)
		}
		dep.Only = dep.Only.Union(names)
		dep.Dynamic = dep.Dynamic || dynamic
	}

	for _, stmt := range module.Statements {
		if !kept(stmt.Index) || stmt.Kind != parser.StatementImport || len(stmt.Bindings) > 0 {
			continue
		}
		add(unquoteSource(stmt.SourceRaw), parser.NewExportSet(parser.SideEffectsOnly), false, stmt.Line)
	}
	for _, imp := range module.Imports {
		if !kept(imp.Stmt) || !used(imp) {
			continue
		}
		names := parser.NewExportSet(imp.Imported)
		add(imp.Source, names, false, module.Statements[imp.Stmt].Line)
	}
	for _, re := range module.Reexports {
		if !kept(re.Stmt) {
			continue
		}
		if names, partial := exports[re.Stmt]; partial && re.Exported != "*" && !names[re.Exported] {
			continue
		}
		add(re.Source, parser.NewExportSet(re.Imported), false, module.Statements[re.Stmt].Line)
	}
	for _, dyn := range module.DynamicImports {
		if !kept(dyn.Stmt) {
			continue
		}
		add(dyn.Source, parser.All(), true, module.Statements[dyn.Stmt].Line)
	}

	out := make([]Dependency, 0, len(order))
	for _, source := range order {
		out = append(out, *bySource[source])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}
