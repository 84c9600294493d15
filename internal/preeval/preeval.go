// Package preeval prepares a module for evaluation: tagged expressions are
// replaced by their eval-time values and every interpolation is hoisted into
// a lazy top-level binding exported through a single object.
package preeval

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/processor"
)

// ExportName is the export aggregating the hoisted bindings.
const ExportName = "__huskPreval"

const bindingBase = "__husk_exp_"

// replacements sort after hoisted bindings inserted at the same offset
const replaceOrdinal = 1 << 30

// Options configures processor instantiation.
type Options struct {
	ClassNamePrefix string
	Root            string // project root; class names hash paths relative to it
}

// Usage is one tagged expression with its processor.
type Usage struct {
	Site      parser.TagSite
	Source    string
	Imported  string
	Processor processor.Processor
	Bindings  []string // hoisted binding name per argument
}

// Result is the prepared module.
type Result struct {
	Code   string
	Usages []*Usage
}

// HasUsages reports whether any tagged expression was found.
func (r *Result) HasUsages() bool { return r != nil && len(r.Usages) > 0 }

type edit struct {
	at      uint32
	end     uint32
	text    string
	ordinal int
}

// Run finds the usages registered in registry and rewrites module for
// evaluation. Modules without usages are returned unchanged.
func Run(module *parser.Module, registry *processor.Registry, opts Options) (*Result, error) {
	usages, err := findUsages(module, registry, opts)
	if err != nil {
		return nil, err
	}
	if len(usages) == 0 {
		return &Result{Code: string(module.Source)}, nil
	}

	taken := make(map[string]bool)
	counter := 0
	for _, usage := range usages {
		for range usage.Site.Args {
			name := module.FreshName(bindingBase+strconv.Itoa(counter), taken)
			counter++
			taken[name] = true
			usage.Bindings = append(usage.Bindings, name)
		}
	}

	src := module.Source
	edits := make([]edit, 0, len(usages)*2)
	hoisted := make([]string, 0, counter)
	for i, usage := range usages {
		if !nestedInAnother(usages, i) {
			edits = append(edits, edit{
				at:      usage.Site.Span.Start,
				end:     usage.Site.Span.End,
				text:    usage.Processor.EvalValue(),
				ordinal: replaceOrdinal,
			})
		}

		stmt := module.Statements[usage.Site.Stmt]
		for j, arg := range usage.Site.Args {
			expr := rewriteRange(src, arg, usages)
			edits = append(edits, edit{
				at:      stmt.Start,
				end:     stmt.Start,
				text:    fmt.Sprintf("const %s = () => (%s);\n", usage.Bindings[j], expr),
				ordinal: len(hoisted),
			})
			hoisted = append(hoisted, usage.Bindings[j])
		}
	}

	code := applyEdits(src, edits)
	object := "{}"
	if len(hoisted) > 0 {
		object = "{ " + strings.Join(hoisted, ", ") + " }"
	}
	code = strings.TrimRight(code, "\n") + "\nexport const " + ExportName + " = " + object + ";\n"
	return &Result{Code: code, Usages: usages}, nil
}

func findUsages(module *parser.Module, registry *processor.Registry, opts Options) ([]*Usage, error) {
	usages := make([]*Usage, 0)
	for _, site := range module.Tags {
		source, imported, ok := tagImport(module, site)
		if !ok {
			continue
		}
		ctor, status := registry.Lookup(source, imported)
		if status != processor.Registered {
			continue
		}
		if len(site.LocalRefs) > 0 {
			return nil, &parser.UnsafeError{
				File:   module.Path,
				Line:   site.Line,
				Reason: "interpolation references local binding " + strings.Join(site.LocalRefs, ", "),
			}
		}

		args := make([]string, 0, len(site.Args))
		for _, arg := range site.Args {
			args = append(args, string(module.Source[arg.Start:arg.End]))
		}
		p, err := ctor(processor.Usage{
			File:        module.Path,
			RelPath:     relativePath(opts.Root, module.Path),
			Index:       len(usages),
			Source:      source,
			Imported:    imported,
			Member:      site.Member,
			DisplayName: site.DisplayName,
			Form:        site.Form,
			Quasis:      site.Quasis,
			Args:        args,
			Span:        site.Span,
			Line:        site.Line,
			Prefix:      opts.ClassNamePrefix,
		})
		if err != nil {
			return nil, err
		}
		usages = append(usages, &Usage{Site: site, Source: source, Imported: imported, Processor: p})
	}
	return usages, nil
}

// tagImport maps a site's callee to the import it is bound to. Member
// callees on namespace imports resolve to the member name.
func tagImport(module *parser.Module, site parser.TagSite) (string, string, bool) {
	for _, imp := range module.Imports {
		if imp.Local != site.Callee {
			continue
		}
		if imp.Imported == "*" {
			if site.Member == "" {
				return "", "", false
			}
			return imp.Source, site.Member, true
		}
		return imp.Source, imp.Imported, true
	}
	return "", "", false
}

func nestedInAnother(usages []*Usage, i int) bool {
	span := usages[i].Site.Span
	for j, other := range usages {
		if j == i {
			continue
		}
		if other.Site.Span.Start <= span.Start && span.End <= other.Site.Span.End {
			return true
		}
	}
	return false
}

// rewriteRange returns the source of span with usages strictly inside it
// replaced by their eval-time values.
func rewriteRange(src []byte, span parser.Span, usages []*Usage) string {
	edits := make([]edit, 0)
	for _, usage := range usages {
		inner := usage.Site.Span
		if inner.Start < span.Start || inner.End > span.End {
			continue
		}
		edits = append(edits, edit{at: inner.Start - span.Start, end: inner.End - span.Start, text: usage.Processor.EvalValue()})
	}
	return applyEdits(src[span.Start:span.End], outermost(edits))
}

func outermost(edits []edit) []edit {
	out := make([]edit, 0, len(edits))
	for i, e := range edits {
		covered := false
		for j, other := range edits {
			if i != j && other.at <= e.at && e.end <= other.end && (other.at != e.at || other.end != e.end) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, e)
		}
	}
	return out
}

// applyEdits applies non-overlapping edits. Insertions at the same offset
// keep their ordinal order.
func applyEdits(src []byte, edits []edit) string {
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].at != edits[j].at {
			return edits[i].at < edits[j].at
		}
		return edits[i].ordinal < edits[j].ordinal
	})

	var b strings.Builder
	cursor := uint32(0)
	for _, e := range edits {
		if e.at < cursor {
			continue
		}
		b.Write(src[cursor:e.at])
		b.WriteString(e.text)
		cursor = e.end
	}
	b.Write(src[cursor:])
	return b.String()
}

func relativePath(root, path string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
