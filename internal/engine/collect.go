package engine

import (
	"sort"
	"strings"

	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/preeval"
	"github.com/morozRed/husk/internal/processor"
	"github.com/morozRed/husk/internal/sandbox"
	"github.com/morozRed/husk/internal/shaker"
)

// collected is the rewritten module with the artifacts of its processors.
type collected struct {
	Code      string
	Artifacts []processor.Artifact
	Warnings  []Warning
}

// collect builds every processor of prepared from values and applies the
// resulting edits to the original source. A failing processor only loses
// its own artifacts and edits.
func (s *Session) collect(original *parser.Module, prepared *preeval.Result, values sandbox.Values) (*collected, error) {
	out := &collected{Artifacts: make([]processor.Artifact, 0)}
	edits := make([]processor.Edit, 0, len(prepared.Usages))

	for _, usage := range prepared.Usages {
		args := make([]any, len(usage.Bindings))
		for i, name := range usage.Bindings {
			args[i] = values[name]
		}
		built, err := usage.Processor.Build(args)
		if err != nil {
			buildErr := &processor.BuildError{
				File:      original.Path,
				Line:      usage.Site.Line,
				Processor: usage.Processor.Name(),
				Err:       err,
			}
			s.logger.Warn().Err(err).Str("file", original.Path).Int("line", usage.Site.Line).Str("processor", buildErr.Processor).Msg("Processor failed")
			out.Warnings = append(out.Warnings, warningFor(original.Path, buildErr))
			continue
		}
		out.Artifacts = append(out.Artifacts, built.Artifacts...)
		edits = append(edits, built.Edits...)
	}

	code := applyEdits(original.Source, edits)
	cleaned, err := s.dropUnusedImports(original, code)
	if err != nil {
		return nil, err
	}
	out.Code = cleaned
	return out, nil
}

// applyEdits applies the outermost edits in descending start order.
func applyEdits(src []byte, edits []processor.Edit) string {
	kept := make([]processor.Edit, 0, len(edits))
	for i, e := range edits {
		covered := false
		for j, other := range edits {
			if i == j {
				continue
			}
			inside := other.Start <= e.Start && e.End <= other.End
			same := other.Start == e.Start && other.End == e.End
			if inside && (!same || j < i) {
				covered = true
				break
			}
		}
		if !covered {
			kept = append(kept, e)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start > kept[j].Start })

	code := string(src)
	for _, e := range kept {
		if int(e.End) > len(code) || e.Start > e.End {
			continue
		}
		code = code[:e.Start] + e.Replacement + code[e.End:]
	}
	return code
}

// dropUnusedImports removes imported bindings that are no longer
// referenced after usages were replaced: tags, and values that were only
// read inside replaced usages. Imports unused in the original are left alone.
func (s *Session) dropUnusedImports(original *parser.Module, code string) (string, error) {
	module, err := s.parsers.Parse(original.Path, []byte(code))
	if err != nil {
		return "", err
	}

	before := references(original)
	used := references(module)

	type rewrite struct {
		start, end uint32
		text       string
	}
	rewrites := make([]rewrite, 0)
	for _, stmt := range module.Statements {
		if stmt.Kind != parser.StatementImport || len(stmt.Bindings) == 0 {
			continue
		}
		source := strings.Trim(stmt.SourceRaw, "\"'`")
		kept := make([]parser.Binding, 0, len(stmt.Bindings))
		for _, binding := range stmt.Bindings {
			if used[binding.Local] || (!before[binding.Local] && !s.isTag(source, binding.Remote)) {
				kept = append(kept, binding)
			}
		}
		switch {
		case len(kept) == len(stmt.Bindings):
			continue
		case len(kept) == 0:
			end := stmt.End
			if int(end) < len(code) && code[end] == '\n' {
				end++
			}
			rewrites = append(rewrites, rewrite{start: stmt.Start, end: end})
		default:
			rewrites = append(rewrites, rewrite{start: stmt.Start, end: stmt.End, text: shaker.RenderImport(kept, stmt.SourceRaw)})
		}
	}

	for i := len(rewrites) - 1; i >= 0; i-- {
		r := rewrites[i]
		code = code[:r.start] + r.text + code[r.end:]
	}
	return code, nil
}

// references collects the identifiers read outside import statements.
func references(module *parser.Module) map[string]bool {
	used := make(map[string]bool)
	for _, stmt := range module.Statements {
		if stmt.Kind == parser.StatementImport {
			continue
		}
		for _, ref := range stmt.References {
			used[ref] = true
		}
	}
	return used
}

// isTag reports whether an imported name is a registered tag, or a
// namespace of a module providing tags.
func (s *Session) isTag(source, imported string) bool {
	if imported == parser.AllExports {
		return s.stubs[source]
	}
	_, status := s.processors.Lookup(source, imported)
	return status == processor.Registered
}
