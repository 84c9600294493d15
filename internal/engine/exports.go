package engine

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/shaker"
)

// exportsResult is the export surface of a module. cut holds the modules
// whose names are missing because a wildcard cycle was cut there.
type exportsResult struct {
	Names []string
	cut   map[string]bool
}

func (r *exportsResult) partial() bool { return len(r.cut) > 0 }

// GetExports returns every name path exports, following wildcard
// re-exports. A wildcard cycle yields the names known so far.
func (s *Session) GetExports(ctx context.Context, path string) ([]string, error) {
	result, err := s.getExports(ctx, path)
	if err != nil {
		return nil, err
	}
	return result.Names, nil
}

func (s *Session) getExports(ctx context.Context, path string) (*exportsResult, error) {
	return runAction(ctx, s, actionGetExports, path, parser.ExportSet{}, "",
		func(ctx context.Context) (*exportsResult, []string, error) {
			source, err := s.sourceOf(path)
			if err != nil {
				return nil, nil, err
			}
			module, err := s.parse(ctx, path, source)
			if err != nil {
				return nil, nil, err
			}

			names := make(map[string]bool)
			for _, name := range module.ExportNames() {
				names[name] = true
			}
			cut := make(map[string]bool)
			deps := make([]string, 0)

			for _, re := range module.Reexports {
				if re.Exported != parser.AllExports {
					continue
				}
				line := module.Statements[re.Stmt].Line
				target, err := s.resolveImport(ctx, re.Source, path, line)
				if err != nil {
					return nil, nil, err
				}
				if target == "" {
					continue
				}
				deps = append(deps, target)

				child, err := s.getExports(ctx, target)
				var cycle *CycleError
				if errors.As(err, &cycle) {
					cut[target] = true
					s.logger.Debug().Str("file", path).Str("reexport", target).Msg("Wildcard re-export cycle, using known exports")
					continue
				}
				if err != nil {
					return nil, nil, err
				}
				for _, name := range child.Names {
					if name != "default" {
						names[name] = true
					}
				}
				for p := range child.cut {
					cut[p] = true
				}
			}

			// names cut at this module are all known here
			delete(cut, path)

			out := make([]string, 0, len(names))
			for name := range names {
				out = append(out, name)
			}
			sort.Strings(out)
			return &exportsResult{Names: out, cut: cut}, deps, nil
		})
}

// sourceOf returns the session's view of a module's source.
func (s *Session) sourceOf(path string) ([]byte, error) {
	if ep, ok := s.entrypoints.latest(path); ok {
		return ep.Source, nil
	}
	return s.readSource(path)
}

// explodeReexports rewrites every `export * from` of module into an
// explicit named re-export. It returns the module unchanged when there is
// nothing to rewrite.
func (s *Session) explodeReexports(ctx context.Context, module *parser.Module) (*parser.Module, error) {
	wildcards := make([]parser.Reexport, 0)
	for _, re := range module.Reexports {
		if re.Exported == parser.AllExports {
			wildcards = append(wildcards, re)
		}
	}
	if len(wildcards) == 0 {
		return module, nil
	}

	code, err := runAction(ctx, s, actionExplode, module.Path, parser.ExportSet{}, module.Hash,
		func(ctx context.Context) (string, []string, error) {
			// local exports shadow names arriving through a wildcard
			own := make(map[string]bool)
			for _, name := range module.ExportNames() {
				own[name] = true
			}

			var b strings.Builder
			cursor := uint32(0)
			deps := make([]string, 0, len(wildcards))
			for _, re := range wildcards {
				stmt := module.Statements[re.Stmt]
				target, err := s.resolveImport(ctx, re.Source, module.Path, stmt.Line)
				if err != nil {
					return "", nil, err
				}
				if target == "" {
					continue
				}
				deps = append(deps, target)

				exports, err := s.getExports(ctx, target)
				if err != nil {
					return "", nil, err
				}
				names := make([]string, 0, len(exports.Names))
				for _, name := range exports.Names {
					if name != "default" && !own[name] {
						names = append(names, name)
					}
				}
				b.Write(module.Source[cursor:stmt.Start])
				b.WriteString(shaker.RenderReexports(names, re.Source))
				cursor = stmt.End
			}
			b.Write(module.Source[cursor:])
			return b.String(), deps, nil
		})
	if err != nil {
		return nil, err
	}
	if code == string(module.Source) {
		return module, nil
	}
	return s.parse(ctx, module.Path, []byte(code))
}
