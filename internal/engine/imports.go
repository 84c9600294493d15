package engine

import (
	"context"
	"sort"

	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/shaker"
)

// resolvedImport is an import of reduced code mapped to a module path.
// An empty Path is a stub that evaluates to an empty module.
type resolvedImport struct {
	Specifier string
	Path      string
	Only      parser.ExportSet
}

// resolveImport maps specifier to a module path. Ignored specifiers and
// tag modules resolve to "" without consulting the resolver.
func (s *Session) resolveImport(ctx context.Context, specifier, importer string, line int) (string, error) {
	if s.stubs[specifier] || s.ignore.ShouldIgnore(specifier) {
		return "", nil
	}
	return runAction(ctx, s, actionResolve, importer, parser.ExportSet{}, specifier,
		func(ctx context.Context) (string, []string, error) {
			path, err := s.resolver.Resolve(ctx, specifier, importer)
			if err != nil {
				return "", nil, err
			}
			if path == "" {
				return "", nil, &UnresolvedImportError{Specifier: specifier, Importer: importer, Line: line}
			}
			if _, ok := s.parsers.GetParserForFile(path); !ok {
				s.logger.Debug().Str("file", importer).Str("import", path).Msg("Import has no parser, stubbing")
				return "", nil, nil
			}
			return path, []string{path}, nil
		})
}

// processImports resolves every dependency of reduced code and transforms
// a child entrypoint for it, refining entrypoints that were requested with
// fewer exports. Children are transformed, not evaluated.
func (s *Session) processImports(ctx context.Context, ep *Entrypoint, deps []shaker.Dependency) ([]resolvedImport, error) {
	params := make([]string, 0, len(deps)+1)
	params = append(params, ep.Hash)
	for _, dep := range deps {
		params = append(params, dep.Source+"="+dep.Only.Key())
	}
	return runAction(ctx, s, actionProcessImports, ep.Path, ep.Only, paramsKey(params...),
		func(ctx context.Context) ([]resolvedImport, []string, error) {
			out := make([]resolvedImport, 0, len(deps))
			paths := make([]string, 0, len(deps))
			for _, dep := range deps {
				if err := ctx.Err(); err != nil {
					return nil, nil, err
				}
				path, err := s.resolveImport(ctx, dep.Source, ep.Path, dep.Line)
				if err != nil {
					return nil, nil, err
				}
				out = append(out, resolvedImport{Specifier: dep.Source, Path: path, Only: dep.Only})
				if path == "" {
					continue
				}
				paths = append(paths, path)

				// fail before the request can supersede an entrypoint on the chain
				if err := checkCycle(ctx, actionTransform, path); err != nil {
					return nil, nil, err
				}
				child, err := s.entrypoint(path, nil, dep.Only)
				if err != nil {
					return nil, nil, err
				}
				if _, err := s.transform(ctx, child); err != nil {
					return nil, nil, err
				}
			}

			sort.Strings(paths)
			s.recordDependencies(ep.Path, paths)
			return out, paths, nil
		})
}
