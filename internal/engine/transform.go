package engine

import (
	"context"
	"errors"

	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/preeval"
	"github.com/morozRed/husk/internal/shaker"
)

// transformResult is an entrypoint reduced for its requested exports.
type transformResult struct {
	Original *parser.Module  // module as read
	Prepared *preeval.Result // tagged expressions replaced and hoisted
	Reduced  *shaker.Result
	Imports  []resolvedImport
	Warnings []Warning
}

// Reduction is the public view of a transformed entrypoint.
type Reduction struct {
	Path         string   `json:"path"`
	Only         []string `json:"only"`
	Code         string   `json:"code"`
	Kept         int      `json:"kept"`
	Removed      int      `json:"removed"`
	Fallback     string   `json:"fallback,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Transform reduces path to the code needed for only. An empty only keeps
// nothing; "*" keeps every export.
func (s *Session) Transform(ctx context.Context, path string, only []string) (*Reduction, error) {
	ep, err := s.entrypoint(path, nil, parser.NewExportSet(only...))
	if err != nil {
		return nil, err
	}
	result, err := s.transform(ctx, ep)
	if err != nil {
		return nil, err
	}
	deps := make([]string, 0, len(result.Imports))
	for _, imp := range result.Imports {
		if imp.Path != "" {
			deps = append(deps, imp.Path)
		}
	}
	return &Reduction{
		Path:         path,
		Only:         ep.Only.Names(),
		Code:         result.Reduced.Code,
		Kept:         len(result.Reduced.Kept),
		Removed:      result.Reduced.Removed,
		Fallback:     result.Reduced.Fallback,
		Dependencies: deps,
	}, nil
}

// transform prepares, explodes and shakes ep, then transforms the children
// its reduced code still imports.
func (s *Session) transform(ctx context.Context, ep *Entrypoint) (*transformResult, error) {
	return runAction(ctx, s, actionTransform, ep.Path, ep.Only, ep.Hash,
		func(ctx context.Context) (*transformResult, []string, error) {
			result := &transformResult{}
			original, prepared, err := s.prepare(ctx, ep)
			if err != nil {
				if !errors.Is(err, ErrUnsafeReduction) || isRoot(ep) {
					return nil, nil, err
				}
				// a dependency keeps tags it cannot hoist; they only fail if evaluated
				s.logger.Debug().Err(err).Str("file", ep.Path).Msg("Tags left in place")
				if original, err = s.parse(ctx, ep.Path, ep.Source); err != nil {
					return nil, nil, err
				}
				prepared = &preeval.Result{Code: string(ep.Source)}
			}
			result.Original = original
			result.Prepared = prepared

			module := original
			if prepared.HasUsages() {
				if module, err = s.parse(ctx, ep.Path, []byte(prepared.Code)); err != nil {
					return nil, nil, err
				}
			}
			if module, err = s.explodeReexports(ctx, module); err != nil {
				return nil, nil, err
			}

			reduced, err := shaker.Shake(module, ep.Only, s.opts.Shaker)
			if err != nil {
				return nil, nil, err
			}
			if reduced.Fallback != "" {
				s.logger.Warn().Str("file", ep.Path).Str("reason", reduced.Fallback).Msg("Reduction skipped, evaluating module as written")
				result.Warnings = append(result.Warnings, Warning{File: ep.Path, Message: reduced.Fallback})
			}
			result.Reduced = reduced

			imports, err := s.processImports(ctx, ep, reduced.Dependencies)
			if err != nil {
				return nil, nil, err
			}
			result.Imports = imports

			deps := make([]string, 0, len(imports))
			for _, imp := range imports {
				if imp.Path != "" {
					deps = append(deps, imp.Path)
				}
			}
			for _, re := range module.Reexports {
				if target, ok := s.knownResolution(re.Source, ep.Path); ok {
					deps = append(deps, target)
				}
			}
			return result, deps, nil
		})
}

// isRoot reports entrypoints requested by a build rather than an importer.
func isRoot(ep *Entrypoint) bool {
	return !ep.Only.IsAll() && ep.Only.Has(preeval.ExportName)
}

type prepared struct {
	module *parser.Module
	result *preeval.Result
}

// prepare parses ep and runs the preeval pass over it.
func (s *Session) prepare(ctx context.Context, ep *Entrypoint) (*parser.Module, *preeval.Result, error) {
	out, err := runAction(ctx, s, actionPreeval, ep.Path, parser.ExportSet{}, ep.Hash,
		func(ctx context.Context) (*prepared, []string, error) {
			module, err := s.parse(ctx, ep.Path, ep.Source)
			if err != nil {
				return nil, nil, err
			}
			result, err := preeval.Run(module, s.processors, preeval.Options{ClassNamePrefix: s.opts.ClassNamePrefix, Root: s.opts.Root})
			if err != nil {
				return nil, nil, err
			}
			return &prepared{module: module, result: result}, nil, nil
		})
	if err != nil {
		return nil, nil, err
	}
	return out.module, out.result, nil
}

// knownResolution returns a cached resolution without resolving.
func (s *Session) knownResolution(specifier, importer string) (string, bool) {
	value, ok := s.cache.Get(ActionKey{Kind: actionResolve, Path: importer, Params: specifier})
	if !ok {
		return "", false
	}
	path, _ := value.(string)
	return path, path != ""
}
