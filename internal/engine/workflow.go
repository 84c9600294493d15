package engine

import (
	"context"
	"errors"

	"github.com/morozRed/husk/internal/processor"
)

// maxRestarts bounds how often one build follows supersessions.
const maxRestarts = 16

var errSuperseded = errors.New("entrypoint superseded")

// BuildResult is the outcome of building one file. Artifacts is nil when
// the file has no tagged usages; Code is then the unmodified source.
type BuildResult struct {
	Path         string               `json:"path"`
	Code         string               `json:"code"`
	Artifacts    []processor.Artifact `json:"artifacts"`
	Dependencies []string             `json:"dependencies,omitempty"`
	Warnings     []Warning            `json:"warnings,omitempty"`
	Usages       int                  `json:"usages"`
}

// HasArtifacts reports whether the file had tagged usages.
func (r *BuildResult) HasArtifacts() bool {
	return r != nil && r.Artifacts != nil
}

// Build runs the workflow for path. A nil source is read from the
// session filesystem. only names extra exports the reduction must keep.
func (s *Session) Build(ctx context.Context, path string, source []byte, only ...string) (*BuildResult, error) {
	ep, err := s.entrypoint(path, source, rootOnly(only))
	if err != nil {
		return nil, err
	}

	for restarts := 0; ; restarts++ {
		result, err := runAction(ctx, s, actionWorkflow, ep.Path, ep.Only, ep.Hash,
			func(ctx context.Context) (*BuildResult, []string, error) {
				pctx, cancel := ep.attach(ctx)
				defer cancel()
				result, deps, err := s.pipeline(pctx, ep)
				if err != nil {
					return nil, nil, err
				}
				return result, append([]string{ep.Path}, deps...), nil
			})
		if err == nil {
			return result, nil
		}

		restartable := errors.Is(err, errSuperseded) || errors.Is(err, context.Canceled)
		if !restartable || ctx.Err() != nil || restarts >= maxRestarts {
			return nil, err
		}
		next := ep.Latest()
		s.logger.Debug().
			Str("file", path).
			Str("only", next.Only.Key()).
			Int("generation", next.Generation).
			Msg("Restarting workflow")
		ep = next
	}
}

// pipeline runs Transform, EvalFile, Collect and Extract for a root. It
// also returns every module the result was computed from.
func (s *Session) pipeline(ctx context.Context, ep *Entrypoint) (*BuildResult, []string, error) {
	original, prepared, err := s.prepare(ctx, ep)
	if err != nil {
		result, err := s.softFail(ep, err)
		return result, nil, err
	}
	if !prepared.HasUsages() {
		s.logger.Debug().Str("file", ep.Path).Msg("No tagged usages")
		return &BuildResult{Path: ep.Path, Code: string(ep.Source)}, nil, nil
	}

	transformed, err := s.transform(ctx, ep)
	if err != nil {
		result, err := s.softFail(ep, err)
		return result, nil, err
	}
	if ep.Superseded() {
		return nil, nil, errSuperseded
	}

	evaluated, err := s.evalFile(ctx, ep)
	if err != nil {
		result, err := s.softFail(ep, err)
		return result, nil, err
	}
	if ep.Superseded() {
		return nil, nil, errSuperseded
	}

	collected, err := s.collect(original, prepared, evaluated.Values)
	if err != nil {
		return nil, nil, err
	}

	result := &BuildResult{
		Path:      ep.Path,
		Code:      collected.Code,
		Artifacts: extract(collected.Artifacts),
		Usages:    len(prepared.Usages),
	}
	result.Warnings = append(result.Warnings, transformed.Warnings...)
	result.Warnings = append(result.Warnings, evaluated.Warnings...)
	result.Warnings = append(result.Warnings, collected.Warnings...)
	if s.opts.TrackDependencies {
		result.Dependencies = evaluated.Dependencies
	}
	s.logger.Debug().
		Str("file", ep.Path).
		Int("usages", result.Usages).
		Int("artifacts", len(result.Artifacts)).
		Int("warnings", len(result.Warnings)).
		Msg("Built")
	return result, evaluated.Dependencies, nil
}

// softFail returns the file untransformed when soft errors are enabled
// and err allows it.
func (s *Session) softFail(ep *Entrypoint, err error) (*BuildResult, error) {
	if !s.opts.Shaker.SoftErrors || !soft(err) {
		return nil, err
	}
	s.logger.Warn().Err(err).Str("file", ep.Path).Msg("Returning file untransformed")
	return &BuildResult{
		Path:     ep.Path,
		Code:     string(ep.Source),
		Warnings: []Warning{warningFor(ep.Path, err)},
	}, nil
}
