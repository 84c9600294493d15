package engine

import (
	"context"
	"time"

	"github.com/morozRed/husk/internal/parser"
)

// Action kinds.
const (
	actionWorkflow       = "workflow"
	actionParse          = "parse"
	actionPreeval        = "preeval"
	actionResolve        = "resolveImports"
	actionGetExports     = "getExports"
	actionExplode        = "explodeReexports"
	actionTransform      = "transform"
	actionProcessImports = "processImports"
	actionEvalFile       = "evalFile"
)

type trailKey struct{}

// trailFrom returns the chain of actions running on ctx, outermost first.
func trailFrom(ctx context.Context) []Frame {
	trail, _ := ctx.Value(trailKey{}).([]Frame)
	return trail
}

func withFrame(ctx context.Context, frame Frame) context.Context {
	trail := trailFrom(ctx)
	next := make([]Frame, len(trail), len(trail)+1)
	copy(next, trail)
	return context.WithValue(ctx, trailKey{}, append(next, frame))
}

// checkCycle fails when kind is already running for path on ctx.
func checkCycle(ctx context.Context, kind, path string) error {
	frame := Frame{Kind: kind, Path: path}
	trail := trailFrom(ctx)
	for _, f := range trail {
		if f == frame {
			cycle := append(append([]Frame{}, trail...), frame)
			return &CycleError{Trail: cycle}
		}
	}
	return nil
}

// runAction runs fn at most once per (kind, path, only, params) within a
// cache epoch. An action already on the call chain for the same kind and
// path fails with a CycleError instead of recursing.
func runAction[T any](ctx context.Context, s *Session, kind, path string, only parser.ExportSet, params string, fn func(ctx context.Context) (T, []string, error)) (T, error) {
	var zero T
	if err := checkCycle(ctx, kind, path); err != nil {
		return zero, err
	}
	ctx = withFrame(ctx, Frame{Kind: kind, Path: path})

	key := ActionKey{Kind: kind, Path: path, Only: only.Key(), Params: params}
	start := time.Now()
	inner := withFlight(ctx, key)
	value, shared, err := s.cache.Do(ctx, key, func() (any, []string, error) {
		s.logger.Debug().Str("action", kind).Str("file", path).Str("only", key.Only).Msg("Action started")
		return fn(inner)
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("action", kind).Str("file", path).Msg("Action failed")
		return zero, err
	}
	s.logger.Trace().
		Str("action", kind).
		Str("file", path).
		Bool("shared", shared).
		Dur("elapsed", time.Since(start)).
		Msg("Action finished")
	return value.(T), nil
}
