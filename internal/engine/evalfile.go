package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/morozRed/husk/internal/graph"
	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/preeval"
	"github.com/morozRed/husk/internal/sandbox"
)

// evaluation is the settled output of running a root's reduced graph.
type evaluation struct {
	Values       sandbox.Values
	Dependencies []string // every module of the program except the root
	Warnings     []Warning
}

// evalFile executes the reduced graph of ep, dependencies first, and reads
// the hoisted bindings of ep into a value cache.
func (s *Session) evalFile(ctx context.Context, ep *Entrypoint) (*evaluation, error) {
	return runAction(ctx, s, actionEvalFile, ep.Path, ep.Only, ep.Hash,
		func(ctx context.Context) (*evaluation, []string, error) {
			program, warnings, err := s.program(ctx, ep)
			if err != nil {
				return nil, nil, err
			}

			deps := make([]string, 0, len(program.Modules))
			for _, module := range program.Modules {
				if module.Path != ep.Path {
					deps = append(deps, module.Path)
				}
			}
			sort.Strings(deps)

			values, err := s.sandbox.Evaluate(ctx, program)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					return nil, nil, err
				}
				return nil, nil, &EvaluationError{Path: ep.Path, Err: err}
			}
			s.logger.Debug().Str("file", ep.Path).Int("modules", len(program.Modules)).Int("values", len(values)).Msg("Evaluated")
			return &evaluation{Values: values, Dependencies: deps, Warnings: warnings}, deps, nil
		})
}

// program collects the reduced modules reachable from root in evaluation
// order. Children are looked up at their latest entrypoint; the walk is
// repeated until no visited entrypoint was superseded during it.
func (s *Session) program(ctx context.Context, root *Entrypoint) (sandbox.Program, []Warning, error) {
	for {
		program, visited, warnings, err := s.walk(ctx, root)
		if err != nil {
			return sandbox.Program{}, nil, err
		}
		stale := false
		for _, ep := range visited {
			if ep != root && ep.Superseded() {
				stale = true
				break
			}
		}
		if !stale {
			return program, warnings, nil
		}
	}
}

func (s *Session) walk(ctx context.Context, root *Entrypoint) (sandbox.Program, []*Entrypoint, []Warning, error) {
	g := graph.NewGraph()
	g.AddNode(root.Path)
	modules := make(map[string]sandbox.Module)
	visited := make([]*Entrypoint, 0)
	warnings := make([]Warning, 0)

	queue := []*Entrypoint{root}
	for len(queue) > 0 {
		ep := queue[0]
		queue = queue[1:]
		if _, ok := modules[ep.Path]; ok {
			continue
		}
		visited = append(visited, ep)

		result, err := s.transform(ctx, ep)
		if err != nil {
			return sandbox.Program{}, nil, nil, err
		}
		warnings = append(warnings, result.Warnings...)

		requires := make(map[string]string, len(result.Imports))
		for _, imp := range result.Imports {
			requires[imp.Specifier] = imp.Path
			if imp.Path == "" {
				continue
			}
			g.AddEdge(ep.Path, imp.Path)
			child, err := s.entrypoint(imp.Path, nil, imp.Only)
			if err != nil {
				return sandbox.Program{}, nil, nil, err
			}
			queue = append(queue, child)
		}
		modules[ep.Path] = sandbox.Module{Path: ep.Path, Code: result.Reduced.Code, Requires: requires}
	}

	order, err := g.TopoOrder(root.Path)
	if err != nil {
		var cycle *graph.CycleError
		if errors.As(err, &cycle) {
			trail := make([]Frame, 0, len(cycle.Path))
			for _, path := range cycle.Path {
				trail = append(trail, Frame{Kind: actionEvalFile, Path: path})
			}
			return sandbox.Program{}, nil, nil, &CycleError{Trail: trail}
		}
		return sandbox.Program{}, nil, nil, err
	}

	program := sandbox.Program{Entry: root.Path, Export: preeval.ExportName}
	for _, path := range order {
		program.Modules = append(program.Modules, modules[path])
	}
	return program, visited, warnings, nil
}

// rootOnly is the request made for a built file: the hoisted bindings plus
// any names the caller asked for.
func rootOnly(names []string) parser.ExportSet {
	return parser.NewExportSet(append([]string{preeval.ExportName}, names...)...)
}
