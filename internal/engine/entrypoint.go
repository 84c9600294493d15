package engine

import (
	"context"
	"sync"

	"github.com/morozRed/husk/internal/parser"
)

// Entrypoint is a module together with the exports requested from it.
// A request for more exports supersedes it with a refined copy; the
// original is never mutated after creation except for that link.
type Entrypoint struct {
	Path       string
	Source     []byte
	Hash       string
	Only       parser.ExportSet
	Generation int

	mu           sync.Mutex
	supersededBy *Entrypoint
	cancel       context.CancelFunc
}

func newEntrypoint(path string, source []byte, only parser.ExportSet) *Entrypoint {
	return &Entrypoint{
		Path:   path,
		Source: source,
		Hash:   parser.HashContent(source),
		Only:   only,
	}
}

// Latest follows the supersession chain to its end.
func (e *Entrypoint) Latest() *Entrypoint {
	current := e
	for {
		current.mu.Lock()
		next := current.supersededBy
		current.mu.Unlock()
		if next == nil {
			return current
		}
		current = next
	}
}

// Superseded reports whether a refined entrypoint replaced e.
func (e *Entrypoint) Superseded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.supersededBy != nil
}

// supersede links e to a copy requesting the union of both sets and
// cancels the pipeline running for e.
func (e *Entrypoint) supersede(only parser.ExportSet) *Entrypoint {
	next := &Entrypoint{
		Path:       e.Path,
		Source:     e.Source,
		Hash:       e.Hash,
		Only:       e.Only.Union(only),
		Generation: e.Generation + 1,
	}
	e.mu.Lock()
	e.supersededBy = next
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return next
}

// attach derives the context of a pipeline run for e.
func (e *Entrypoint) attach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	return ctx, cancel
}

// entrypoints holds the latest entrypoint per module path for a session.
type entrypoints struct {
	mu     sync.Mutex
	byPath map[string]*Entrypoint
}

func newEntrypoints() *entrypoints {
	return &entrypoints{byPath: make(map[string]*Entrypoint)}
}

// request returns an entrypoint for path whose Only covers only, creating
// or superseding as needed. A nil source keeps the known source; a
// different source replaces the entrypoint. It returns nil when path is
// unknown and no source is given.
func (s *entrypoints) request(path string, source []byte, only parser.ExportSet) (ep *Entrypoint, superseded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byPath[path]
	if ok {
		current = current.Latest()
	}
	switch {
	case !ok && source == nil:
		return nil, false
	case !ok || (source != nil && current.Hash != parser.HashContent(source)):
		ep = newEntrypoint(path, source, only)
	case current.Only.Contains(only):
		return current, false
	default:
		ep = current.supersede(only)
		superseded = true
	}
	s.byPath[path] = ep
	return ep, superseded
}

func (s *entrypoints) latest(path string) (*Entrypoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.byPath[path]
	if !ok {
		return nil, false
	}
	return ep.Latest(), true
}

func (s *entrypoints) drop(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, path := range paths {
		delete(s.byPath, path)
	}
}
