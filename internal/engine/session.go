// Package engine drives the action pipeline that reduces, evaluates and
// rewrites modules containing tagged style expressions.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/morozRed/husk/internal/config"
	"github.com/morozRed/husk/internal/graph"
	"github.com/morozRed/husk/internal/ignore"
	"github.com/morozRed/husk/internal/languages"
	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/processor"
	"github.com/morozRed/husk/internal/processors"
	"github.com/morozRed/husk/internal/resolver"
	"github.com/morozRed/husk/internal/sandbox"
	"github.com/morozRed/husk/internal/shaker"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Resolver maps an import specifier to a module path. An empty path means
// nothing matched.
type Resolver interface {
	Resolve(ctx context.Context, specifier, importer string) (string, error)
}

// Sandbox executes reduced module graphs.
type Sandbox interface {
	Evaluate(ctx context.Context, program sandbox.Program) (sandbox.Values, error)
}

// Options configures a session. Zero fields get working defaults.
type Options struct {
	Fs         afero.Fs
	Parsers    *parser.Registry
	Resolver   Resolver
	Sandbox    Sandbox
	Processors *processor.Registry
	Logger     *zerolog.Logger

	Root              string // project root used for stable class names
	Shaker            shaker.Options
	IgnoreImports     []string
	ClassNamePrefix   string
	TrackDependencies bool
}

// OptionsFromConfig builds session options for a loaded configuration.
func OptionsFromConfig(cfg *config.Config, fs afero.Fs, logger zerolog.Logger) (Options, error) {
	registry, err := processors.NewRegistry(cfg.Tags)
	if err != nil {
		return Options{}, err
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return Options{
		Fs:      fs,
		Parsers: languages.NewDefaultRegistry(),
		Resolver: resolver.New(fs, resolver.Options{
			Root:       cfg.Root,
			Extensions: cfg.Extensions,
			Aliases:    cfg.Aliases,
		}),
		Sandbox:    sandbox.New(logger.With().Str("component", "sandbox").Logger()),
		Processors: registry,
		Logger:     &logger,
		Shaker: shaker.Options{
			SoftErrors:           cfg.Features.SoftErrors,
			SideEffectRemoval:    cfg.Features.SideEffectRemoval,
			DangerousCodeRemover: cfg.Features.DangerousCodeRemover,
			Globals:              cfg.Globals,
		},
		Root:              cfg.Root,
		IgnoreImports:     cfg.IgnoreImports,
		ClassNamePrefix:   cfg.ClassNamePrefix,
		TrackDependencies: cfg.TrackDependencies,
	}, nil
}

// Session owns the caches of one build session. It is safe for
// concurrent use; independent roots may be built in parallel.
type Session struct {
	fs         afero.Fs
	parsers    *parser.Registry
	resolver   Resolver
	sandbox    Sandbox
	processors *processor.Registry
	ignore     *ignore.Specifiers
	stubs      map[string]bool
	opts       Options
	logger     zerolog.Logger

	cache       *ActionsCache
	entrypoints *entrypoints

	graphMu sync.Mutex
	graph   *graph.Graph
}

// NewSession creates a session.
func NewSession(opts Options) *Session {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Parsers == nil {
		opts.Parsers = languages.NewDefaultRegistry()
	}
	if opts.Resolver == nil {
		opts.Resolver = resolver.New(opts.Fs, resolver.Options{})
	}
	if opts.Sandbox == nil {
		opts.Sandbox = sandbox.New(logger)
	}
	if opts.Processors == nil {
		opts.Processors = processor.NewRegistry()
	}

	stubs := make(map[string]bool)
	for _, source := range opts.Processors.Sources() {
		stubs[source] = true
	}

	return &Session{
		fs:          opts.Fs,
		parsers:     opts.Parsers,
		resolver:    opts.Resolver,
		sandbox:     opts.Sandbox,
		processors:  opts.Processors,
		ignore:      ignore.NewSpecifiers(opts.IgnoreImports),
		stubs:       stubs,
		opts:        opts,
		logger:      logger.With().Str("component", "engine").Logger(),
		cache:       NewActionsCache(),
		entrypoints: newEntrypoints(),
		graph:       graph.NewGraph(),
	}
}

// Stats exposes the action cache counters.
func (s *Session) Stats() CacheStats {
	return s.cache.Stats()
}

// Invalidate drops cached work for the given files and every module that
// transitively depends on them, through imports or wildcard re-exports.
// Files that no longer exist leave the module graph. It returns the
// impacted paths.
func (s *Session) Invalidate(paths ...string) []string {
	impacted := s.Dependents(paths...)
	dropped := 0
	for {
		n, touched := s.cache.invalidate(impacted)
		dropped += n
		if len(touched) == len(impacted) {
			break
		}
		impacted = s.Dependents(touched...)
	}
	s.entrypoints.drop(impacted)

	s.graphMu.Lock()
	for _, path := range paths {
		if exists, _ := afero.Exists(s.fs, path); !exists {
			s.graph.RemoveNode(path)
		}
	}
	s.graphMu.Unlock()

	s.logger.Debug().
		Strs("files", paths).
		Int("impacted", len(impacted)).
		Int("records", dropped).
		Msg("Cache invalidated")
	return impacted
}

// Dependents returns the known modules that transitively import paths.
func (s *Session) Dependents(paths ...string) []string {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	return s.graph.Dependents(paths...)
}

func (s *Session) recordDependencies(path string, deps []string) {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	s.graph.SetDependencies(path, deps)
}

// parse analyses source for path. Parses are shared by content hash.
func (s *Session) parse(ctx context.Context, path string, source []byte) (*parser.Module, error) {
	return runAction(ctx, s, actionParse, path, parser.ExportSet{}, parser.HashContent(source),
		func(ctx context.Context) (*parser.Module, []string, error) {
			module, err := s.parsers.Parse(path, source)
			if err != nil {
				return nil, nil, err
			}
			return module, nil, nil
		})
}

func (s *Session) readSource(path string) ([]byte, error) {
	source, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return source, nil
}

// entrypoint returns the entrypoint for path covering only, reading the
// file when the session has not seen it.
func (s *Session) entrypoint(path string, source []byte, only parser.ExportSet) (*Entrypoint, error) {
	ep, superseded := s.entrypoints.request(path, source, only)
	if ep == nil {
		read, err := s.readSource(path)
		if err != nil {
			return nil, err
		}
		ep, superseded = s.entrypoints.request(path, read, only)
	}
	if superseded {
		s.logger.Debug().
			Str("file", path).
			Str("only", ep.Only.Key()).
			Int("generation", ep.Generation).
			Msg("Entrypoint superseded")
	}
	return ep, nil
}
