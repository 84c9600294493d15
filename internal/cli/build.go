package cli

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/morozRed/husk/internal/engine"
	"github.com/morozRed/husk/internal/fileutil"
	"github.com/morozRed/husk/internal/languages"
	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/state"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// builder runs builds for one project. Watch mode keeps a builder, and
// with it the session caches, across rebuilds.
type builder struct {
	p           *project
	session     *engine.Session
	registry    *parser.Registry
	concurrency int
	quiet       bool
}

// buildPlan is what one build run rebuilds and why. Paths are relative
// to the project root.
type buildPlan struct {
	Mode     string
	Hashes   map[string]string
	Targets  []string
	Changed  []string
	Deleted  []string
	Impacted []string
	Reasons  map[string][]string
}

func RunBuild(cmd *cobra.Command, args []string) error {
	start := time.Now()
	force, err := OptionalBoolFlag(cmd, "force")
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}
	asJSONL, err := OptionalBoolFlag(cmd, "jsonl")
	if err != nil {
		return err
	}
	concurrency, err := OptionalIntFlag(cmd, "concurrency")
	if err != nil {
		return err
	}

	b, err := newBuilder(cmd, concurrency, asJSON || asJSONL)
	if err != nil {
		return err
	}
	st := b.p.loadState()

	hashes, err := b.scan()
	if err != nil {
		return err
	}
	plan, err := b.plan(st, hashes, args, force)
	if err != nil {
		return err
	}

	results, failures, err := b.buildFiles(commandContext(cmd), plan.Targets)
	if err != nil {
		return err
	}

	if asJSONL {
		data, err := fileutil.EncodeJSONL(results)
		if err != nil {
			return err
		}
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return err
		}
		return failedBuildError(failures)
	}

	summary, err := b.commit(st, plan, results, failures)
	if err != nil {
		return err
	}
	summary.DurationMS = time.Since(start).Milliseconds()
	if err := PrintRunSummary(cmd.OutOrStdout(), summary, asJSON); err != nil {
		return err
	}
	return failedBuildError(failures)
}

func newBuilder(cmd *cobra.Command, concurrency int, quiet bool) (*builder, error) {
	p, err := loadProject(cmd)
	if err != nil {
		return nil, err
	}
	session, err := p.newSession()
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = p.cfg.Concurrency
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &builder{
		p:           p,
		session:     session,
		registry:    newRegistry(),
		concurrency: concurrency,
		quiet:       quiet,
	}, nil
}

func (b *builder) scan() (map[string]string, error) {
	hashes, err := fileutil.ScanFileHashes(b.p.fs, b.p.root, b.registry, b.p.ignoreRules())
	if err != nil {
		return nil, fmt.Errorf("failed to scan files: %w", err)
	}
	return hashes, nil
}

// plan picks the files to build. Explicit files are always built; force
// builds everything; otherwise changed files and their dependents are.
func (b *builder) plan(st *state.State, hashes map[string]string, files []string, force bool) (buildPlan, error) {
	plan := buildPlan{Mode: "build", Hashes: hashes}

	switch {
	case len(files) > 0:
		for _, file := range files {
			rel := b.p.rel(b.p.abs(file))
			if _, ok := hashes[rel]; !ok {
				return plan, fmt.Errorf("%s is not a buildable source file", file)
			}
			plan.Changed = append(plan.Changed, rel)
		}
		plan.Changed = fileutil.DedupeStrings(plan.Changed)
		sort.Strings(plan.Changed)
		plan.Targets = plan.Changed
		plan.Impacted = plan.Changed
	case force:
		plan.Changed = fileutil.MapKeysSorted(hashes)
		plan.Deleted = st.DeletedFiles(fileutil.ToSet(plan.Changed))
		plan.Targets = plan.Changed
		plan.Impacted = plan.Changed
	default:
		plan.Changed = st.ChangedFiles(hashes)
		plan.Deleted = st.DeletedFiles(fileutil.ToSet(fileutil.MapKeysSorted(hashes)))
		plan.Impacted, plan.Reasons = fileutil.ImpactedWithReasons(st, plan.Changed, plan.Deleted)
		plan.Targets = fileutil.ExistingFiles(plan.Impacted, hashes)
	}
	return plan, nil
}

// buildFiles builds root-relative files in parallel. A file that fails is
// reported in failures and does not stop its siblings; only cancellation
// aborts the run. Results keep the order of files.
func (b *builder) buildFiles(ctx context.Context, files []string) ([]*engine.BuildResult, []BuildFailure, error) {
	built := make([]*engine.BuildResult, len(files))
	errs := make([]error, len(files))
	progress := newBuildProgressReporter("build", len(files), b.quiet)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	var done atomic.Int32
	for i, file := range files {
		g.Go(func() error {
			result, err := b.session.Build(gctx, b.p.abs(file), nil)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				b.p.logger.Error().Err(err).Str("file", file).Msg("Build failed")
				errs[i] = err
			}
			built[i] = result
			progress.Update(file, int(done.Add(1)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	progress.Done(len(files))

	results := make([]*engine.BuildResult, 0, len(files))
	failures := make([]BuildFailure, 0)
	for i, file := range files {
		if errs[i] != nil {
			failures = append(failures, BuildFailure{File: file, Error: errs[i].Error(), err: errs[i]})
			continue
		}
		results = append(results, built[i])
	}
	return results, failures, nil
}

// failedBuildError summarises failures once everything else is written.
func failedBuildError(failures []BuildFailure) error {
	switch len(failures) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("failed to build %s: %w", failures[0].File, failures[0].err)
	default:
		return fmt.Errorf("failed to build %d files, first %s: %w", len(failures), failures[0].File, failures[0].err)
	}
}

// commit writes outputs, drops outputs of deleted files and persists state.
// Failed files keep their previous state entry so the next run retries them.
func (b *builder) commit(st *state.State, plan buildPlan, results []*engine.BuildResult, failures []BuildFailure) (RunSummary, error) {
	before := make(map[string]string, len(st.OutputHashes))
	for path, hash := range st.OutputHashes {
		before[path] = hash
	}

	summary := RunSummary{
		Mode:          plan.Mode,
		RootPath:      b.p.root,
		OutputDir:     b.p.cfg.OutDir,
		Scanned:       len(plan.Hashes),
		Built:         len(results),
		Reused:        max(len(plan.Hashes)-len(results)-len(failures), 0),
		Changed:       len(plan.Changed),
		Deleted:       len(plan.Deleted),
		Impacted:      len(plan.Impacted),
		ChangedFiles:  plan.Changed,
		DeletedFiles:  plan.Deleted,
		ImpactedFiles: plan.Impacted,
		Reasons:       plan.Reasons,
		Failed:        len(failures),
		Failures:      failures,
	}

	for _, result := range results {
		rel := b.p.rel(result.Path)
		outputs, err := b.p.writeResult(result)
		if err != nil {
			return summary, err
		}
		b.dropStaleOutputs(st, rel, outputs)
		for path, hash := range outputs {
			st.SetOutputHash(path, hash)
		}

		st.SetFile(rel, state.FileState{
			Hash:         plan.Hashes[rel],
			Dependencies: fileutil.RelativeDependencies(b.p.root, result.Dependencies),
			Outputs:      fileutil.MapKeysSorted(outputs),
			Usages:       result.Usages,
			Warnings:     len(result.Warnings),
		})
		summary.Usages += result.Usages
		summary.Warnings = append(summary.Warnings, result.Warnings...)
	}
	for _, rel := range plan.Deleted {
		b.dropStaleOutputs(st, rel, nil)
		st.RemoveFile(rel)
	}

	if err := st.Save(b.p.fs, b.p.root); err != nil {
		return summary, fmt.Errorf("failed to persist state: %w", err)
	}

	stats := b.session.Stats()
	summary.CacheHits = stats.Hits
	summary.CacheMisses = stats.Misses
	summary.Rewritten = CountRewrittenOutputs(before, st.OutputHashes)
	return summary, nil
}

// dropStaleOutputs removes outputs a file produced last time but not now.
func (b *builder) dropStaleOutputs(st *state.State, rel string, current map[string]string) {
	previous, ok := st.Files[rel]
	if !ok {
		return
	}
	stale := make([]string, 0)
	for _, output := range previous.Outputs {
		if _, ok := current[output]; !ok {
			stale = append(stale, output)
			delete(st.OutputHashes, output)
		}
	}
	b.p.removeOutputs(stale)
}

func newRegistry() *parser.Registry {
	return languages.NewDefaultRegistry()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
