package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/morozRed/husk/internal/fileutil"
	"github.com/morozRed/husk/internal/state"
	"github.com/morozRed/husk/internal/watch"
	"github.com/spf13/cobra"
)

func RunWatch(cmd *cobra.Command, args []string) error {
	debounce := time.Duration(0)
	if flag := cmd.Flags().Lookup("debounce"); flag != nil {
		value, err := cmd.Flags().GetDuration("debounce")
		if err != nil {
			return err
		}
		debounce = value
	}

	b, err := newBuilder(cmd, 0, false)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := b.p.loadState()
	out := cmd.OutOrStdout()
	if err := b.rebuild(ctx, st, nil, out); err != nil {
		b.p.logger.Error().Err(err).Msg("Initial build failed")
	}

	w, err := watch.New(watch.Config{
		Root:     b.p.root,
		Patterns: watch.ExtensionPatterns(b.registry.SupportedExtensions()),
		Ignore:   b.p.ignoreRules(),
		Debounce: debounce,
		Logger:   b.p.logger.With().Str("component", "watch").Logger(),
		OnChange: func(ctx context.Context, changed []string) error {
			return b.rebuild(ctx, st, changed, out)
		},
	})
	if err != nil {
		return err
	}

	b.p.logger.Info().Str("root", b.p.root).Msg("Watching for changes")
	return w.Run(ctx)
}

// rebuild builds what changed since st. A nil changed list plans from
// file hashes alone; otherwise the session caches of the changed files
// and of every module importing them are dropped first.
func (b *builder) rebuild(ctx context.Context, st *state.State, changed []string, out io.Writer) error {
	start := time.Now()
	hashes, err := b.scan()
	if err != nil {
		return err
	}

	var plan buildPlan
	if changed == nil {
		if plan, err = b.plan(st, hashes, nil, false); err != nil {
			return err
		}
	} else {
		plan = b.planChanges(st, hashes, changed)
	}
	if len(plan.Targets) == 0 && len(plan.Deleted) == 0 {
		b.p.logger.Debug().Msg("Nothing to rebuild")
		return nil
	}

	results, failures, err := b.buildFiles(ctx, plan.Targets)
	if err != nil {
		return err
	}
	summary, err := b.commit(st, plan, results, failures)
	if err != nil {
		return err
	}
	summary.DurationMS = time.Since(start).Milliseconds()
	if err := PrintRunSummary(out, summary, false); err != nil {
		return err
	}
	return failedBuildError(failures)
}

// planChanges combines the session's import graph with the dependencies
// recorded in state to find what changed absolute paths impact.
func (b *builder) planChanges(st *state.State, hashes map[string]string, changed []string) buildPlan {
	plan := buildPlan{Mode: "rebuild", Hashes: hashes}

	impacted := make(map[string]bool)
	for _, path := range b.session.Invalidate(changed...) {
		impacted[b.p.rel(path)] = true
	}
	for _, path := range changed {
		rel := b.p.rel(path)
		if _, ok := hashes[rel]; ok {
			plan.Changed = append(plan.Changed, rel)
		} else if _, known := st.Files[rel]; known {
			plan.Deleted = append(plan.Deleted, rel)
		}
	}
	sort.Strings(plan.Changed)
	sort.Strings(plan.Deleted)

	fromState, reasons := fileutil.ImpactedWithReasons(st, plan.Changed, plan.Deleted)
	for _, rel := range fromState {
		impacted[rel] = true
	}
	plan.Impacted = fileutil.MapKeysSorted(impacted)
	plan.Reasons = reasons
	plan.Targets = fileutil.ExistingFiles(plan.Impacted, hashes)
	return plan
}
