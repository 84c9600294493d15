package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/morozRed/husk/internal/processor"
	"github.com/morozRed/husk/internal/processors/css"
	"github.com/morozRed/husk/internal/resolver"
	"github.com/morozRed/husk/internal/sandbox"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const root = "/project"

func src(name string) string {
	return filepath.Join(root, "src", name)
}

// countingSandbox records every program it evaluates.
type countingSandbox struct {
	inner Sandbox

	mu       sync.Mutex
	calls    int
	programs []sandbox.Program
	values   []sandbox.Values
}

func (c *countingSandbox) Evaluate(ctx context.Context, program sandbox.Program) (sandbox.Values, error) {
	c.mu.Lock()
	c.calls++
	c.programs = append(c.programs, program)
	c.mu.Unlock()

	values, err := c.inner.Evaluate(ctx, program)

	c.mu.Lock()
	c.values = append(c.values, values)
	c.mu.Unlock()
	return values, err
}

func (c *countingSandbox) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *countingSandbox) LastProgram() sandbox.Program {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.programs[len(c.programs)-1]
}

func (c *countingSandbox) LastValues() sandbox.Values {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[len(c.values)-1]
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, src(name), []byte(content), 0o644))
	}
}

func newTestSession(t *testing.T, files map[string]string, mutate func(*Options)) (*Session, *countingSandbox, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, files)

	registry := processor.NewRegistry()
	css.Register(registry, "husk", "css")

	counter := &countingSandbox{inner: sandbox.New(zerolog.Nop())}
	opts := Options{
		Fs:                fs,
		Resolver:          resolver.New(fs, resolver.Options{Root: root}),
		Sandbox:           counter,
		Processors:        registry,
		TrackDependencies: true,
	}
	opts.Shaker.DangerousCodeRemover = true
	if mutate != nil {
		mutate(&opts)
	}
	return NewSession(opts), counter, fs
}
