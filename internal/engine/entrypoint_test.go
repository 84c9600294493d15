package engine

import (
	"context"
	"testing"

	"github.com/morozRed/husk/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntrypointsRequestUnknownPathWithoutSource(t *testing.T) {
	store := newEntrypoints()
	ep, superseded := store.request("/a.ts", nil, parser.NewExportSet("x"))
	assert.Nil(t, ep)
	assert.False(t, superseded)
}

func TestEntrypointsReuseCoveringEntrypoint(t *testing.T) {
	store := newEntrypoints()
	first, _ := store.request("/a.ts", []byte("export const x = 1, y = 2;"), parser.NewExportSet("x", "y"))
	require.NotNil(t, first)

	again, superseded := store.request("/a.ts", nil, parser.NewExportSet("y"))
	assert.Same(t, first, again)
	assert.False(t, superseded)
}

func TestEntrypointsSupersedeWithUnion(t *testing.T) {
	store := newEntrypoints()
	first, _ := store.request("/a.ts", []byte("export const x = 1, y = 2;"), parser.NewExportSet("x"))
	ctx, cancel := first.attach(context.Background())
	defer cancel()

	next, superseded := store.request("/a.ts", nil, parser.NewExportSet("y"))
	require.True(t, superseded)
	assert.NotSame(t, first, next)
	assert.Equal(t, []string{"x", "y"}, next.Only.Names())
	assert.Equal(t, 1, next.Generation)
	assert.Equal(t, first.Hash, next.Hash)

	assert.True(t, first.Superseded())
	assert.False(t, next.Superseded())
	assert.Same(t, next, first.Latest())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	// the superseded entrypoint keeps what it was created with
	assert.Equal(t, []string{"x"}, first.Only.Names())
}

func TestEntrypointsReplaceOnNewSource(t *testing.T) {
	store := newEntrypoints()
	first, _ := store.request("/a.ts", []byte("export const x = 1;"), parser.NewExportSet("x"))
	next, superseded := store.request("/a.ts", []byte("export const x = 2;"), parser.NewExportSet("x"))

	assert.False(t, superseded)
	assert.NotSame(t, first, next)
	assert.NotEqual(t, first.Hash, next.Hash)
	assert.Zero(t, next.Generation)
	assert.False(t, first.Superseded())
}

func TestEntrypointsDrop(t *testing.T) {
	store := newEntrypoints()
	store.request("/a.ts", []byte("export const x = 1;"), parser.NewExportSet("x"))
	_, ok := store.latest("/a.ts")
	require.True(t, ok)

	store.drop([]string{"/a.ts"})
	_, ok = store.latest("/a.ts")
	assert.False(t, ok)
}
