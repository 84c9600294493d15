package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/morozRed/husk/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionsCacheRunsOncePerKey(t *testing.T) {
	c := NewActionsCache()
	key := ActionKey{Kind: actionTransform, Path: "/a.ts", Only: "x"}

	var runs atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, _, err := c.Do(context.Background(), key, func() (any, []string, error) {
				runs.Add(1)
				<-release
				return "reduced", nil, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "reduced", value)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	value, hit, err := c.Do(context.Background(), key, func() (any, []string, error) {
		t.Fatal("cached action ran again")
		return nil, nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "reduced", value)
}

func TestActionsCacheDoesNotStoreFailures(t *testing.T) {
	c := NewActionsCache()
	key := ActionKey{Kind: actionEvalFile, Path: "/a.ts"}
	boom := errors.New("boom")

	_, _, err := c.Do(context.Background(), key, func() (any, []string, error) { return nil, nil, boom })
	require.ErrorIs(t, err, boom)

	value, _, err := c.Do(context.Background(), key, func() (any, []string, error) { return 42, nil, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestActionsCacheInvalidateMatchesPathAndDependencies(t *testing.T) {
	c := NewActionsCache()
	own := ActionKey{Kind: actionTransform, Path: "/get-color.ts"}
	dependent := ActionKey{Kind: actionEvalFile, Path: "/button.ts"}
	unrelated := ActionKey{Kind: actionTransform, Path: "/other.ts"}

	c.Store(own, 1, nil)
	c.Store(dependent, 2, []string{"/get-color.ts"})
	c.Store(unrelated, 3, []string{"/palette.ts"})

	assert.Equal(t, 2, c.Invalidate([]string{"/get-color.ts"}))

	_, ok := c.Get(own)
	assert.False(t, ok)
	_, ok = c.Get(dependent)
	assert.False(t, ok)
	_, ok = c.Get(unrelated)
	assert.True(t, ok)
}

func TestActionsCacheSkipsResultsOverlappingInvalidation(t *testing.T) {
	c := NewActionsCache()
	key := ActionKey{Kind: actionTransform, Path: "/a.ts"}

	_, _, err := c.Do(context.Background(), key, func() (any, []string, error) {
		c.Invalidate([]string{"/a.ts"})
		return "stale", nil, nil
	})
	require.NoError(t, err)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestActionsCacheSkipsPartialResults(t *testing.T) {
	c := NewActionsCache()
	key := ActionKey{Kind: actionGetExports, Path: "/a.ts"}

	_, _, err := c.Do(context.Background(), key, func() (any, []string, error) {
		return &exportsResult{Names: []string{"x"}, cut: map[string]bool{"/b.ts": true}}, nil, nil
	})
	require.NoError(t, err)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestActionsCacheHonoursCancellation(t *testing.T) {
	c := NewActionsCache()
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, _, err := c.Do(ctx, ActionKey{Kind: actionEvalFile, Path: "/slow.ts"}, func() (any, []string, error) {
		<-release
		return nil, nil, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestActionsCacheRefusesWaitLoop(t *testing.T) {
	c := NewActionsCache()
	a := ActionKey{Kind: actionTransform, Path: "/a.ts", Only: "x"}
	b := ActionKey{Kind: actionTransform, Path: "/b.ts", Only: "y"}

	_, _, err := c.Do(withFlight(context.Background(), a), b, func() (any, []string, error) {
		_, _, err := c.Do(withFlight(context.Background(), b), a, func() (any, []string, error) {
			t.Fatal("looping action ran")
			return nil, nil, nil
		})
		return nil, nil, err
	})
	require.ErrorIs(t, err, ErrCyclicDependency)
	assert.Empty(t, c.waits)
}

func TestRunActionRejectsReentry(t *testing.T) {
	s := NewSession(Options{})
	ctx := context.Background()

	_, err := runAction(ctx, s, actionGetExports, "/a.ts", parser.ExportSet{}, "",
		func(ctx context.Context) (string, []string, error) {
			_, err := runAction(ctx, s, actionGetExports, "/b.ts", parser.ExportSet{}, "",
				func(ctx context.Context) (string, []string, error) {
					_, err := runAction(ctx, s, actionGetExports, "/a.ts", parser.ExportSet{}, "other",
						func(ctx context.Context) (string, []string, error) {
							t.Fatal("re-entered action ran")
							return "", nil, nil
						})
					return "", nil, err
				})
			return "", nil, err
		})

	require.ErrorIs(t, err, ErrCyclicDependency)
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []Frame{
		{Kind: actionGetExports, Path: "/a.ts"},
		{Kind: actionGetExports, Path: "/b.ts"},
		{Kind: actionGetExports, Path: "/a.ts"},
	}, cycle.Trail)
	assert.Contains(t, err.Error(), "getExports(/a.ts) -> getExports(/b.ts) -> getExports(/a.ts)")
}

func TestParamsKeyIsStable(t *testing.T) {
	assert.Equal(t, paramsKey("a", "b"), paramsKey("a", "b"))
	assert.NotEqual(t, paramsKey("a", "b"), paramsKey("ab"))
}
