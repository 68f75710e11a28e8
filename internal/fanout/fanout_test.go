package fanout

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEmpty(t *testing.T) {
	out := Run[string](context.Background(), Config{Limit: 4}, nil)
	assert.Empty(t, out)
}

func TestRunAllSucceed(t *testing.T) {
	var items []Item[string]
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("s%d", i)
		items = append(items, Item[string]{
			ID: id,
			Op: func(ctx context.Context) (*string, error) {
				v := "value-" + id
				return &v, nil
			},
		})
	}

	out := Run(context.Background(), Config{Limit: 3}, items)
	require.Len(t, out, 10)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("s%d", i)
		o := out[id]
		require.NotNil(t, o.Value, id)
		assert.Nil(t, o.Failure, id)
		assert.Equal(t, "value-"+id, *o.Value)
	}
}

func TestRunPartialFailure(t *testing.T) {
	boom := eris.New("fetch failed")
	items := []Item[string]{
		{ID: "ok", Op: func(ctx context.Context) (*string, error) {
			v := "fine"
			return &v, nil
		}},
		{ID: "bad", Op: func(ctx context.Context) (*string, error) {
			return nil, boom
		}},
	}

	out := Run(context.Background(), Config{Limit: 2}, items)
	require.Len(t, out, 2)

	assert.NotNil(t, out["ok"].Value)
	require.NotNil(t, out["bad"].Failure)
	assert.Equal(t, FailureExtraction, out["bad"].Failure.Kind)
	assert.True(t, eris.Is(out["bad"].Failure.Err, boom))
}

func TestRunClassify(t *testing.T) {
	items := []Item[int]{
		{ID: "gap", Op: func(ctx context.Context) (*int, error) {
			return nil, eris.New("missing pricing")
		}},
	}

	out := Run(context.Background(), Config{
		Limit: 1,
		Classify: func(err error) Failure {
			return Failure{Kind: FailureMissingInfo, Err: err, MissingFields: []string{"pricing"}}
		},
	}, items)

	require.NotNil(t, out["gap"].Failure)
	assert.Equal(t, FailureMissingInfo, out["gap"].Failure.Kind)
	assert.Equal(t, []string{"pricing"}, out["gap"].Failure.MissingFields)
}

func TestRunCeiling(t *testing.T) {
	const limit = 5
	var inFlight, peak atomic.Int64

	var items []Item[struct{}]
	for i := 0; i < 40; i++ {
		items = append(items, Item[struct{}]{
			ID: fmt.Sprintf("s%d", i),
			Op: func(ctx context.Context) (*struct{}, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inFlight.Add(-1)
				return &struct{}{}, nil
			},
		})
	}

	out := Run(context.Background(), Config{Limit: limit}, items)
	require.Len(t, out, 40)
	assert.LessOrEqual(t, peak.Load(), int64(limit))
	assert.Positive(t, peak.Load())
}

func TestRunDeadline(t *testing.T) {
	items := []Item[string]{
		{ID: "fast", Op: func(ctx context.Context) (*string, error) {
			v := "done"
			return &v, nil
		}},
		{ID: "slow", Op: func(ctx context.Context) (*string, error) {
			select {
			case <-time.After(5 * time.Second):
				v := "too late"
				return &v, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}},
	}

	start := time.Now()
	out := Run(context.Background(), Config{Limit: 2, Timeout: 50 * time.Millisecond}, items)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, out, 2)
	assert.NotNil(t, out["fast"].Value)
	require.NotNil(t, out["slow"].Failure)
	assert.Equal(t, FailureTimedOut, out["slow"].Failure.Kind)
}

func TestRunParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []Item[string]{
		{ID: "a", Op: func(ctx context.Context) (*string, error) {
			return nil, ctx.Err()
		}},
	}

	out := Run(ctx, Config{Limit: 1}, items)
	require.Len(t, out, 1)
	require.NotNil(t, out["a"].Failure)
	assert.Equal(t, FailureTimedOut, out["a"].Failure.Kind)
}
