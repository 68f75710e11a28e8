// Package fanout executes independent work items concurrently under a
// fixed ceiling, recording exactly one outcome per item.
package fanout

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FailureKind classifies a per-item failure.
type FailureKind string

const (
	FailureSourceUnavailable FailureKind = "source_unavailable"
	FailureExtraction        FailureKind = "extraction_failed"
	FailureMissingInfo       FailureKind = "missing_info"
	FailureTimedOut          FailureKind = "timed_out"
)

// Failure describes why a single item did not produce a result.
type Failure struct {
	Kind          FailureKind
	Err           error
	MissingFields []string
}

// Outcome holds either a value or a failure for one item, never both.
type Outcome[T any] struct {
	Value   *T
	Failure *Failure
}

// Item pairs an identity with the operation that resolves it.
type Item[T any] struct {
	ID string
	Op func(ctx context.Context) (*T, error)
}

// Config controls a single fan-out run.
type Config struct {
	// Limit is the max number of operations in flight. Defaults to 25.
	Limit int

	// Timeout bounds the whole run; items unresolved at the deadline are
	// recorded as timed_out. Zero means no deadline.
	Timeout time.Duration

	// Classify maps an operation error to a Failure. When nil, every
	// error becomes an extraction_failed failure.
	Classify func(error) Failure
}

// Run executes the items with at most cfg.Limit concurrently in flight and
// returns one outcome per item id, regardless of completion order. One
// item's failure never aborts the others. If the parent context is
// cancelled the remaining items are abandoned and the partial map is
// returned; the caller must not commit results in that case.
func Run[T any](ctx context.Context, cfg Config, items []Item[T]) map[string]Outcome[T] {
	outcomes := make(map[string]Outcome[T], len(items))
	if len(items) == 0 {
		return outcomes
	}

	limit := cfg.Limit
	if limit <= 0 {
		limit = 25
	}
	classify := cfg.Classify
	if classify == nil {
		classify = func(err error) Failure {
			return Failure{Kind: FailureExtraction, Err: err}
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var mu sync.Mutex
	record := func(id string, o Outcome[T]) {
		mu.Lock()
		outcomes[id] = o
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := runCtx.Err(); err != nil {
				record(item.ID, timedOut[T](err))
				return nil
			}

			value, err := item.Op(runCtx)
			switch {
			case err == nil:
				record(item.ID, Outcome[T]{Value: value})
			case errors.Is(err, context.DeadlineExceeded) || runCtx.Err() != nil:
				record(item.ID, timedOut[T](err))
			default:
				f := classify(err)
				record(item.ID, Outcome[T]{Failure: &f})
			}
			return nil
		})
	}

	_ = g.Wait()

	// Every item resolves exactly once; anything still missing was
	// abandoned at the deadline.
	for _, item := range items {
		if _, ok := outcomes[item.ID]; !ok {
			record(item.ID, timedOut[T](context.DeadlineExceeded))
		}
	}

	if runCtx.Err() != nil {
		zap.L().Debug("fanout: run ended early",
			zap.Int("items", len(items)),
			zap.Error(runCtx.Err()),
		)
	}

	return outcomes
}

func timedOut[T any](err error) Outcome[T] {
	return Outcome[T]{Failure: &Failure{Kind: FailureTimedOut, Err: err}}
}
