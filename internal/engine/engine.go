// Package engine drives the analysis pipeline for each task: it sequences
// the clarification, search, extraction, and formatting stages, runs the
// bounded search/extract feedback loop, and owns the human-in-the-loop
// pause at awaiting_clarification.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/registry"
	"github.com/sells-group/procurement-cli/internal/research"
	"github.com/sells-group/procurement-cli/internal/task"
)

// ErrClarificationExhausted is the terminal failure for a query that is
// still ambiguous after one round of human clarification.
var ErrClarificationExhausted = eris.New("engine: clarification exhausted")

// Config controls per-task pipeline behavior.
type Config struct {
	// MaxRounds bounds the search/extract feedback loop.
	MaxRounds int

	// MaxConcurrent caps in-flight extractions per round.
	MaxConcurrent int

	// RoundTimeout bounds one extraction round; unresolved sources are
	// recorded as timed out. Zero means no deadline.
	RoundTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxRounds:     2,
		MaxConcurrent: 25,
		RoundTimeout:  5 * time.Minute,
	}
}

// Engine executes task pipelines. One engine serves all tasks; each task's
// run loop is an independent goroutine.
type Engine struct {
	cfg       Config
	store     *task.Store
	clarifier research.Clarifier
	searcher  research.Searcher
	extractor research.Extractor
	factors   *registry.FactorRegistry

	wg sync.WaitGroup
}

// New creates an engine with all collaborators injected.
func New(
	cfg Config,
	store *task.Store,
	clarifier research.Clarifier,
	searcher research.Searcher,
	extractor research.Extractor,
	factors *registry.FactorRegistry,
) *Engine {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultConfig().MaxRounds
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		clarifier: clarifier,
		searcher:  searcher,
		extractor: extractor,
		factors:   factors,
	}
}

// Start spawns the task's run loop in the background. The caller's request
// path returns immediately; progress is observable through the store.
func (e *Engine) Start(ctx context.Context, id string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Run(ctx, id); err != nil {
			zap.L().Error("engine: pipeline stopped",
				zap.String("task", id),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every started pipeline has returned. Used on shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Run executes the pipeline loop for one task until it parks at
// awaiting_clarification, reaches a terminal stage, or ctx is cancelled.
// Safe to call again after a resume; stages never skip ahead because every
// commit checks the stage it transitions from.
func (e *Engine) Run(ctx context.Context, id string) error {
	log := zap.L().With(zap.String("task", id))

	for {
		t, err := e.store.Get(id)
		if err != nil {
			return err
		}
		if t.Stage.Terminal() || t.Stage == model.StageAwaitingUser {
			return nil
		}

		// Shutdown leaves the record at its last committed stage.
		if err := ctx.Err(); err != nil {
			log.Warn("engine: run abandoned", zap.String("stage", string(t.Stage)))
			return err
		}

		log.Info("engine: running stage", zap.String("stage", string(t.Stage)), zap.Int("round", t.Round))

		var stepErr error
		switch t.Stage {
		case model.StageClarifying:
			stepErr = e.clarify(ctx, t)
		case model.StageSearching:
			stepErr = e.search(ctx, t)
		case model.StageExtracting:
			stepErr = e.extract(ctx, t)
		case model.StageFormatting:
			stepErr = e.format(t)
		default:
			stepErr = eris.Errorf("engine: unexpected stage %s", t.Stage)
		}

		if stepErr != nil {
			if ctx.Err() != nil {
				return stepErr
			}
			e.fail(id, stepErr)
			return stepErr
		}
	}
}

// Resume merges an out-of-band clarification answer and restarts the
// pipeline. Rejected when the task is not parked at awaiting_clarification.
func (e *Engine) Resume(ctx context.Context, id, answer string) error {
	_, err := e.store.Update(id, func(t *model.Task) error {
		if t.Stage != model.StageAwaitingUser {
			return eris.Wrapf(task.ErrInvalidState, "resume task in stage %s", t.Stage)
		}
		t.ClarificationAnswer = answer
		// An answer naming a known category selects its factor template
		// outright; free-form answers refine the query instead.
		if e.factors != nil && len(t.Factors) == 0 {
			if tmpl, ok := e.factors.Lookup(answer); ok {
				t.Factors = tmpl
			}
		}
		t.ClarificationQuestion = ""
		t.Stage = model.StageClarifying
		return nil
	})
	if err != nil {
		// A terminal record is a caller error here, same as any other
		// non-paused stage.
		if errors.Is(err, task.ErrSealed) {
			return eris.Wrap(task.ErrInvalidState, "resume terminal task")
		}
		return err
	}

	zap.L().Info("engine: task resumed", zap.String("task", id))
	e.Start(ctx, id)
	return nil
}

// transition commits a stage's result, guarding against concurrent
// movement: the record must still be at the stage the result came from.
func (e *Engine) transition(id string, from model.Stage, mutate func(*model.Task)) error {
	_, err := e.store.Update(id, func(t *model.Task) error {
		if t.Stage != from {
			return eris.Wrapf(task.ErrInvalidState, "expected stage %s, found %s", from, t.Stage)
		}
		mutate(t)
		return nil
	})
	return err
}

// fail seals the task as errored. Sealing can itself fail only if the
// record is already terminal, which is fine to ignore.
func (e *Engine) fail(id string, cause error) {
	_, err := e.store.Update(id, func(t *model.Task) error {
		t.Stage = model.StageError
		t.ErrorMessage = cause.Error()
		return nil
	})
	if err != nil {
		zap.L().Warn("engine: could not seal failed task",
			zap.String("task", id),
			zap.Error(err),
		)
		return
	}
	zap.L().Error("engine: task failed", zap.String("task", id), zap.Error(cause))
}
