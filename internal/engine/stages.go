package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/fanout"
	"github.com/sells-group/procurement-cli/internal/format"
	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/research"
)

// clarify assesses the query. An ambiguous query parks the task for a
// human answer exactly once; a second ambiguous verdict is terminal.
func (e *Engine) clarify(ctx context.Context, t *model.Task) error {
	query := t.InitialQuery
	if t.ClarificationAnswer != "" {
		query = fmt.Sprintf("%s (%s)", t.InitialQuery, t.ClarificationAnswer)
	}

	a, err := e.clarifier.Assess(ctx, query)
	if err != nil {
		return eris.Wrap(err, "engine: clarify")
	}

	if a.Ambiguous {
		if t.ClarificationAsked {
			return ErrClarificationExhausted
		}
		zap.L().Info("engine: awaiting clarification",
			zap.String("task", t.ID),
			zap.String("question", a.Question),
		)
		return e.transition(t.ID, model.StageClarifying, func(t *model.Task) {
			t.ClarificationQuestion = a.Question
			t.ClarificationAsked = true
			t.Stage = model.StageAwaitingUser
		})
	}

	return e.transition(t.ID, model.StageClarifying, func(t *model.Task) {
		t.ClarifiedQuery = a.ClarifiedQuery
		if len(t.Factors) == 0 {
			t.Factors = a.Factors
		}
		t.Stage = model.StageSearching
	})
}

// search fetches candidate sources. The first round replaces the list;
// feedback rounds append only sources not already known.
func (e *Engine) search(ctx context.Context, t *model.Task) error {
	sources, err := e.searcher.Find(ctx, t.ClarifiedQuery, t.MissingInfo)
	if err != nil {
		return eris.Wrap(err, "engine: search")
	}

	zap.L().Info("engine: search complete",
		zap.String("task", t.ID),
		zap.Int("round", t.Round),
		zap.Int("sources", len(sources)),
	)

	return e.transition(t.ID, model.StageSearching, func(t *model.Task) {
		if t.Round == 0 {
			t.Sources = sources
		} else {
			for _, src := range sources {
				if t.HasSource(src.ID) {
					continue
				}
				t.Sources = append(t.Sources, src)
			}
		}
		t.Stage = model.StageExtracting
	})
}

// extract fans extraction out over the sources without a record yet, then
// commits the round's results in one update: successes merge in, missing
// factors either trigger another search round or fall through to
// formatting once the round budget is spent.
func (e *Engine) extract(ctx context.Context, t *model.Task) error {
	var items []fanout.Item[model.ProductRecord]
	for _, src := range t.Sources {
		if t.Extracted(src.ID) {
			continue
		}
		src := src
		items = append(items, fanout.Item[model.ProductRecord]{
			ID: src.ID,
			Op: func(ctx context.Context) (*model.ProductRecord, error) {
				return e.extractor.Extract(ctx, src, t.Factors)
			},
		})
	}

	outcomes := fanout.Run(ctx, fanout.Config{
		Limit:    e.cfg.MaxConcurrent,
		Timeout:  e.cfg.RoundTimeout,
		Classify: classifyExtractErr,
	}, items)

	// A cancelled parent means the round was abandoned, not completed;
	// nothing from it may be committed.
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "engine: extract round abandoned")
	}

	var missing []string
	for id, o := range outcomes {
		if o.Value != nil {
			continue
		}
		zap.L().Warn("engine: source yielded no record",
			zap.String("task", t.ID),
			zap.String("source", id),
			zap.String("kind", string(o.Failure.Kind)),
			zap.Error(o.Failure.Err),
		)
		if o.Failure.Kind == fanout.FailureMissingInfo {
			missing = append(missing, o.Failure.MissingFields...)
		}
	}
	missing = dedupeSorted(missing)

	return e.transition(t.ID, model.StageExtracting, func(t *model.Task) {
		if t.Products == nil {
			t.Products = make(map[string]model.ProductRecord, len(outcomes))
		}
		for id, o := range outcomes {
			if o.Value != nil {
				t.Products[id] = *o.Value
			}
		}
		t.MissingInfo = nil
		if len(missing) > 0 && t.Round < e.cfg.MaxRounds {
			t.MissingInfo = missing
			t.Round++
			t.Stage = model.StageSearching
			return
		}
		t.Stage = model.StageFormatting
	})
}

// format renders whatever was successfully extracted and seals the task.
func (e *Engine) format(t *model.Task) error {
	order := make([]string, 0, len(t.Sources))
	for _, src := range t.Sources {
		order = append(order, src.ID)
	}

	out, err := format.CSV(t.Products, order, t.Factors)
	if err != nil {
		return eris.Wrap(err, "engine: format")
	}

	zap.L().Info("engine: task complete",
		zap.String("task", t.ID),
		zap.Int("products", len(t.Products)),
		zap.Int("rounds", t.Round),
	)

	return e.transition(t.ID, model.StageFormatting, func(t *model.Task) {
		t.CSV = out
		t.Stage = model.StageDone
	})
}

// classifyExtractErr maps an extractor failure onto a fan-out failure so
// the round's bookkeeping stays uniform.
func classifyExtractErr(err error) fanout.Failure {
	var xe *research.ExtractError
	if errors.As(err, &xe) {
		f := fanout.Failure{Err: err, MissingFields: xe.MissingFields}
		switch xe.Kind {
		case research.KindSourceUnavailable:
			f.Kind = fanout.FailureSourceUnavailable
		case research.KindMissingInfo:
			f.Kind = fanout.FailureMissingInfo
		default:
			f.Kind = fanout.FailureExtraction
		}
		return f
	}
	return fanout.Failure{Kind: fanout.FailureExtraction, Err: err}
}

func dedupeSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
