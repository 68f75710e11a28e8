package engine

import (
	"context"
	"sync"

	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/research"
)

type fakeClarifier struct {
	mu          sync.Mutex
	assessments []*research.Assessment
	err         error
	queries     []string
}

func (f *fakeClarifier) Assess(_ context.Context, query string) (*research.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	i := len(f.queries) - 1
	if i >= len(f.assessments) {
		i = len(f.assessments) - 1
	}
	return f.assessments[i], nil
}

type fakeSearcher struct {
	mu     sync.Mutex
	rounds [][]model.Source
	err    error
	hints  [][]string
}

func (f *fakeSearcher) Find(_ context.Context, _ string, missing []string) ([]model.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.hints = append(f.hints, append([]string(nil), missing...))
	i := len(f.hints) - 1
	if i >= len(f.rounds) {
		return nil, nil
	}
	return append([]model.Source(nil), f.rounds[i]...), nil
}

func (f *fakeSearcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hints)
}

type fakeExtractor struct {
	mu      sync.Mutex
	records map[string]model.ProductRecord
	errs    map[string]error
	calls   map[string]int
}

func (f *fakeExtractor) Extract(_ context.Context, src model.Source, _ []string) (*model.ProductRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[src.ID]++
	if err, ok := f.errs[src.ID]; ok {
		return nil, err
	}
	if rec, ok := f.records[src.ID]; ok {
		cp := rec
		return &cp, nil
	}
	return nil, &research.ExtractError{Kind: research.KindExtractionFailed, SourceID: src.ID}
}

func specificAssessment(query string, factors ...string) *research.Assessment {
	return &research.Assessment{
		ClarifiedQuery: query,
		Category:       "crm",
		Factors:        factors,
	}
}

func ambiguousAssessment(question string) *research.Assessment {
	return &research.Assessment{Ambiguous: true, Question: question}
}
