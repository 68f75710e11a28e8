// Package research defines the collaborator contracts the workflow engine
// drives (query clarification, source search, and structured extraction)
// together with their production implementations.
package research

import (
	"context"
	"fmt"

	"github.com/sells-group/procurement-cli/internal/model"
)

// Assessment is the clarification oracle's verdict on a query.
type Assessment struct {
	// Ambiguous means the query is too broad to research; Question holds
	// the follow-up to surface to the user.
	Ambiguous bool
	Question  string

	// Set when the query is specific enough.
	ClarifiedQuery string
	Category       string
	Factors        []string
}

// Clarifier assesses whether a product query is specific enough to
// research, and if so enriches it for search.
type Clarifier interface {
	Assess(ctx context.Context, query string) (*Assessment, error)
}

// Searcher returns candidate sources for a clarified query. The missing
// hints from a prior extraction round narrow the follow-up search.
type Searcher interface {
	Find(ctx context.Context, query string, missing []string) ([]model.Source, error)
}

// Extractor pulls the comparison factors for one candidate source.
// Failures are reported as *ExtractError.
type Extractor interface {
	Extract(ctx context.Context, src model.Source, factors []string) (*model.ProductRecord, error)
}

// FailureKind classifies an extraction failure.
type FailureKind string

const (
	// KindSourceUnavailable means the page could not be fetched.
	KindSourceUnavailable FailureKind = "source_unavailable"
	// KindExtractionFailed means the page yielded no usable record.
	KindExtractionFailed FailureKind = "extraction_failed"
	// KindMissingInfo means specific factors were absent from the page;
	// MissingFields names them so a follow-up search can target the gaps.
	KindMissingInfo FailureKind = "missing_info"
)

// ExtractError is the typed failure returned by an Extractor.
type ExtractError struct {
	Kind          FailureKind
	SourceID      string
	MissingFields []string
	Err           error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.SourceID, e.Kind, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.SourceID, e.Kind)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}
