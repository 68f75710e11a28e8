package model

import "time"

// Stage represents the current position of a task in the analysis pipeline.
type Stage string

const (
	StageClarifying   Stage = "clarifying"
	StageAwaitingUser Stage = "awaiting_clarification"
	StageSearching    Stage = "searching"
	StageExtracting   Stage = "extracting"
	StageFormatting   Stage = "formatting"
	StageDone         Stage = "done"
	StageError        Stage = "error"
)

// Terminal reports whether the stage is a terminal (sealed) state.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageError
}

// Source is a candidate page returned by the search provider.
type Source struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ProductRecord is the structured extraction result for one source.
type ProductRecord struct {
	SourceID    string            `json:"source_id"`
	ProductName string            `json:"product_name"`
	Fields      map[string]string `json:"fields"`
	Missing     []string          `json:"missing,omitempty"`
}

// Task is the full state of one analysis request. It is owned by the
// task.Store and mutated only through its atomic Update.
type Task struct {
	ID                    string                   `json:"id"`
	Stage                 Stage                    `json:"stage"`
	InitialQuery          string                   `json:"initial_query"`
	ClarifiedQuery        string                   `json:"clarified_query,omitempty"`
	ClarificationQuestion string                   `json:"clarification_question,omitempty"`
	ClarificationAnswer   string                   `json:"clarification_answer,omitempty"`
	ClarificationAsked    bool                     `json:"clarification_asked,omitempty"`
	Factors               []string                 `json:"comparison_factors,omitempty"`
	Sources               []Source                 `json:"search_results,omitempty"`
	Products              map[string]ProductRecord `json:"extracted_records,omitempty"`
	MissingInfo           []string                 `json:"missing_info_requests,omitempty"`
	Round                 int                      `json:"retry_round"`
	CSV                   string                   `json:"formatted_output,omitempty"`
	ErrorMessage          string                   `json:"error_message,omitempty"`
	CreatedAt             time.Time                `json:"created_at"`
	UpdatedAt             time.Time                `json:"updated_at"`
}

// Clone returns a deep copy of the task so callers never share mutable
// state with the store's canonical record.
func (t *Task) Clone() *Task {
	cp := *t
	if t.Factors != nil {
		cp.Factors = append([]string(nil), t.Factors...)
	}
	if t.Sources != nil {
		cp.Sources = append([]Source(nil), t.Sources...)
	}
	if t.MissingInfo != nil {
		cp.MissingInfo = append([]string(nil), t.MissingInfo...)
	}
	if t.Products != nil {
		cp.Products = make(map[string]ProductRecord, len(t.Products))
		for k, v := range t.Products {
			cp.Products[k] = v.clone()
		}
	}
	return &cp
}

func (r ProductRecord) clone() ProductRecord {
	cp := r
	if r.Fields != nil {
		cp.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			cp.Fields[k] = v
		}
	}
	if r.Missing != nil {
		cp.Missing = append([]string(nil), r.Missing...)
	}
	return cp
}

// Extracted reports whether the source already has a successful record.
func (t *Task) Extracted(sourceID string) bool {
	_, ok := t.Products[sourceID]
	return ok
}

// HasSource reports whether the source id is already listed in the
// task's search results.
func (t *Task) HasSource(sourceID string) bool {
	for _, s := range t.Sources {
		if s.ID == sourceID {
			return true
		}
	}
	return false
}
