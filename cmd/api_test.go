package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procurement-cli/internal/engine"
	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/registry"
	"github.com/sells-group/procurement-cli/internal/research"
	"github.com/sells-group/procurement-cli/internal/task"
)

type stubClarifier struct {
	assessment *research.Assessment
}

func (s *stubClarifier) Assess(context.Context, string) (*research.Assessment, error) {
	return s.assessment, nil
}

type stubSearcher struct {
	sources []model.Source
}

func (s *stubSearcher) Find(context.Context, string, []string) ([]model.Source, error) {
	return s.sources, nil
}

type stubExtractor struct {
	records map[string]model.ProductRecord
}

func (s *stubExtractor) Extract(_ context.Context, src model.Source, _ []string) (*model.ProductRecord, error) {
	if rec, ok := s.records[src.ID]; ok {
		return &rec, nil
	}
	return nil, &research.ExtractError{Kind: research.KindExtractionFailed, SourceID: src.ID}
}

type apiEnv struct {
	store   *task.Store
	engine  *engine.Engine
	handler http.Handler
}

func newAPIEnv(t *testing.T, c research.Clarifier) *apiEnv {
	t.Helper()
	store := task.NewStore()
	eng := engine.New(
		engine.Config{MaxRounds: 1, MaxConcurrent: 5, RoundTimeout: time.Second},
		store,
		c,
		&stubSearcher{sources: []model.Source{{ID: "acme.example", URL: "https://acme.example"}}},
		&stubExtractor{records: map[string]model.ProductRecord{
			"acme.example": {
				SourceID:    "acme.example",
				ProductName: "Acme CRM",
				Fields:      map[string]string{"pricing": "$10/user"},
			},
		}},
		registry.Defaults(),
	)
	return &apiEnv{
		store:   store,
		engine:  eng,
		handler: newRouter(context.Background(), store, eng),
	}
}

func clearClarifier() *stubClarifier {
	return &stubClarifier{assessment: &research.Assessment{
		ClarifiedQuery: "best crm software",
		Category:       "crm",
		Factors:        []string{"pricing"},
	}}
}

func ambiguousClarifier() *stubClarifier {
	return &stubClarifier{assessment: &research.Assessment{
		Ambiguous: true,
		Question:  "Which category?",
	}}
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getPath(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t, clearClarifier())
	rec := getPath(t, env.handler, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAnalyzeRunsToCompletion(t *testing.T) {
	env := newAPIEnv(t, clearClarifier())

	rec := postJSON(t, env.handler, "/analyze", analyzeRequest{Query: "best crm software"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted["task_id"])
	assert.Equal(t, "clarifying", accepted["stage"])

	env.engine.Wait()

	status := getPath(t, env.handler, "/status/"+accepted["task_id"])
	require.Equal(t, http.StatusOK, status.Code)

	var got model.Task
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &got))
	assert.Equal(t, model.StageDone, got.Stage)
	assert.Contains(t, got.CSV, "Acme CRM")
}

func TestAnalyzeRequiresQuery(t *testing.T) {
	env := newAPIEnv(t, clearClarifier())
	rec := postJSON(t, env.handler, "/analyze", analyzeRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusUnknownTask(t *testing.T) {
	env := newAPIEnv(t, clearClarifier())
	rec := getPath(t, env.handler, "/status/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClarifyResumesPausedTask(t *testing.T) {
	clarifier := ambiguousClarifier()
	env := newAPIEnv(t, clarifier)

	rec := postJSON(t, env.handler, "/analyze", analyzeRequest{Query: "best software"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	env.engine.Wait()

	status := getPath(t, env.handler, "/status/"+accepted["task_id"])
	var paused model.Task
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &paused))
	require.Equal(t, model.StageAwaitingUser, paused.Stage)
	assert.Equal(t, "Which category?", paused.ClarificationQuestion)

	// Unpause; the second assessment is specific.
	clarifier.assessment = clearClarifier().assessment
	resumed := postJSON(t, env.handler, "/clarify/"+accepted["task_id"], clarifyRequest{Answer: "crm"})
	require.Equal(t, http.StatusAccepted, resumed.Code)

	env.engine.Wait()

	final := getPath(t, env.handler, "/status/"+accepted["task_id"])
	var done model.Task
	require.NoError(t, json.Unmarshal(final.Body.Bytes(), &done))
	assert.Equal(t, model.StageDone, done.Stage)
}

func TestClarifyRejectsNonPausedTask(t *testing.T) {
	env := newAPIEnv(t, clearClarifier())
	created := env.store.Create("query", nil)

	rec := postJSON(t, env.handler, "/clarify/"+created.ID, clarifyRequest{Answer: "crm"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClarifyUnknownTask(t *testing.T) {
	env := newAPIEnv(t, clearClarifier())
	rec := postJSON(t, env.handler, "/clarify/nope", clarifyRequest{Answer: "crm"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClarifyRequiresAnswer(t *testing.T) {
	env := newAPIEnv(t, clearClarifier())
	created := env.store.Create("query", nil)
	rec := postJSON(t, env.handler, "/clarify/"+created.ID, clarifyRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTasksListing(t *testing.T) {
	env := newAPIEnv(t, clearClarifier())
	env.store.Create("first query", nil)
	env.store.Create("second query", nil)

	rec := getPath(t, env.handler, "/tasks")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []taskSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "first query", got[0].Query)
	assert.Equal(t, "second query", got[1].Query)
}
