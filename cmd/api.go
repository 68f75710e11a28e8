package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/engine"
	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/task"
)

type analyzeRequest struct {
	Query   string   `json:"query"`
	Factors []string `json:"comparison_factors,omitempty"`
}

type clarifyRequest struct {
	Answer string `json:"answer"`
}

type taskSummary struct {
	ID    string      `json:"id"`
	Stage model.Stage `json:"stage"`
	Query string      `json:"query"`
}

// newRouter builds the HTTP API. Pipelines started by handlers run on
// runCtx so an in-flight analysis survives the request that spawned it
// but not server shutdown.
func newRouter(runCtx context.Context, store *task.Store, eng *engine.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/analyze", func(w http.ResponseWriter, req *http.Request) {
		var body analyzeRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		t := store.Create(body.Query, body.Factors)
		eng.Start(runCtx, t.ID)

		zap.L().Info("analysis accepted",
			zap.String("task", t.ID),
			zap.String("query", body.Query),
		)
		writeJSON(w, http.StatusAccepted, map[string]string{
			"task_id": t.ID,
			"stage":   string(t.Stage),
		})
	})

	r.Get("/status/{id}", func(w http.ResponseWriter, req *http.Request) {
		t, err := store.Get(chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeJSON(w, http.StatusOK, t)
	})

	r.Post("/clarify/{id}", func(w http.ResponseWriter, req *http.Request) {
		var body clarifyRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Answer == "" {
			writeError(w, http.StatusBadRequest, "answer is required")
			return
		}

		id := chi.URLParam(req, "id")
		err := eng.Resume(runCtx, id, body.Answer)
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, map[string]string{
				"task_id": id,
				"stage":   string(model.StageClarifying),
			})
		case errors.Is(err, task.ErrNotFound):
			writeError(w, http.StatusNotFound, "task not found")
		case errors.Is(err, task.ErrInvalidState), errors.Is(err, task.ErrSealed):
			writeError(w, http.StatusConflict, "task is not awaiting clarification")
		default:
			zap.L().Error("clarify failed", zap.String("task", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	})

	r.Get("/tasks", func(w http.ResponseWriter, _ *http.Request) {
		tasks := store.List()
		out := make([]taskSummary, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, taskSummary{ID: t.ID, Stage: t.Stage, Query: t.InitialQuery})
		}
		writeJSON(w, http.StatusOK, out)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
