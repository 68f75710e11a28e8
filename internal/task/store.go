// Package task holds the in-memory registry of analysis tasks. All state
// lives for the process lifetime only; the engine is the sole writer and
// every mutation goes through the atomic Update.
package task

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/procurement-cli/internal/model"
)

// ErrNotFound is returned when no task exists for the given id.
var ErrNotFound = eris.New("task: not found")

// ErrSealed is returned when an update targets a task that already
// reached a terminal stage.
var ErrSealed = eris.New("task: record is sealed")

// ErrInvalidState is returned when an operation is not valid for the
// task's current stage (e.g. resuming a task that is not paused).
var ErrInvalidState = eris.New("task: invalid state for operation")

// Store is a concurrency-safe registry of tasks. Construct one per process
// and inject it; there is no package-level singleton.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
	now   func() time.Time
}

// NewStore creates an empty task store.
func NewStore() *Store {
	return &Store{
		tasks: make(map[string]*model.Task),
		now:   time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (s *Store) WithNow(now func() time.Time) *Store {
	s.now = now
	return s
}

// Create allocates a fresh task in the clarifying stage and returns a copy.
// Caller-supplied factors are stored verbatim (deduplicated, order kept).
func (s *Store) Create(query string, factors []string) *model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	t := &model.Task{
		ID:           uuid.NewString(),
		Stage:        model.StageClarifying,
		InitialQuery: query,
		Factors:      dedupe(factors),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.tasks[t.ID] = t
	return t.Clone()
}

// Get returns a copy of the task, or ErrNotFound.
func (s *Store) Get(id string) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, eris.Wrap(ErrNotFound, id)
	}
	return t.Clone(), nil
}

// Update applies a single state transition atomically. No other Update on
// the same id can interleave, and sealed records refuse further mutation.
// The mutator receives a copy; it is committed only when the mutator
// returns nil. Returns a copy of the updated task.
func (s *Store) Update(id string, mutate func(*model.Task) error) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, eris.Wrap(ErrNotFound, id)
	}
	if t.Stage.Terminal() {
		return nil, eris.Wrap(ErrSealed, id)
	}

	next := t.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	s.tasks[id] = next
	return next.Clone(), nil
}

// List returns copies of all tasks ordered by creation time.
func (s *Store) List() []*model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func dedupe(factors []string) []string {
	if len(factors) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(factors))
	out := make([]string, 0, len(factors))
	for _, f := range factors {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
