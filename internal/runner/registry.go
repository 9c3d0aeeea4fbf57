package runner

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autonoc/autonoc/internal/pipeline"
)

// StageQueued is the registry stage for runs accepted but not yet
// picked up by the worker. Pipeline stages take over from INIT on.
const StageQueued = "QUEUED"

// RunState is the registry's view of one run. Result stays nil until
// the run reaches a terminal stage; artifacts live only here, never in
// the database.
type RunState struct {
	ID         uuid.UUID
	Host       string
	Port       int
	Transport  string
	Stage      string
	Result     *pipeline.Result
	EnqueuedAt time.Time
}

// Registry is the bounded in-memory home of run state and artifacts.
// When full, the oldest completed run is evicted; in-flight runs are
// never evicted.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	order    []uuid.UUID
	runs     map[uuid.UUID]*RunState
}

// NewRegistry creates a registry bounded to capacity completed runs.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = 64
	}
	return &Registry{
		capacity: capacity,
		runs:     make(map[uuid.UUID]*RunState),
	}
}

// Add registers a freshly accepted run in the QUEUED stage.
func (r *Registry) Add(state *RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state.Stage = StageQueued
	state.EnqueuedAt = time.Now().UTC()
	r.runs[state.ID] = state
	r.order = append(r.order, state.ID)
	r.evictLocked()
}

// Remove drops a run, used when the queue rejects an accepted run.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.runs, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// UpdateStage records a stage transition for an in-flight run.
func (r *Registry) UpdateStage(id uuid.UUID, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.runs[id]; ok {
		state.Stage = stage
	}
}

// Complete attaches the terminal result to a run.
func (r *Registry) Complete(id uuid.UUID, res *pipeline.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.runs[id]
	if !ok {
		return
	}
	state.Stage = string(res.Stage)
	state.Result = res
	r.evictLocked()
}

// Get returns a snapshot of one run's state. The Result pointer is
// shared; results are immutable once attached.
func (r *Registry) Get(id uuid.UUID) (RunState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.runs[id]
	if !ok {
		return RunState{}, false
	}
	return *state, true
}

// Len reports how many runs the registry currently holds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// evictLocked drops the oldest completed runs until within capacity.
// Callers hold the write lock.
func (r *Registry) evictLocked() {
	for len(r.runs) > r.capacity {
		evicted := false
		for i, id := range r.order {
			state, ok := r.runs[id]
			if !ok {
				r.order = append(r.order[:i], r.order[i+1:]...)
				evicted = true
				break
			}
			if state.Result != nil {
				delete(r.runs, id)
				r.order = append(r.order[:i], r.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}
