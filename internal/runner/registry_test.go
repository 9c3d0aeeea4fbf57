package runner

import (
	"testing"

	"github.com/google/uuid"

	"github.com/autonoc/autonoc/internal/pipeline"
)

func addCompleted(t *testing.T, r *Registry) uuid.UUID {
	t.Helper()
	id := uuid.New()
	r.Add(&RunState{ID: id, Host: "192.0.2.1", Port: 22, Transport: "ssh"})
	r.Complete(id, &pipeline.Result{RunID: id, Stage: pipeline.StageDone})
	return id
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry(8)
	id := uuid.New()

	r.Add(&RunState{ID: id, Host: "192.0.2.1", Port: 22, Transport: "ssh"})

	state, ok := r.Get(id)
	if !ok {
		t.Fatal("run missing after Add")
	}
	if state.Stage != StageQueued {
		t.Errorf("stage = %q, want %q", state.Stage, StageQueued)
	}
	if state.EnqueuedAt.IsZero() {
		t.Error("EnqueuedAt not set")
	}

	r.UpdateStage(id, string(pipeline.StageFetching))
	state, _ = r.Get(id)
	if state.Stage != string(pipeline.StageFetching) {
		t.Errorf("stage = %q, want FETCHING", state.Stage)
	}

	res := &pipeline.Result{RunID: id, Stage: pipeline.StageDone, Raw: "transcript"}
	r.Complete(id, res)
	state, _ = r.Get(id)
	if state.Stage != string(pipeline.StageDone) {
		t.Errorf("stage = %q, want DONE", state.Stage)
	}
	if state.Result != res {
		t.Error("Complete did not attach the result")
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(8)
	id := uuid.New()
	r.Add(&RunState{ID: id})

	r.Remove(id)
	if _, ok := r.Get(id); ok {
		t.Error("run still present after Remove")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistryUpdateUnknownRunIsNoop(t *testing.T) {
	r := NewRegistry(8)
	r.UpdateStage(uuid.New(), string(pipeline.StageDone))
	r.Complete(uuid.New(), &pipeline.Result{Stage: pipeline.StageDone})
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistryEvictsOldestCompleted(t *testing.T) {
	r := NewRegistry(2)

	first := addCompleted(t, r)
	second := addCompleted(t, r)
	third := addCompleted(t, r)

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if _, ok := r.Get(first); ok {
		t.Error("oldest completed run survived eviction")
	}
	if _, ok := r.Get(second); !ok {
		t.Error("second run evicted out of order")
	}
	if _, ok := r.Get(third); !ok {
		t.Error("newest run evicted")
	}
}

func TestRegistryNeverEvictsInFlight(t *testing.T) {
	r := NewRegistry(2)

	running := uuid.New()
	r.Add(&RunState{ID: running})
	r.UpdateStage(running, string(pipeline.StageFetching))

	addCompleted(t, r)
	addCompleted(t, r)

	if _, ok := r.Get(running); !ok {
		t.Error("in-flight run was evicted")
	}
}
