package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/autonoc/autonoc/internal/analysis"
	"github.com/autonoc/autonoc/internal/device"
	"github.com/autonoc/autonoc/internal/events"
	"github.com/autonoc/autonoc/internal/pipeline"
	"github.com/autonoc/autonoc/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testTarget = device.Target{Transport: device.TransportSSH, Host: "192.0.2.10", Port: 22}

// stubExecutor plays the pipeline: it emits a fixed stage sequence and
// returns a canned result.
type stubExecutor struct {
	mu      sync.Mutex
	stages  []pipeline.Stage
	result  func(req pipeline.Request) *pipeline.Result
	ran     []uuid.UUID
	started chan uuid.UUID
	block   chan struct{}
}

func (e *stubExecutor) Run(ctx context.Context, req pipeline.Request, observe pipeline.Observer) *pipeline.Result {
	e.mu.Lock()
	e.ran = append(e.ran, req.RunID)
	e.mu.Unlock()

	if e.started != nil {
		e.started <- req.RunID
	}
	if e.block != nil {
		<-e.block
	}

	for _, st := range e.stages {
		if observe != nil {
			observe(pipeline.StageEvent{RunID: req.RunID, Stage: st, At: time.Now().UTC()})
		}
	}
	return e.result(req)
}

func (e *stubExecutor) runCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ran)
}

func doneResult(req pipeline.Request) *pipeline.Result {
	return &pipeline.Result{
		RunID:         req.RunID,
		Target:        req.Target,
		Stage:         pipeline.StageDone,
		Raw:           "raw transcript",
		Sanitized:     "sanitized transcript",
		Report:        &analysis.Report{Verdict: analysis.VerdictNormal, Narrative: "all good"},
		CommandsTotal: 4,
		CommandsOK:    4,
		StartedAt:     time.Now().UTC(),
		FinishedAt:    time.Now().UTC(),
	}
}

// recordingQuerier captures InsertRun calls; the rest of the Querier
// surface is unused by the runner.
type recordingQuerier struct {
	mu      sync.Mutex
	records []*store.RunRecord
	err     error
}

func (q *recordingQuerier) InsertRun(_ context.Context, rec *store.RunRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, rec)
	return q.err
}

func (q *recordingQuerier) GetRun(context.Context, uuid.UUID) (*store.RunRecord, error) {
	return nil, store.ErrNotFound
}

func (q *recordingQuerier) ListRuns(context.Context, int) ([]*store.RunRecord, error) {
	return nil, nil
}

func (q *recordingQuerier) CreateProfile(context.Context, *store.Profile) error { return nil }

func (q *recordingQuerier) GetProfile(context.Context, uuid.UUID) (*store.Profile, error) {
	return nil, store.ErrNotFound
}

func (q *recordingQuerier) ListProfiles(context.Context) ([]*store.Profile, error) { return nil, nil }

func (q *recordingQuerier) DeleteProfile(context.Context, uuid.UUID) error { return nil }

func (q *recordingQuerier) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

func (q *recordingQuerier) last() *store.RunRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.records) == 0 {
		return nil
	}
	return q.records[len(q.records)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEnqueueAssignsRunID(t *testing.T) {
	exec := &stubExecutor{result: doneResult}
	r := New(Config{QueueCapacity: 2}, exec, nil, nil, discardLogger())

	id, err := r.Enqueue(pipeline.Request{Target: testTarget})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("Enqueue() returned nil run ID")
	}

	state, ok := r.Registry().Get(id)
	if !ok {
		t.Fatal("run missing from registry after Enqueue")
	}
	if state.Stage != StageQueued {
		t.Errorf("stage = %q, want %q", state.Stage, StageQueued)
	}
	if state.Host != testTarget.Host {
		t.Errorf("host = %q, want %q", state.Host, testTarget.Host)
	}
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	exec := &stubExecutor{result: doneResult}
	r := New(Config{QueueCapacity: 1}, exec, nil, nil, discardLogger())

	if _, err := r.Enqueue(pipeline.Request{Target: testTarget}); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}

	id, err := r.Enqueue(pipeline.Request{Target: testTarget})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Enqueue() error = %v, want ErrQueueFull", err)
	}
	if id != uuid.Nil {
		t.Errorf("rejected Enqueue() returned ID %s, want nil", id)
	}
	if got := r.Registry().Len(); got != 1 {
		t.Errorf("registry holds %d runs after rejection, want 1", got)
	}
}

func TestRunExecutesAndRecords(t *testing.T) {
	exec := &stubExecutor{
		stages: []pipeline.Stage{
			pipeline.StageInit, pipeline.StageConnecting, pipeline.StageFetching,
			pipeline.StageSanitizing, pipeline.StageAnalyzing, pipeline.StageDone,
		},
		result: doneResult,
	}
	querier := &recordingQuerier{}
	hub := events.NewChannels(events.Config{StageBufferSize: 32}, discardLogger())

	r := New(Config{QueueCapacity: 4}, exec, hub, querier, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v", err)
		}
	}()

	id, err := r.Enqueue(pipeline.Request{Target: testTarget})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	waitFor(t, "run completion", func() bool {
		state, ok := r.Registry().Get(id)
		return ok && state.Result != nil
	})

	state, _ := r.Registry().Get(id)
	if state.Stage != string(pipeline.StageDone) {
		t.Errorf("terminal stage = %q, want %q", state.Stage, pipeline.StageDone)
	}
	if state.Result.Raw != "raw transcript" {
		t.Errorf("registry lost the raw transcript: %q", state.Result.Raw)
	}

	waitFor(t, "run record", func() bool { return querier.count() == 1 })
	rec := querier.last()
	if rec.ID != id {
		t.Errorf("record ID = %s, want %s", rec.ID, id)
	}
	if rec.Verdict != string(analysis.VerdictNormal) {
		t.Errorf("record verdict = %q, want NORMAL", rec.Verdict)
	}
	if rec.CommandsTotal != 4 || rec.CommandsOK != 4 {
		t.Errorf("record counts = %d/%d, want 4/4", rec.CommandsOK, rec.CommandsTotal)
	}

	// Stage events reached the hub, completion included.
	var stages []pipeline.Stage
drain:
	for {
		select {
		case ev := <-hub.Stages:
			stages = append(stages, ev.Stage)
		default:
			break drain
		}
	}
	if len(stages) != 6 {
		t.Errorf("published %d stage events, want 6", len(stages))
	}

	select {
	case c := <-hub.Completions:
		if c.RunID != id || c.Stage != string(pipeline.StageDone) {
			t.Errorf("completion = %+v", c)
		}
		if c.Verdict != string(analysis.VerdictNormal) {
			t.Errorf("completion verdict = %q, want NORMAL", c.Verdict)
		}
	default:
		t.Error("no completion event published")
	}
}

func TestRunSerializesRuns(t *testing.T) {
	exec := &stubExecutor{
		result:  doneResult,
		started: make(chan uuid.UUID, 2),
		block:   make(chan struct{}),
	}
	r := New(Config{QueueCapacity: 4}, exec, nil, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	first, err := r.Enqueue(pipeline.Request{Target: testTarget})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := r.Enqueue(pipeline.Request{Target: testTarget}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	got := <-exec.started
	if got != first {
		t.Errorf("first executed run = %s, want %s", got, first)
	}

	// The second run must not start while the first is blocked.
	time.Sleep(30 * time.Millisecond)
	if n := exec.runCount(); n != 1 {
		t.Fatalf("%d runs started while one was in flight", n)
	}

	close(exec.block)
	<-exec.started
	waitFor(t, "both runs finishing", func() bool { return exec.runCount() == 2 })
}

func TestRunRecordsFailure(t *testing.T) {
	wantErr := &device.ConnectionError{Target: testTarget.Addr(), Err: errors.New("connection refused")}
	exec := &stubExecutor{
		stages: []pipeline.Stage{pipeline.StageInit, pipeline.StageConnecting, pipeline.StageFailed},
		result: func(req pipeline.Request) *pipeline.Result {
			return &pipeline.Result{
				RunID:         req.RunID,
				Target:        req.Target,
				Stage:         pipeline.StageFailed,
				Failure:       pipeline.FailureConnection,
				Err:           wantErr,
				CommandsTotal: 4,
				StartedAt:     time.Now().UTC(),
				FinishedAt:    time.Now().UTC(),
			}
		},
	}
	querier := &recordingQuerier{}
	r := New(Config{QueueCapacity: 2}, exec, nil, querier, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	id, err := r.Enqueue(pipeline.Request{Target: testTarget})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	waitFor(t, "run record", func() bool { return querier.count() == 1 })
	rec := querier.last()
	if rec.Stage != string(pipeline.StageFailed) {
		t.Errorf("record stage = %q, want FAILED", rec.Stage)
	}
	if rec.Failure != string(pipeline.FailureConnection) {
		t.Errorf("record failure = %q, want connection", rec.Failure)
	}
	if rec.Error == "" {
		t.Error("record error text is empty")
	}
	if rec.Verdict != "" {
		t.Errorf("record verdict = %q, want empty", rec.Verdict)
	}

	state, _ := r.Registry().Get(id)
	if state.Result == nil || state.Result.Err == nil {
		t.Error("registry result lost the failure error")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	exec := &stubExecutor{result: doneResult}
	r := New(Config{QueueCapacity: 2}, exec, nil, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop on cancel")
	}
}
