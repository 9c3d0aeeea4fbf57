// Package runner serializes queued diagnostic runs through the
// pipeline one at a time and keeps their artifacts in a bounded
// registry. Run metadata is persisted; transcripts are not.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/autonoc/autonoc/internal/events"
	"github.com/autonoc/autonoc/internal/pipeline"
	"github.com/autonoc/autonoc/internal/store"
)

// ErrQueueFull is returned by Enqueue when the run queue is saturated.
var ErrQueueFull = errors.New("run queue full")

const persistTimeout = 10 * time.Second

// Config bounds the runner's queue and registry.
type Config struct {
	QueueCapacity int
	HistoryLimit  int
}

// Executor runs one diagnostic. *pipeline.Pipeline satisfies this.
type Executor interface {
	Run(ctx context.Context, req pipeline.Request, observe pipeline.Observer) *pipeline.Result
}

// Runner owns the run queue, the worker loop and the registry.
type Runner struct {
	queue    chan pipeline.Request
	registry *Registry
	exec     Executor
	events   *events.Channels
	querier  store.Querier
	logger   *slog.Logger
}

// New creates a runner. The querier may be nil in CLI use; runs are
// then not persisted.
func New(cfg Config, exec Executor, ev *events.Channels, querier store.Querier, logger *slog.Logger) *Runner {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		queue:    make(chan pipeline.Request, cfg.QueueCapacity),
		registry: NewRegistry(cfg.HistoryLimit),
		exec:     exec,
		events:   ev,
		querier:  querier,
		logger:   logger,
	}
}

// Registry exposes run state and artifacts to the API layer.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Enqueue accepts a run request and returns its ID. The request is
// rejected with ErrQueueFull when the queue is saturated.
func (r *Runner) Enqueue(req pipeline.Request) (uuid.UUID, error) {
	if req.RunID == uuid.Nil {
		req.RunID = uuid.New()
	}

	r.registry.Add(&RunState{
		ID:        req.RunID,
		Host:      req.Target.Host,
		Port:      req.Target.Port,
		Transport: string(req.Target.Transport),
	})

	select {
	case r.queue <- req:
		return req.RunID, nil
	default:
		r.registry.Remove(req.RunID)
		return uuid.Nil, ErrQueueFull
	}
}

// Run starts the worker and processes queued runs until the context is
// canceled. Runs execute strictly one at a time.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Run worker starting",
		slog.Int("queue_capacity", cap(r.queue)),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Run worker shutting down",
				slog.String("reason", ctx.Err().Error()),
			)
			return ctx.Err()

		case req, ok := <-r.queue:
			if !ok {
				return fmt.Errorf("run queue closed")
			}
			r.execute(ctx, req)
		}
	}
}

// execute drives one run through the pipeline and records the outcome.
func (r *Runner) execute(ctx context.Context, req pipeline.Request) {
	observe := func(ev pipeline.StageEvent) {
		r.registry.UpdateStage(ev.RunID, string(ev.Stage))
		if r.events != nil {
			r.events.PublishStage(ev)
		}
	}

	res := r.exec.Run(ctx, req, observe)
	r.registry.Complete(res.RunID, res)

	if r.events != nil {
		r.events.PublishCompletion(completionOf(res))
	}
	r.persist(res)
}

// persist writes the run record with a detached timeout so a shutdown
// mid-run cannot lose an already-finished result.
func (r *Runner) persist(res *pipeline.Result) {
	if r.querier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := r.querier.InsertRun(ctx, recordOf(res)); err != nil {
		r.logger.Error("Failed to persist run record",
			slog.String("run_id", res.RunID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func completionOf(res *pipeline.Result) events.Completion {
	c := events.Completion{
		RunID:      res.RunID,
		Host:       res.Target.Host,
		Transport:  string(res.Target.Transport),
		Stage:      string(res.Stage),
		Degraded:   res.Degraded,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.Report != nil {
		c.Verdict = string(res.Report.Verdict)
	}
	if res.Err != nil {
		c.Error = res.Err.Error()
	}
	return c
}

func recordOf(res *pipeline.Result) *store.RunRecord {
	rec := &store.RunRecord{
		ID:            res.RunID,
		Host:          res.Target.Host,
		Port:          res.Target.Port,
		Transport:     string(res.Target.Transport),
		Stage:         string(res.Stage),
		Degraded:      res.Degraded,
		Failure:       string(res.Failure),
		CommandsTotal: res.CommandsTotal,
		CommandsOK:    res.CommandsOK,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if res.Report != nil {
		rec.Verdict = string(res.Report.Verdict)
	}
	for _, cat := range res.Triggered {
		rec.Triggered = append(rec.Triggered, string(cat))
	}
	return rec
}
