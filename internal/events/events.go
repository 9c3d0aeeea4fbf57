// Package events provides typed Go channels for run lifecycle events,
// giving the websocket hub and the AMQP notifier compile-time event
// shapes instead of a generic bus.
package events

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/autonoc/autonoc/internal/pipeline"
)

// Completion is published when a diagnostic run reaches a terminal
// stage. It carries metadata only; transcript bodies stay in the
// runner's registry.
type Completion struct {
	RunID      uuid.UUID `json:"run_id"`
	Host       string    `json:"host"`
	Transport  string    `json:"transport"`
	Stage      string    `json:"stage"`
	Degraded   bool      `json:"degraded"`
	Verdict    string    `json:"verdict,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Config sets buffer sizes for the event channels.
type Config struct {
	StageBufferSize      int
	CompletionBufferSize int
}

// Channels is the hub for run events. Publishing never blocks; a full
// buffer drops the event with a warning so a slow consumer cannot
// stall a run.
type Channels struct {
	Stages      chan pipeline.StageEvent
	Completions chan Completion

	done   chan struct{}
	logger *slog.Logger
}

// NewChannels creates the event hub with configured buffer sizes.
func NewChannels(cfg Config, logger *slog.Logger) *Channels {
	if cfg.StageBufferSize <= 0 {
		cfg.StageBufferSize = 128
	}
	if cfg.CompletionBufferSize <= 0 {
		cfg.CompletionBufferSize = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Channels{
		Stages:      make(chan pipeline.StageEvent, cfg.StageBufferSize),
		Completions: make(chan Completion, cfg.CompletionBufferSize),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// PublishStage offers a stage event to consumers without blocking.
func (c *Channels) PublishStage(ev pipeline.StageEvent) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.Stages <- ev:
	default:
		c.logger.Warn("stage event buffer full, dropping event",
			slog.String("run_id", ev.RunID.String()),
			slog.String("stage", string(ev.Stage)),
		)
	}
}

// PublishCompletion offers a completion event to consumers without
// blocking.
func (c *Channels) PublishCompletion(ev Completion) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.Completions <- ev:
	default:
		c.logger.Warn("completion buffer full, dropping event",
			slog.String("run_id", ev.RunID.String()),
		)
	}
}

// Close shuts down the hub. All publishers must have stopped before
// Close is called.
func (c *Channels) Close() error {
	close(c.done)
	close(c.Stages)
	close(c.Completions)
	return nil
}

// Done returns a channel that's closed when the hub is shutting down.
func (c *Channels) Done() <-chan struct{} {
	return c.done
}
