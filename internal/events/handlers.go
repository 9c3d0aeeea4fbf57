package events

import (
	"context"
	"log/slog"

	"github.com/autonoc/autonoc/internal/pipeline"
)

// StageSink receives forwarded stage events. The websocket hub
// implements this.
type StageSink interface {
	BroadcastStage(ev pipeline.StageEvent)
}

// CompletionSink receives forwarded completions. The AMQP notifier
// implements this.
type CompletionSink interface {
	PublishCompletion(ctx context.Context, ev Completion) error
}

// StartStageForwarder starts a goroutine that forwards stage events to
// the sink until the context or the hub is done.
func StartStageForwarder(ctx context.Context, events *Channels, sink StageSink) {
	go func() {
		for {
			select {
			case ev, ok := <-events.Stages:
				if !ok {
					return
				}
				sink.BroadcastStage(ev)
			case <-ctx.Done():
				return
			case <-events.Done():
				return
			}
		}
	}()
}

// StartCompletionForwarder starts a goroutine that logs completions and
// hands them to the sink. A nil sink logs only; notification stays
// optional.
func StartCompletionForwarder(ctx context.Context, events *Channels, sink CompletionSink, logger *slog.Logger) {
	go func() {
		for {
			select {
			case ev, ok := <-events.Completions:
				if !ok {
					return
				}
				logger.InfoContext(ctx, "Run completed",
					slog.String("run_id", ev.RunID.String()),
					slog.String("host", ev.Host),
					slog.String("stage", ev.Stage),
					slog.Bool("degraded", ev.Degraded),
					slog.String("verdict", ev.Verdict),
					slog.String("duration", ev.FinishedAt.Sub(ev.StartedAt).String()),
				)
				if sink == nil {
					continue
				}
				if err := sink.PublishCompletion(ctx, ev); err != nil {
					logger.ErrorContext(ctx, "Failed to publish completion",
						slog.String("run_id", ev.RunID.String()),
						slog.String("error", err.Error()),
					)
				}
			case <-ctx.Done():
				return
			case <-events.Done():
				return
			}
		}
	}()
}
