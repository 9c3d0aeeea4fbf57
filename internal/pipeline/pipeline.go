// Package pipeline drives one device diagnostic through its fixed
// stage sequence: connect, fetch, sanitize, analyze. A run that loses
// only its analysis degrades instead of failing hard, so the collected
// transcripts always survive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/autonoc/autonoc/internal/analysis"
	"github.com/autonoc/autonoc/internal/device"
	"github.com/autonoc/autonoc/internal/sanitize"
)

// Stage is one step of the diagnostic lifecycle.
type Stage string

const (
	StageInit       Stage = "INIT"
	StageConnecting Stage = "CONNECTING"
	StageFetching   Stage = "FETCHING"
	StageSanitizing Stage = "SANITIZING"
	StageAnalyzing  Stage = "ANALYZING"
	StageDone       Stage = "DONE"
	StageFailed     Stage = "FAILED"
)

// FailureKind tells the operator which layer gave out.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureConnection FailureKind = "connection"
	FailureSystem     FailureKind = "system"
	FailureAnalysis   FailureKind = "analysis"
)

// DefaultCommands is the single-cycle diagnostic command set issued
// when a request names none.
var DefaultCommands = []string{
	"terminal length 0",
	"show version",
	"show interface brief",
	"show ip route",
}

// Request is one diagnostic order.
type Request struct {
	RunID       uuid.UUID
	Target      device.Target
	Credentials device.Credentials
	Commands    []device.CommandSpec
}

// Result is everything one diagnostic produced. Raw and Sanitized are
// populated from fetch success onward and survive a degraded analysis.
type Result struct {
	RunID         uuid.UUID
	Target        device.Target
	Stage         Stage
	Failure       FailureKind
	Err           error
	Degraded      bool
	Raw           string
	Sanitized     string
	Triggered     []sanitize.Category
	Report        *analysis.Report
	CommandsTotal int
	CommandsOK    int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// StageEvent is one observed lifecycle transition.
type StageEvent struct {
	RunID  uuid.UUID `json:"run_id"`
	Stage  Stage     `json:"stage"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// Observer receives stage transitions as they happen. Calls are
// synchronous on the run's goroutine and must not block.
type Observer func(StageEvent)

// Analyzer reviews a sanitized transcript. *analysis.Client satisfies
// it.
type Analyzer interface {
	Analyze(ctx context.Context, sanitized string) (*analysis.Report, error)
}

// Dialers picks the transport implementation for a target.
type Dialers struct {
	SSH   device.Dialer
	WinRM device.Dialer
}

// For returns the dialer serving the given transport.
func (d Dialers) For(t device.Transport) (device.Dialer, error) {
	switch t {
	case device.TransportSSH:
		if d.SSH != nil {
			return d.SSH, nil
		}
	case device.TransportWinRM:
		if d.WinRM != nil {
			return d.WinRM, nil
		}
	}
	return nil, fmt.Errorf("no dialer for transport %q", t)
}

// Pipeline runs diagnostics. Safe for sequential reuse; each Run owns
// its own session.
type Pipeline struct {
	dialers   Dialers
	sanitizer *sanitize.Sanitizer
	analyzer  Analyzer
	logger    *slog.Logger

	// Pacing is handed to each session. Zero means the device-layer
	// default; negative disables pacing (tests).
	Pacing time.Duration
}

// New wires a Pipeline. A nil logger falls back to slog.Default().
func New(dialers Dialers, sanitizer *sanitize.Sanitizer, analyzer Analyzer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		dialers:   dialers,
		sanitizer: sanitizer,
		analyzer:  analyzer,
		logger:    logger,
	}
}

// Run executes one diagnostic to completion. It always returns a
// Result; Stage tells how far it got and Failure what stopped it.
func (p *Pipeline) Run(ctx context.Context, req Request, observe Observer) *Result {
	res := &Result{
		RunID:     req.RunID,
		Target:    req.Target,
		StartedAt: time.Now().UTC(),
	}
	p.enter(res, observe, StageInit, "")

	dialer, err := p.dialers.For(req.Target.Transport)
	if err != nil {
		return p.fail(res, observe, FailureSystem, &device.SystemError{Op: "transport selection", Err: err})
	}

	commands := req.Commands
	if len(commands) == 0 {
		commands = device.Specs(DefaultCommands...)
	}
	res.CommandsTotal = len(commands)

	p.enter(res, observe, StageConnecting, req.Target.Addr())

	sess := device.NewSession(dialer, p.logger)
	sess.Pacing = p.Pacing
	sess.OnEstablished = func(prompt string) {
		p.enter(res, observe, StageFetching, prompt)
	}

	transcript, err := sess.Fetch(ctx, req.Target, req.Credentials, commands)
	if err != nil {
		kind := FailureSystem
		var connErr *device.ConnectionError
		if errors.As(err, &connErr) {
			kind = FailureConnection
		}
		return p.fail(res, observe, kind, err)
	}
	res.Raw = transcript.Render()
	for _, cr := range transcript.Results {
		if cr.OK {
			res.CommandsOK++
		}
	}

	p.enter(res, observe, StageSanitizing, "")
	clean := p.sanitizer.Apply(res.Raw)
	res.Sanitized = clean.Text
	res.Triggered = clean.Triggered

	p.enter(res, observe, StageAnalyzing, "")
	report, err := p.analyzer.Analyze(ctx, res.Sanitized)
	if err != nil {
		res.Degraded = true
		res.Failure = FailureAnalysis
		res.Err = err
		res.Report = degradedReport(err)
		p.enter(res, observe, StageFailed, "degraded: "+err.Error())
		res.FinishedAt = time.Now().UTC()
		p.logger.Warn("Diagnostic degraded, transcripts retained",
			"run_id", res.RunID, "target", res.Target.Addr(), "error", err)
		return res
	}
	res.Report = report

	p.enter(res, observe, StageDone, string(report.Verdict))
	res.FinishedAt = time.Now().UTC()
	p.logger.Info("Diagnostic complete",
		"run_id", res.RunID, "target", res.Target.Addr(), "verdict", report.Verdict)
	return res
}

func (p *Pipeline) enter(res *Result, observe Observer, stage Stage, detail string) {
	res.Stage = stage
	if observe != nil {
		observe(StageEvent{RunID: res.RunID, Stage: stage, At: time.Now().UTC(), Detail: detail})
	}
	p.logger.Debug("Stage entered", "run_id", res.RunID, "stage", stage, "detail", detail)
}

func (p *Pipeline) fail(res *Result, observe Observer, kind FailureKind, err error) *Result {
	res.Failure = kind
	res.Err = err
	p.enter(res, observe, StageFailed, err.Error())
	res.FinishedAt = time.Now().UTC()
	p.logger.Error("Diagnostic failed",
		"run_id", res.RunID, "target", res.Target.Addr(), "failure", kind, "error", err)
	return res
}

// degradedReport stands in for the model's report when analysis fails:
// the operator still gets an explanation next to the retained
// transcripts.
func degradedReport(err error) *analysis.Report {
	return &analysis.Report{
		Verdict: analysis.VerdictUnknown,
		Narrative: "Analysis did not complete: " + err.Error() +
			"\n\nThe raw and sanitized transcripts were collected and remain available for manual review.",
	}
}
