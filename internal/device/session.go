package device

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPacing is the fixed delay inserted after each command so the
// device's CLI process is never hit with back-to-back input.
const DefaultPacing = 500 * time.Millisecond

// Session runs one fetch at a time against a device. It owns the live
// connection for the duration of Fetch and releases it on every exit
// path. A Session holds no per-run state, so one value can serve
// sequential runs; concurrent runs need their own Dialer-backed Conns
// and should use separate Sessions for clarity.
type Session struct {
	dialer Dialer
	logger *slog.Logger

	// Pacing is the delay after each command. Zero means DefaultPacing;
	// negative disables pacing (tests).
	Pacing time.Duration

	// OnEstablished, when set, fires once per fetch as soon as the
	// session is up and elevated, before the first command is issued.
	OnEstablished func(prompt string)
}

// NewSession returns a Session using the given transport dialer.
func NewSession(dialer Dialer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{dialer: dialer, logger: logger}
}

// Fetch opens one session, elevates privilege when needed, issues the
// commands strictly in order over that session, and returns the raw
// transcript. Failures are ConnectionError (authentication, timeout,
// session death) or SystemError (anything else); in both cases no
// transcript is returned. Individual commands that produce error text
// are recorded in the transcript and do not abort the fetch.
func (s *Session) Fetch(ctx context.Context, target Target, creds Credentials, commands []CommandSpec) (*Transcript, error) {
	conn, err := s.dialer.Dial(ctx, target, creds)
	if err != nil {
		return nil, classify(target, "session setup", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			s.logger.Warn("Session close reported errors",
				"target", target.Addr(),
				"error", cerr,
			)
		}
	}()

	if !conn.Elevated() {
		if err := conn.Elevate(ctx, creds.EnableSecret); err != nil {
			return nil, classify(target, "privilege elevation", err)
		}
	}

	prompt := conn.Prompt()
	if s.OnEstablished != nil {
		s.OnEstablished(prompt)
	}
	s.logger.Debug("Session established", "target", target.Addr(), "prompt", prompt)

	transcript := &Transcript{Banner: "Connected to: " + prompt}

	for i, spec := range commands {
		cmdCtx := ctx
		if spec.Timeout > 0 {
			var cancel context.CancelFunc
			cmdCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
			defer cancel()
		}

		res, err := conn.Run(cmdCtx, spec.Text)
		if err != nil {
			return nil, classify(target, "command execution", err)
		}

		transcript.Results = append(transcript.Results, CommandResult{
			Command:   spec.Text,
			Output:    res.Output,
			OK:        !res.Failed,
			Timestamp: time.Now().UTC(),
		})
		s.logger.Debug("Command completed",
			"target", target.Addr(),
			"command", spec.Text,
			"ok", !res.Failed,
			"sequence", i+1,
		)

		if err := s.pace(ctx); err != nil {
			return nil, classify(target, "command pacing", err)
		}
	}

	return transcript, nil
}

func (s *Session) pace(ctx context.Context) error {
	pacing := s.Pacing
	if pacing == 0 {
		pacing = DefaultPacing
	}
	if pacing < 0 {
		return nil
	}

	timer := time.NewTimer(pacing)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
