package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// ErrPromptTimeout is returned by a Conn when the device prompt does
// not come back within the command wait. It counts as a session-level
// failure: the session is considered dead.
var ErrPromptTimeout = errors.New("timed out waiting for device prompt")

// ConnectionError reports an authentication failure or transport
// timeout while establishing or using the remote session. Fatal to the
// fetch; the operator should retry the network step.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not reach or authenticate to device %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SystemError reports any other unexpected failure during a fetch,
// wrapped with the original message. Fatal to the fetch.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("unexpected failure during %s: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

// classify maps a raw transport error onto the fetch error taxonomy.
// Authentication and timeout shapes become ConnectionError; everything
// else becomes SystemError. Already-classified errors pass through.
func classify(target Target, op string, err error) error {
	if err == nil {
		return nil
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	var sysErr *SystemError
	if errors.As(err, &sysErr) {
		return err
	}

	if isConnectionFailure(err) {
		return &ConnectionError{Target: target.Addr(), Err: err}
	}
	return &SystemError{Op: op, Err: err}
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, ErrPromptTimeout) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Library errors that carry no typed cause.
	msg := err.Error()
	for _, marker := range []string{
		"unable to authenticate",
		"handshake failed",
		"connection refused",
		"no route to host",
		"i/o timeout",
		"http error 401",
		"invalid credentials",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
