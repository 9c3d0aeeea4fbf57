// Package device acquires command-line sessions on network equipment
// and turns an ordered command list into a raw transcript. Transports
// (interactive SSH shell, WinRM) sit behind the Dialer/Conn pair so the
// session logic and its callers never touch protocol details.
package device

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Transport selects the session protocol for a target.
type Transport string

const (
	TransportSSH   Transport = "ssh"
	TransportWinRM Transport = "winrm"
)

// Target is one device address.
type Target struct {
	Transport Transport `json:"transport"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
}

// Addr returns the host:port dial string.
func (t Target) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Credentials carries everything needed to authenticate a session.
// Values are never logged and never serialized into transcripts.
type Credentials struct {
	Username     string
	Password     string
	EnableSecret string
	PrivateKey   string
	Passphrase   string
}

// CommandSpec is one command to issue. Order in a command list is
// execution order. Timeout, when non-zero, overrides the transport's
// default wait for this command only.
type CommandSpec struct {
	Text    string        `json:"text"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Specs wraps plain command strings into CommandSpecs.
func Specs(commands ...string) []CommandSpec {
	specs := make([]CommandSpec, 0, len(commands))
	for _, c := range commands {
		specs = append(specs, CommandSpec{Text: c})
	}
	return specs
}

// CommandResult is the recorded outcome of one command. Immutable once
// appended to a transcript.
type CommandResult struct {
	Command   string    `json:"command"`
	Output    string    `json:"output"`
	OK        bool      `json:"ok"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is the ordered raw record of one fetch: the session
// banner line plus one result per command, in execution order. It is
// append-only during the fetch and never mutated afterwards.
type Transcript struct {
	Banner  string          `json:"banner"`
	Results []CommandResult `json:"results"`
}

// Render flattens the transcript into the text form handed to the
// sanitizer: the banner line, then one delimited block per command.
func (t *Transcript) Render() string {
	var b strings.Builder
	b.WriteString(t.Banner)
	b.WriteString("\n")
	for _, res := range t.Results {
		b.WriteString("\n")
		b.WriteString(strings.Repeat("=", 30))
		b.WriteString("\n[Command] ")
		b.WriteString(res.Command)
		b.WriteString("\n")
		b.WriteString(res.Output)
		b.WriteString("\n")
	}
	return b.String()
}

// ExecResult is one command's output as seen on the wire. Failed marks
// device-side rejection (error marker in the output, non-zero exit);
// it does not abort the surrounding fetch.
type ExecResult struct {
	Output string
	Failed bool
}

// Conn is one live session on a device. Implementations are not safe
// for concurrent use; a Conn is owned by exactly one fetch.
type Conn interface {
	// Prompt returns the most recently observed command prompt.
	Prompt() string
	// Elevated reports whether the session already runs privileged.
	Elevated() bool
	// Elevate raises privilege on a non-elevated session.
	Elevate(ctx context.Context, secret string) error
	// Run issues one command and returns its output.
	Run(ctx context.Context, command string) (ExecResult, error)
	// Close releases the session. Safe to call more than once.
	Close() error
}

// Dialer opens sessions. Implementations classify their own failures
// only as raw errors; the session layer maps them onto the
// ConnectionError/SystemError taxonomy.
type Dialer interface {
	Dial(ctx context.Context, target Target, creds Credentials) (Conn, error)
}
