package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/masterzen/winrm"
)

// WinRMOptions tunes the Windows remote management transport.
type WinRMOptions struct {
	ConnectTimeout time.Duration
	UseHTTPS       bool
	SkipVerify     bool
}

func (o WinRMOptions) withDefaults() WinRMOptions {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	return o
}

// WinRMDialer opens command channels to Windows hosts. WinRM has no
// interactive shell state, so each command runs in its own shell on
// the remote side.
type WinRMDialer struct {
	opts WinRMOptions
}

// NewWinRMDialer returns a dialer with zero option fields replaced by
// defaults.
func NewWinRMDialer(opts WinRMOptions) *WinRMDialer {
	return &WinRMDialer{opts: opts.withDefaults()}
}

// Dial builds the client and verifies reachability by asking the host
// for its name, which also seeds the prompt.
func (d *WinRMDialer) Dial(ctx context.Context, target Target, creds Credentials) (Conn, error) {
	endpoint := winrm.NewEndpoint(target.Host, target.Port, d.opts.UseHTTPS, d.opts.SkipVerify, nil, nil, nil, d.opts.ConnectTimeout)

	params := winrm.DefaultParameters
	if strings.ContainsAny(creds.Username, `\@`) {
		// Domain accounts need NTLM instead of basic auth.
		params.TransportDecorator = func() winrm.Transporter { return &winrm.ClientNTLM{} }
	}

	client, err := winrm.NewClientWithParameters(endpoint, creds.Username, creds.Password, params)
	if err != nil {
		return nil, fmt.Errorf("winrm client for %s: %w", target.Addr(), err)
	}

	conn := &winrmConn{client: client}
	res, err := conn.Run(ctx, "hostname")
	if err != nil {
		return nil, fmt.Errorf("winrm handshake with %s: %w", target.Addr(), err)
	}

	name := strings.TrimSpace(res.Output)
	if name == "" {
		name = target.Host
	}
	conn.prompt = name + ">"
	return conn, nil
}

type winrmConn struct {
	client *winrm.Client
	prompt string
}

func (c *winrmConn) Prompt() string { return c.prompt }

// Elevated always holds: WinRM sessions run with the full rights of
// the authenticated account, there is no enable step.
func (c *winrmConn) Elevated() bool { return true }

func (c *winrmConn) Elevate(ctx context.Context, secret string) error { return nil }

// Run executes one command in a fresh remote shell. A non-zero exit
// code marks the result failed with stderr folded into the output.
func (c *winrmConn) Run(ctx context.Context, command string) (ExecResult, error) {
	stdout, stderr, exitCode, err := c.client.RunWithContextWithString(ctx, command, "")
	if err != nil {
		return ExecResult{}, err
	}

	output := strings.TrimRight(stdout, "\r\n")
	if strings.TrimSpace(stderr) != "" {
		if output != "" {
			output += "\n"
		}
		output += strings.TrimRight(stderr, "\r\n")
	}
	return ExecResult{Output: output, Failed: exitCode != 0}, nil
}

func (c *winrmConn) Close() error { return nil }
