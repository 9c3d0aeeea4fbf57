package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// promptPattern matches the final, unterminated line a network CLI
// prints when it is ready for input: hostname-ish text ending in the
// user (>) or privileged (#) marker. `$` covers Linux-style shells on
// appliance OSes.
var promptPattern = regexp.MustCompile(`^[\w.()/:@~-]+[>#$]$`)

// SSHOptions tunes the interactive shell transport.
type SSHOptions struct {
	ConnectTimeout time.Duration // TCP connect plus SSH handshake
	BannerTimeout  time.Duration // wait for the first prompt after login
	CommandTimeout time.Duration // base wait for a command's prompt return
	DelayFactor    int           // scales CommandTimeout for slow transports
}

func (o SSHOptions) withDefaults() SSHOptions {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.BannerTimeout <= 0 {
		o.BannerTimeout = 30 * time.Second
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 10 * time.Second
	}
	if o.DelayFactor <= 0 {
		o.DelayFactor = 1
	}
	return o
}

// SSHDialer opens interactive PTY shell sessions on network devices.
type SSHDialer struct {
	opts SSHOptions
}

// NewSSHDialer returns a dialer with zero option fields replaced by
// defaults.
func NewSSHDialer(opts SSHOptions) *SSHDialer {
	return &SSHDialer{opts: opts.withDefaults()}
}

// Dial connects, authenticates, starts a PTY shell, and waits for the
// first prompt within the banner timeout.
func (d *SSHDialer) Dial(ctx context.Context, target Target, creds Credentials) (Conn, error) {
	config, err := ClientConfig(creds, d.opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: d.opts.ConnectTimeout}
	tcp, err := dialer.DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target.Addr(), err)
	}

	// NewClientConn does not apply config.Timeout itself; bound the
	// handshake with a connection deadline the way ssh.Dial does.
	if d.opts.ConnectTimeout > 0 {
		_ = tcp.SetDeadline(time.Now().Add(d.opts.ConnectTimeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(tcp, target.Addr(), config)
	if err != nil {
		tcp.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", target.Addr(), err)
	}
	_ = tcp.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)
	conn, err := newShellConn(ctx, client, d.opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	return conn, nil
}

// ClientConfig builds the SSH client configuration shared by the
// shell transport and the reachability probe. Host keys are not
// checked; targets are reached by operator-supplied address.
func ClientConfig(creds Credentials, timeout time.Duration) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod

	if creds.PrivateKey != "" {
		var signer ssh.Signer
		var err error
		if creds.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(creds.PrivateKey), []byte(creds.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(creds.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		methods = append(methods, ssh.Password(creds.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("unable to authenticate: no password or private key provided")
	}

	return &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

// shellConn drives one PTY shell. All waits are expect-style: send a
// line, accumulate output until the prompt shows up as the final line.
// Not safe for concurrent use.
type shellConn struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser

	opts    SSHOptions
	chunks  chan string
	readErr chan error
	done    chan struct{}

	pending string
	prompt  string
	closed  bool
}

func newShellConn(ctx context.Context, client *ssh.Client, opts SSHOptions) (*shellConn, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO: 0, // disable echoing
	}
	if err := session.RequestPty("vt100", 24, 200, modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	c := &shellConn{
		client:  client,
		session: session,
		stdin:   stdin,
		opts:    opts,
		chunks:  make(chan string, 64),
		readErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
	go c.readLoop(stdout)

	// Nudge the device into printing its first prompt.
	if _, err := io.WriteString(stdin, "\n"); err != nil {
		c.Close()
		return nil, fmt.Errorf("prime shell: %w", err)
	}
	if _, err := c.waitPrompt(ctx, opts.BannerTimeout); err != nil {
		c.Close()
		return nil, fmt.Errorf("waiting for banner: %w", err)
	}
	return c, nil
}

func (c *shellConn) readLoop(stdout io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			select {
			case c.chunks <- string(buf[:n]):
			case <-c.done:
				return
			}
		}
		if err != nil {
			select {
			case c.readErr <- err:
			case <-c.done:
			}
			return
		}
	}
}

// advance blocks until more output arrives or the wait expires.
func (c *shellConn) advance(ctx context.Context, timer *time.Timer) error {
	select {
	case chunk := <-c.chunks:
		c.pending += chunk
		return nil
	case err := <-c.readErr:
		return err
	case <-timer.C:
		return ErrPromptTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitPrompt accumulates output until the prompt is the final line,
// then returns everything read, prompt included, and records the
// prompt.
func (c *shellConn) waitPrompt(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if prompt, ok := trailingPrompt(c.pending); ok {
			c.prompt = prompt
			text := c.pending
			c.pending = ""
			return text, nil
		}
		if err := c.advance(ctx, timer); err != nil {
			return "", err
		}
	}
}

func (c *shellConn) Prompt() string { return c.prompt }

func (c *shellConn) Elevated() bool { return strings.HasSuffix(c.prompt, "#") }

// Elevate sends `enable`, answers the secret prompt if one appears,
// and verifies the new prompt is privileged.
func (c *shellConn) Elevate(ctx context.Context, secret string) error {
	if c.Elevated() {
		return nil
	}
	if _, err := io.WriteString(c.stdin, "enable\n"); err != nil {
		return fmt.Errorf("send enable: %w", err)
	}

	timer := time.NewTimer(c.commandWait())
	defer timer.Stop()
	secretSent := false

	for {
		if prompt, ok := trailingPrompt(c.pending); ok {
			c.prompt = prompt
			c.pending = ""
			if !c.Elevated() {
				return fmt.Errorf("privilege elevation failed, prompt is still %q", prompt)
			}
			return nil
		}
		if asksForPassword(c.pending) {
			if secretSent {
				return errors.New("unable to authenticate: enable secret rejected")
			}
			if secret == "" {
				return errors.New("unable to authenticate: device requires an enable secret")
			}
			c.pending = ""
			if _, err := io.WriteString(c.stdin, secret+"\n"); err != nil {
				return fmt.Errorf("send enable secret: %w", err)
			}
			secretSent = true
			continue
		}
		if err := c.advance(ctx, timer); err != nil {
			return err
		}
	}
}

// Run issues one command and collects its output up to the next
// prompt. Device-side error markers set Failed without returning an
// error; only session-level trouble errors out.
func (c *shellConn) Run(ctx context.Context, command string) (ExecResult, error) {
	c.pending = ""
	if _, err := io.WriteString(c.stdin, command+"\n"); err != nil {
		return ExecResult{}, fmt.Errorf("send command: %w", err)
	}

	text, err := c.waitPrompt(ctx, c.commandWait())
	if err != nil {
		return ExecResult{}, err
	}

	output := cleanOutput(text, command)
	return ExecResult{Output: output, Failed: hasErrorMarker(output)}, nil
}

func (c *shellConn) commandWait() time.Duration {
	return c.opts.CommandTimeout * time.Duration(c.opts.DelayFactor)
}

func (c *shellConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	var errs []error
	if err := c.stdin.Close(); err != nil && !errors.Is(err, io.EOF) {
		errs = append(errs, err)
	}
	if err := c.session.Close(); err != nil && !errors.Is(err, io.EOF) {
		errs = append(errs, err)
	}
	if err := c.client.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// trailingPrompt inspects the final, unterminated line of buf. CLIs
// print their prompt without a newline, so a buffer ending in a
// prompt-shaped line means the device is ready for input.
func trailingPrompt(buf string) (string, bool) {
	tail := buf
	if i := strings.LastIndexByte(buf, '\n'); i >= 0 {
		tail = buf[i+1:]
	}
	tail = strings.Trim(tail, "\r ")
	if tail == "" {
		return "", false
	}
	if promptPattern.MatchString(tail) {
		return tail, true
	}
	return "", false
}

func asksForPassword(buf string) bool {
	tail := strings.ToLower(strings.TrimRight(buf, " \t"))
	return strings.HasSuffix(tail, "password:")
}

// cleanOutput strips the echoed command line and the trailing prompt
// from one command's raw read, normalizing line endings.
func cleanOutput(text, command string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "")
	lines := strings.Split(text, "\n")

	if len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if promptPattern.MatchString(last) {
			lines = lines[:len(lines)-1]
		}
	}
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == strings.TrimSpace(command) {
		lines = lines[1:]
	}

	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// hasErrorMarker reports IOS-style rejection lines ("% Invalid input
// detected"). Syslog lines starting with a bare % are not markers.
func hasErrorMarker(output string) bool {
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "% ") {
			return true
		}
	}
	return false
}
