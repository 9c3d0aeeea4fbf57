// Package probe answers "can this device be reached with these
// credentials" ahead of a full diagnostic. One handshake per protocol,
// no command cycle; device-supplied text is sanitized before it leaves
// the package.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/autonoc/autonoc/internal/sanitize"
)

// Protocol names one supported handshake.
type Protocol string

const (
	ProtocolSSH     Protocol = "ssh"
	ProtocolWinRM   Protocol = "winrm"
	ProtocolSNMPv2c Protocol = "snmp-v2c"
	ProtocolSNMPv3  Protocol = "snmp-v3"
)

// Credentials covers every probe protocol; Validate on the Request
// checks the subset the chosen protocol requires.
type Credentials struct {
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`

	Community string `json:"community,omitempty"`

	SecurityName  string `json:"security_name,omitempty"`
	SecurityLevel string `json:"security_level,omitempty" validate:"omitempty,oneof=noAuthNoPriv authNoPriv authPriv"`
	AuthProtocol  string `json:"auth_protocol,omitempty" validate:"omitempty,oneof=MD5 SHA SHA224 SHA256 SHA384 SHA512"`
	AuthPassword  string `json:"auth_password,omitempty"`
	PrivProtocol  string `json:"priv_protocol,omitempty" validate:"omitempty,oneof=DES AES AES192 AES256"`
	PrivPassword  string `json:"priv_password,omitempty"`
}

// Request is one reachability check order.
type Request struct {
	Protocol    Protocol    `json:"protocol" validate:"required,oneof=ssh winrm snmp-v2c snmp-v3"`
	Host        string      `json:"host" validate:"required"`
	Port        int         `json:"port" validate:"required,min=1,max=65535"`
	Credentials Credentials `json:"credentials"`
}

var validate = validator.New()

// Validate checks the request shape plus the credential fields the
// chosen protocol cannot work without.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}

	c := r.Credentials
	switch r.Protocol {
	case ProtocolSSH:
		if c.Username == "" {
			return errors.New("ssh probe requires a username")
		}
		if c.Password == "" && c.PrivateKey == "" {
			return errors.New("ssh probe requires a password or private key")
		}
	case ProtocolWinRM:
		if c.Username == "" || c.Password == "" {
			return errors.New("winrm probe requires a username and password")
		}
	case ProtocolSNMPv2c:
		if c.Community == "" {
			return errors.New("snmp-v2c probe requires a community string")
		}
	case ProtocolSNMPv3:
		if c.SecurityName == "" {
			return errors.New("snmp-v3 probe requires a security name")
		}
		if c.SecurityLevel == "" {
			return errors.New("snmp-v3 probe requires a security level")
		}
		if c.SecurityLevel != "noAuthNoPriv" && c.AuthPassword == "" {
			return errors.New("snmp-v3 auth levels require an auth password")
		}
		if c.SecurityLevel == "authPriv" && c.PrivPassword == "" {
			return errors.New("snmp-v3 authPriv requires a privacy password")
		}
	}
	return nil
}

// Result is the outcome of one probe. Hostname, Detail, and Error have
// been through the sanitizer.
type Result struct {
	OK       bool     `json:"ok"`
	Protocol Protocol `json:"protocol"`
	Hostname string   `json:"hostname,omitempty"`
	Detail   string   `json:"detail,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Prober runs protocol handshakes. Safe for concurrent use.
type Prober struct {
	timeout   time.Duration
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger
}

// New returns a Prober. Zero timeout means 10s; nil logger falls back
// to slog.Default().
func New(timeout time.Duration, sanitizer *sanitize.Sanitizer, logger *slog.Logger) *Prober {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{timeout: timeout, sanitizer: sanitizer, logger: logger}
}

// Probe validates the request and runs the protocol handshake. A
// failed handshake is a successful probe with OK false; the error
// return covers invalid requests only.
func (p *Prober) Probe(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var res *Result
	switch req.Protocol {
	case ProtocolSSH:
		res = p.probeSSH(req)
	case ProtocolWinRM:
		res = p.probeWinRM(ctx, req)
	case ProtocolSNMPv2c:
		res = p.probeSNMPv2c(req)
	case ProtocolSNMPv3:
		res = p.probeSNMPv3(req)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", req.Protocol)
	}

	res.Hostname = p.scrub(res.Hostname)
	res.Detail = p.scrub(res.Detail)
	res.Error = p.scrub(res.Error)
	p.logger.Info("Probe finished", "protocol", res.Protocol, "host", req.Host, "ok", res.OK)
	return res, nil
}

func (p *Prober) scrub(s string) string {
	if s == "" || p.sanitizer == nil {
		return s
	}
	return p.sanitizer.Apply(s).Text
}
