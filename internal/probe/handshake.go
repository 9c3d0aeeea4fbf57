package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosnmp/gosnmp"
	"github.com/masterzen/winrm"
	"golang.org/x/crypto/ssh"

	"github.com/autonoc/autonoc/internal/device"
)

const (
	oidSysDescr = "1.3.6.1.2.1.1.1.0"
	oidSysName  = "1.3.6.1.2.1.1.5.0"
)

func (p *Prober) probeSSH(req Request) *Result {
	res := &Result{Protocol: ProtocolSSH}

	config, err := device.ClientConfig(device.Credentials{
		Username:   req.Credentials.Username,
		Password:   req.Credentials.Password,
		PrivateKey: req.Credentials.PrivateKey,
		Passphrase: req.Credentials.Passphrase,
	}, p.timeout)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	client, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", req.Host, req.Port), config)
	if err != nil {
		res.Error = fmt.Sprintf("ssh handshake failed: %v", err)
		return res
	}
	defer client.Close()

	res.OK = true
	res.Detail = string(client.ServerVersion())

	if session, err := client.NewSession(); err == nil {
		defer session.Close()
		if out, err := session.Output("hostname"); err == nil {
			res.Hostname = strings.TrimSpace(string(out))
		}
	}
	return res
}

func (p *Prober) probeWinRM(ctx context.Context, req Request) *Result {
	res := &Result{Protocol: ProtocolWinRM}

	endpoint := winrm.NewEndpoint(req.Host, req.Port, false, false, nil, nil, nil, p.timeout)
	params := winrm.DefaultParameters
	if strings.ContainsAny(req.Credentials.Username, `\@`) {
		params.TransportDecorator = func() winrm.Transporter { return &winrm.ClientNTLM{} }
	}

	client, err := winrm.NewClientWithParameters(endpoint, req.Credentials.Username, req.Credentials.Password, params)
	if err != nil {
		res.Error = fmt.Sprintf("winrm client creation failed: %v", err)
		return res
	}

	shell, err := client.CreateShell()
	if err != nil {
		res.Error = fmt.Sprintf("winrm shell creation failed: %v", err)
		return res
	}
	defer shell.Close()

	res.OK = true
	if stdout, _, _, err := client.RunWithContextWithString(ctx, "hostname", ""); err == nil {
		res.Hostname = strings.TrimSpace(stdout)
	}
	return res
}

func (p *Prober) probeSNMPv2c(req Request) *Result {
	res := &Result{Protocol: ProtocolSNMPv2c}

	g := &gosnmp.GoSNMP{
		Target:    req.Host,
		Port:      uint16(req.Port),
		Version:   gosnmp.Version2c,
		Community: req.Credentials.Community,
		Timeout:   p.timeout,
	}
	if err := g.Connect(); err != nil {
		res.Error = fmt.Sprintf("snmp connection failed: %v", err)
		return res
	}
	defer g.Conn.Close()

	name, descr, err := systemGroup(g)
	if err != nil {
		res.Error = fmt.Sprintf("snmp get failed: %v", err)
		return res
	}
	res.OK = true
	res.Hostname = name
	res.Detail = descr
	return res
}

func (p *Prober) probeSNMPv3(req Request) *Result {
	res := &Result{Protocol: ProtocolSNMPv3}
	creds := req.Credentials

	flags, err := msgFlags(creds.SecurityLevel)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	usm := &gosnmp.UsmSecurityParameters{UserName: creds.SecurityName}
	if flags != gosnmp.NoAuthNoPriv {
		usm.AuthenticationProtocol = authProtocol(creds.AuthProtocol)
		usm.AuthenticationPassphrase = creds.AuthPassword
	}
	if flags == gosnmp.AuthPriv {
		usm.PrivacyProtocol = privProtocol(creds.PrivProtocol)
		usm.PrivacyPassphrase = creds.PrivPassword
	}

	g := &gosnmp.GoSNMP{
		Target:             req.Host,
		Port:               uint16(req.Port),
		Version:            gosnmp.Version3,
		Timeout:            p.timeout,
		SecurityModel:      gosnmp.UserSecurityModel,
		MsgFlags:           flags,
		SecurityParameters: usm,
	}

	if err := g.Connect(); err != nil {
		res.Error = fmt.Sprintf("snmp v3 connection failed: %v", err)
		return res
	}
	defer g.Conn.Close()

	name, descr, err := systemGroup(g)
	if err != nil {
		res.Error = fmt.Sprintf("snmp v3 get failed: %v", err)
		return res
	}
	res.OK = true
	res.Hostname = name
	res.Detail = descr
	return res
}

// systemGroup reads sysDescr and sysName off an open SNMP connection.
func systemGroup(g *gosnmp.GoSNMP) (name, descr string, err error) {
	result, err := g.Get([]string{oidSysDescr, oidSysName})
	if err != nil {
		return "", "", err
	}
	for _, variable := range result.Variables {
		switch variable.Name {
		case "." + oidSysDescr:
			descr = pduString(variable)
		case "." + oidSysName:
			name = pduString(variable)
		}
	}
	return name, descr, nil
}

// pduString renders an SNMP value; octet strings arrive as byte
// slices.
func pduString(v gosnmp.SnmpPDU) string {
	switch val := v.Value.(type) {
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func msgFlags(level string) (gosnmp.SnmpV3MsgFlags, error) {
	switch level {
	case "noAuthNoPriv":
		return gosnmp.NoAuthNoPriv, nil
	case "authNoPriv":
		return gosnmp.AuthNoPriv, nil
	case "authPriv":
		return gosnmp.AuthPriv, nil
	}
	return 0, fmt.Errorf("invalid security level %q", level)
}

func authProtocol(name string) gosnmp.SnmpV3AuthProtocol {
	switch name {
	case "SHA":
		return gosnmp.SHA
	case "SHA224":
		return gosnmp.SHA224
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.MD5
	}
}

func privProtocol(name string) gosnmp.SnmpV3PrivProtocol {
	switch name {
	case "DES":
		return gosnmp.DES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.AES
	}
}
