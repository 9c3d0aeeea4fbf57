package device

import (
	"testing"
	"time"
)

func TestTrailingPrompt(t *testing.T) {
	testCases := []struct {
		name   string
		buf    string
		want   string
		wantOK bool
	}{
		{"privileged", "some output\r\nedge-sw1#", "edge-sw1#", true},
		{"user mode", "banner text\nrouter01>", "router01>", true},
		{"trailing space", "out\r\ncore-rtr-2# ", "core-rtr-2#", true},
		{"linux shell", "uptime output\nadmin@probe-host:~$", "admin@probe-host:~$", true},
		{"bare prompt buffer", "sw3#", "sw3#", true},
		{"terminated output", "show version output\n", "", false},
		{"prose tail", "Building configuration...", "", false},
		{"password challenge", "Password:", "", false},
		{"empty", "", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := trailingPrompt(tc.buf)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("trailingPrompt(%q) = %q, %v; want %q, %v", tc.buf, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestCleanOutput(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		command string
		want    string
	}{
		{
			name:    "echo and prompt stripped",
			raw:     "show version\r\nCisco IOS XE Software\r\nuptime is 4 weeks\r\nedge-sw1#",
			command: "show version",
			want:    "Cisco IOS XE Software\nuptime is 4 weeks",
		},
		{
			name:    "no echo when pty hides it",
			raw:     "Cisco IOS XE Software\r\nedge-sw1#",
			command: "show version",
			want:    "Cisco IOS XE Software",
		},
		{
			name:    "interior blank lines preserved",
			raw:     "show ip route\r\n\r\nGateway of last resort is not set\r\n\r\n10.0.0.0/8 is subnetted\r\nrtr#",
			command: "show ip route",
			want:    "Gateway of last resort is not set\n\n10.0.0.0/8 is subnetted",
		},
		{
			name:    "prompt only",
			raw:     "terminal length 0\r\nsw1#",
			command: "terminal length 0",
			want:    "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cleanOutput(tc.raw, tc.command); got != tc.want {
				t.Errorf("cleanOutput = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHasErrorMarker(t *testing.T) {
	testCases := []struct {
		name   string
		output string
		want   bool
	}{
		{"invalid input", "% Invalid input detected at '^' marker.", true},
		{"incomplete command", "show ver\n% Incomplete command.", true},
		{"indented marker", "   % Ambiguous command", true},
		{"syslog percent is not a marker", "%LINEPROTO-5-UPDOWN: Line protocol on Interface Gi0/1 changed", false},
		{"clean output", "Cisco IOS Software", false},
		{"empty", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hasErrorMarker(tc.output); got != tc.want {
				t.Errorf("hasErrorMarker(%q) = %v, want %v", tc.output, got, tc.want)
			}
		})
	}
}

func TestAsksForPassword(t *testing.T) {
	testCases := []struct {
		name string
		buf  string
		want bool
	}{
		{"standard challenge", "Password:", true},
		{"trailing space", "Password: ", true},
		{"lowercase", "password:", true},
		{"challenge mid buffer", "Password: denied\nmore output", false},
		{"empty", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := asksForPassword(tc.buf); got != tc.want {
				t.Errorf("asksForPassword(%q) = %v, want %v", tc.buf, got, tc.want)
			}
		})
	}
}

func TestClientConfig(t *testing.T) {
	t.Run("password auth", func(t *testing.T) {
		cfg, err := ClientConfig(Credentials{Username: "admin", Password: "pw"}, 30*time.Second)
		if err != nil {
			t.Fatalf("sshClientConfig returned error: %v", err)
		}
		if cfg.User != "admin" {
			t.Errorf("user = %q, want admin", cfg.User)
		}
		if len(cfg.Auth) != 1 {
			t.Errorf("got %d auth methods, want 1", len(cfg.Auth))
		}
		if cfg.Timeout != 30*time.Second {
			t.Errorf("timeout = %v", cfg.Timeout)
		}
	})

	t.Run("no credentials", func(t *testing.T) {
		if _, err := ClientConfig(Credentials{Username: "admin"}, 0); err == nil {
			t.Fatal("expected error when neither password nor key is set")
		}
	})

	t.Run("malformed key", func(t *testing.T) {
		if _, err := ClientConfig(Credentials{Username: "admin", PrivateKey: "not a key"}, 0); err == nil {
			t.Fatal("expected parse error for malformed private key")
		}
	})
}

func TestSSHOptionsDefaults(t *testing.T) {
	opts := SSHOptions{}.withDefaults()
	if opts.ConnectTimeout != 30*time.Second || opts.BannerTimeout != 30*time.Second {
		t.Errorf("timeouts = %v/%v, want 30s/30s", opts.ConnectTimeout, opts.BannerTimeout)
	}
	if opts.CommandTimeout != 10*time.Second {
		t.Errorf("command timeout = %v, want 10s", opts.CommandTimeout)
	}
	if opts.DelayFactor != 1 {
		t.Errorf("delay factor = %d, want 1", opts.DelayFactor)
	}

	set := SSHOptions{ConnectTimeout: time.Second, BannerTimeout: 2 * time.Second, CommandTimeout: 3 * time.Second, DelayFactor: 4}.withDefaults()
	if set != (SSHOptions{ConnectTimeout: time.Second, BannerTimeout: 2 * time.Second, CommandTimeout: 3 * time.Second, DelayFactor: 4}) {
		t.Errorf("explicit options were overwritten: %+v", set)
	}
}

func TestCommandWaitScalesWithDelayFactor(t *testing.T) {
	c := &shellConn{opts: SSHOptions{CommandTimeout: 10 * time.Second, DelayFactor: 2}}
	if got := c.commandWait(); got != 20*time.Second {
		t.Errorf("commandWait = %v, want 20s", got)
	}
}
