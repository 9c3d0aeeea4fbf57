package device

import (
	"strings"
	"testing"
	"time"
)

func TestTranscriptRender(t *testing.T) {
	tr := &Transcript{
		Banner: "Connected to: edge-sw1#",
		Results: []CommandResult{
			{Command: "show version", Output: "Cisco IOS Software, Version 15.2", OK: true, Timestamp: time.Now()},
			{Command: "show ip route", Output: "Gateway of last resort is not set", OK: true, Timestamp: time.Now()},
		},
	}

	sep := strings.Repeat("=", 30)
	want := "Connected to: edge-sw1#\n" +
		"\n" + sep + "\n[Command] show version\nCisco IOS Software, Version 15.2\n" +
		"\n" + sep + "\n[Command] show ip route\nGateway of last resort is not set\n"
	if got := tr.Render(); got != want {
		t.Errorf("Render mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestTranscriptRenderNoResults(t *testing.T) {
	tr := &Transcript{Banner: "Connected to: lab-rtr>"}
	if got := tr.Render(); got != "Connected to: lab-rtr>\n" {
		t.Errorf("Render = %q", got)
	}
}

func TestSpecs(t *testing.T) {
	specs := Specs("terminal length 0", "show version")
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}
	if specs[0].Text != "terminal length 0" || specs[1].Text != "show version" {
		t.Errorf("specs = %+v", specs)
	}
	for i, s := range specs {
		if s.Timeout != 0 {
			t.Errorf("spec %d timeout = %v, want zero", i, s.Timeout)
		}
	}
}

func TestTargetAddr(t *testing.T) {
	target := Target{Transport: TransportSSH, Host: "10.0.0.1", Port: 2222}
	if got := target.Addr(); got != "10.0.0.1:2222" {
		t.Errorf("Addr = %q, want %q", got, "10.0.0.1:2222")
	}
}
