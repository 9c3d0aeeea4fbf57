package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chatReply(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	return body
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"}, nil)
}

func TestAnalyzeSendsChatRequest(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	var gotReq chatRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write(chatReply(t, "VERDICT: NORMAL\n\nDevice Summary\nAll good."))
	})

	report, err := client.Analyze(context.Background(), "Connected to: sw1#\nshow version output")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if gotReq.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", gotReq.Temperature)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "show version output") {
		t.Error("user message does not carry the transcript")
	}
	if report.Model != "test-model" {
		t.Errorf("report model = %q", report.Model)
	}
}

func TestAnalyzeVerdicts(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		want    Verdict
	}{
		{"normal", "VERDICT: NORMAL\n\nDevice Summary\nHealthy.", VerdictNormal},
		{"warning", "VERDICT: WARNING\n\nInterface Status\nGi0/2 down.", VerdictWarning},
		{"critical", "VERDICT: CRITICAL - uplink down\n\nRecommended Actions\nDispatch.", VerdictCritical},
		{"markdown decorated", "**VERDICT: WARNING**\n\nNotes follow.", VerdictWarning},
		{"fenced answer", "```\nVERDICT: NORMAL\nAll fine.\n```", VerdictNormal},
		{"no verdict line", "The device looks healthy overall.", VerdictUnknown},
		{"verdict buried too deep", "a\nb\nc\nd\ne\nVERDICT: NORMAL", VerdictUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write(chatReply(t, tc.content))
			})

			report, err := client.Analyze(context.Background(), "transcript")
			if err != nil {
				t.Fatalf("Analyze returned error: %v", err)
			}
			if report.Verdict != tc.want {
				t.Errorf("verdict = %q, want %q", report.Verdict, tc.want)
			}
		})
	}
}

func TestAnalyzeFailures(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}},
		{"empty choices", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}},
		{"blank content", func(w http.ResponseWriter, r *http.Request) {
			w.Write(chatReply(t, "   "))
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":`))
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.handler)
			report, err := client.Analyze(context.Background(), "transcript")
			if report != nil {
				t.Fatal("expected no report")
			}
			var analysisErr *AnalysisError
			if !errors.As(err, &analysisErr) {
				t.Fatalf("expected AnalysisError, got %v", err)
			}
		})
	}
}

func TestAnalyzeWithoutKey(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://127.0.0.1:1", Model: "m"}, nil)
	report, err := client.Analyze(context.Background(), "transcript")
	if report != nil {
		t.Fatal("expected no report")
	}
	var analysisErr *AnalysisError
	if !errors.As(err, &analysisErr) {
		t.Fatalf("expected AnalysisError, got %v", err)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Options{APIKey: "k"}, nil)
	if client.baseURL != DefaultBaseURL {
		t.Errorf("base URL = %q", client.baseURL)
	}
	if client.Model() != DefaultModel {
		t.Errorf("model = %q", client.Model())
	}

	trimmed := NewClient(Options{BaseURL: "http://example.test/v1/", APIKey: "k"}, nil)
	if trimmed.baseURL != "http://example.test/v1" {
		t.Errorf("trailing slash not trimmed: %q", trimmed.baseURL)
	}
}

func TestUnwrapFences(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "VERDICT: NORMAL\ntext", "VERDICT: NORMAL\ntext"},
		{"bare fence", "```\nVERDICT: NORMAL\ntext\n```", "VERDICT: NORMAL\ntext"},
		{"tagged fence", "```markdown\nVERDICT: WARNING\n```", "VERDICT: WARNING"},
		{"single line fence", "```VERDICT: NORMAL```", "VERDICT: NORMAL"},
		{"fence only", "```", "```"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := unwrapFences(tc.in); got != tc.want {
				t.Errorf("unwrapFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
