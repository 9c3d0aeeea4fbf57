package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/autonoc/autonoc/internal/auth"
	"github.com/autonoc/autonoc/internal/device"
	"github.com/autonoc/autonoc/internal/pipeline"
	"github.com/autonoc/autonoc/internal/runner"
	"github.com/autonoc/autonoc/internal/store"
)

const defaultHistoryPage = 50

// RunHandler serves the diagnostic run endpoints.
type RunHandler struct {
	runner      *runner.Runner
	querier     store.Querier
	authService *auth.Service
	hub         *Hub
}

// NewRunHandler creates a run handler.
func NewRunHandler(r *runner.Runner, querier store.Querier, authService *auth.Service, hub *Hub) *RunHandler {
	return &RunHandler{runner: r, querier: querier, authService: authService, hub: hub}
}

type createRunInput struct {
	ProfileID *uuid.UUID      `json:"profile_id,omitempty"`
	Target    *targetInput    `json:"target,omitempty"`
	Creds     *credsInput     `json:"credentials,omitempty"`
	Commands  []string        `json:"commands,omitempty"`
}

type targetInput struct {
	Transport string `json:"transport"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
}

type credsInput struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	EnableSecret string `json:"enable_secret"`
	PrivateKey   string `json:"private_key"`
	Passphrase   string `json:"passphrase"`
}

// runStatus is the metadata view of a run, shared by the registry and
// history paths.
type runStatus struct {
	ID            uuid.UUID  `json:"id"`
	Host          string     `json:"host"`
	Port          int        `json:"port"`
	Transport     string     `json:"transport"`
	Stage         string     `json:"stage"`
	Degraded      bool       `json:"degraded"`
	Failure       string     `json:"failure,omitempty"`
	Error         string     `json:"error,omitempty"`
	Verdict       string     `json:"verdict,omitempty"`
	Triggered     []string   `json:"triggered,omitempty"`
	CommandsTotal int        `json:"commands_total"`
	CommandsOK    int        `json:"commands_ok"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

func statusOfState(state runner.RunState) runStatus {
	st := runStatus{
		ID:        state.ID,
		Host:      state.Host,
		Port:      state.Port,
		Transport: state.Transport,
		Stage:     state.Stage,
	}
	res := state.Result
	if res == nil {
		return st
	}
	st.Degraded = res.Degraded
	st.Failure = string(res.Failure)
	st.Verdict = verdictOf(res)
	st.CommandsTotal = res.CommandsTotal
	st.CommandsOK = res.CommandsOK
	if res.Err != nil {
		st.Error = res.Err.Error()
	}
	for _, cat := range res.Triggered {
		st.Triggered = append(st.Triggered, string(cat))
	}
	if !res.StartedAt.IsZero() {
		st.StartedAt = &res.StartedAt
	}
	if !res.FinishedAt.IsZero() {
		st.FinishedAt = &res.FinishedAt
	}
	return st
}

func statusOfRecord(rec *store.RunRecord) runStatus {
	st := runStatus{
		ID:            rec.ID,
		Host:          rec.Host,
		Port:          rec.Port,
		Transport:     rec.Transport,
		Stage:         rec.Stage,
		Degraded:      rec.Degraded,
		Failure:       rec.Failure,
		Error:         rec.Error,
		Verdict:       rec.Verdict,
		Triggered:     rec.Triggered,
		CommandsTotal: rec.CommandsTotal,
		CommandsOK:    rec.CommandsOK,
	}
	if !rec.StartedAt.IsZero() {
		st.StartedAt = &rec.StartedAt
	}
	if !rec.FinishedAt.IsZero() {
		st.FinishedAt = &rec.FinishedAt
	}
	return st
}

func verdictOf(res *pipeline.Result) string {
	if res.Report == nil {
		return ""
	}
	return string(res.Report.Verdict)
}

// Create handles POST /api/v1/runs
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeJSON[createRunInput](w, r)
	if !ok {
		return
	}

	var target device.Target
	var creds device.Credentials

	switch {
	case input.ProfileID != nil:
		profile, err := h.querier.GetProfile(r.Context(), *input.ProfileID)
		if handleStoreError(w, r, err, "Profile") {
			return
		}
		if err := h.authService.DecryptJSON(profile.Secrets, &creds); err != nil {
			sendError(w, r, http.StatusInternalServerError, "DECRYPT_ERROR", "Failed to decrypt profile credentials", nil)
			return
		}
		target = device.Target{
			Transport: device.Transport(profile.Transport),
			Host:      profile.Host,
			Port:      profile.Port,
		}

	case input.Target != nil:
		if input.Creds == nil {
			sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Credentials are required with an inline target", nil)
			return
		}
		target = device.Target{
			Transport: device.Transport(input.Target.Transport),
			Host:      input.Target.Host,
			Port:      input.Target.Port,
		}
		creds = device.Credentials{
			Username:     input.Creds.Username,
			Password:     input.Creds.Password,
			EnableSecret: input.Creds.EnableSecret,
			PrivateKey:   input.Creds.PrivateKey,
			Passphrase:   input.Creds.Passphrase,
		}

	default:
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Either profile_id or target is required", nil)
		return
	}

	if msg := validateTarget(&target); msg != "" {
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", msg, nil)
		return
	}

	req := pipeline.Request{
		Target:      target,
		Credentials: creds,
	}
	if len(input.Commands) > 0 {
		req.Commands = device.Specs(input.Commands...)
	}

	runID, err := h.runner.Enqueue(req)
	if err != nil {
		if errors.Is(err, runner.ErrQueueFull) {
			sendError(w, r, http.StatusServiceUnavailable, "QUEUE_FULL", "Run queue is full, retry later", nil)
			return
		}
		sendError(w, r, http.StatusInternalServerError, "ENQUEUE_ERROR", "Failed to enqueue run", err.Error())
		return
	}

	sendJSON(w, http.StatusAccepted, map[string]any{"run_id": runID})
}

// validateTarget fills the default port and reports the first problem.
func validateTarget(t *device.Target) string {
	switch t.Transport {
	case device.TransportSSH:
		if t.Port == 0 {
			t.Port = 22
		}
	case device.TransportWinRM:
		if t.Port == 0 {
			t.Port = 5985
		}
	default:
		return "Transport must be ssh or winrm"
	}
	if t.Host == "" {
		return "Host is required"
	}
	if t.Port < 1 || t.Port > 65535 {
		return "Port must be between 1 and 65535"
	}
	return ""
}

// Get handles GET /api/v1/runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if state, ok := h.runner.Registry().Get(id); ok {
		sendJSON(w, http.StatusOK, statusOfState(state))
		return
	}

	rec, err := h.querier.GetRun(r.Context(), id)
	if handleStoreError(w, r, err, "Run") {
		return
	}
	sendJSON(w, http.StatusOK, statusOfRecord(rec))
}

// List handles GET /api/v1/runs
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryPage
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return
		}
		if parsed > 200 {
			parsed = 200
		}
		limit = parsed
	}

	records, err := h.querier.ListRuns(r.Context(), limit)
	if err != nil {
		sendError(w, r, http.StatusInternalServerError, "DB_ERROR", "Failed to list runs", err.Error())
		return
	}

	statuses := make([]runStatus, 0, len(records))
	for _, rec := range records {
		statuses = append(statuses, statusOfRecord(rec))
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"data":  statuses,
		"total": len(statuses),
	})
}

// artifact looks up the run result for an artifact endpoint, writing
// the 404 responses the degraded-failure rule calls for.
func (h *RunHandler) artifact(w http.ResponseWriter, r *http.Request) (*pipeline.Result, bool) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return nil, false
	}

	state, ok := h.runner.Registry().Get(id)
	if !ok {
		if _, err := h.querier.GetRun(r.Context(), id); err == nil {
			sendError(w, r, http.StatusNotFound, "ARTIFACT_UNAVAILABLE", "Run artifacts are no longer held in memory", nil)
		} else {
			sendError(w, r, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
		}
		return nil, false
	}
	if state.Result == nil {
		sendError(w, r, http.StatusNotFound, "ARTIFACT_UNAVAILABLE", "Run has not finished yet", map[string]any{"stage": state.Stage})
		return nil, false
	}
	return state.Result, true
}

// Raw handles GET /api/v1/runs/{id}/raw
func (h *RunHandler) Raw(w http.ResponseWriter, r *http.Request) {
	res, ok := h.artifact(w, r)
	if !ok {
		return
	}
	if res.Raw == "" {
		sendError(w, r, http.StatusNotFound, "ARTIFACT_UNAVAILABLE", "Run failed before a transcript was captured", map[string]any{"failure": string(res.Failure)})
		return
	}
	sendText(w, http.StatusOK, res.Raw)
}

// Sanitized handles GET /api/v1/runs/{id}/sanitized
func (h *RunHandler) Sanitized(w http.ResponseWriter, r *http.Request) {
	res, ok := h.artifact(w, r)
	if !ok {
		return
	}
	if res.Sanitized == "" {
		sendError(w, r, http.StatusNotFound, "ARTIFACT_UNAVAILABLE", "Run failed before the transcript was sanitized", map[string]any{"failure": string(res.Failure)})
		return
	}
	sendText(w, http.StatusOK, res.Sanitized)
}

// Report handles GET /api/v1/runs/{id}/report
func (h *RunHandler) Report(w http.ResponseWriter, r *http.Request) {
	res, ok := h.artifact(w, r)
	if !ok {
		return
	}
	if res.Report == nil {
		sendError(w, r, http.StatusNotFound, "ARTIFACT_UNAVAILABLE", "Run failed before analysis produced a report", map[string]any{"failure": string(res.Failure)})
		return
	}
	sendJSON(w, http.StatusOK, res.Report)
}

// Events handles GET /api/v1/runs/{id}/events (websocket)
func (h *RunHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	state, ok := h.runner.Registry().Get(id)
	if !ok {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "Run not found or no longer streaming", nil)
		return
	}

	initial := []pipeline.StageEvent{{
		RunID: id,
		Stage: pipeline.Stage(state.Stage),
		At:    time.Now().UTC(),
	}}
	h.hub.Subscribe(w, r, id, initial)
}
