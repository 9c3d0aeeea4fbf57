package api

import (
	"net/http"

	"github.com/autonoc/autonoc/internal/probe"
)

// ProbeHandler serves one-shot reachability checks.
type ProbeHandler struct {
	prober *probe.Prober
}

func NewProbeHandler(prober *probe.Prober) *ProbeHandler {
	return &ProbeHandler{prober: prober}
}

// Probe handles POST /api/v1/probe. An unreachable device is a normal
// 200 with ok false; only a malformed request is an error.
func (h *ProbeHandler) Probe(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[probe.Request](w, r)
	if !ok {
		return
	}

	result, err := h.prober.Probe(r.Context(), req)
	if err != nil {
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid probe request", err.Error())
		return
	}

	sendJSON(w, http.StatusOK, result)
}
