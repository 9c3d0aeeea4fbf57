package api

import (
	"net/http"

	"github.com/autonoc/autonoc/internal/sanitize"
)

// SanitizeHandler exposes the redaction engine as a standalone tool.
type SanitizeHandler struct {
	sanitizer *sanitize.Sanitizer
}

func NewSanitizeHandler(sanitizer *sanitize.Sanitizer) *SanitizeHandler {
	return &SanitizeHandler{sanitizer: sanitizer}
}

type sanitizeInput struct {
	Text string `json:"text"`
}

// Sanitize handles POST /api/v1/sanitize
func (h *SanitizeHandler) Sanitize(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeJSON[sanitizeInput](w, r)
	if !ok {
		return
	}

	result := h.sanitizer.Apply(input.Text)
	sendJSON(w, http.StatusOK, result)
}
