package api

import (
	"net/http"

	"github.com/autonoc/autonoc/internal/auth"
)

// SystemHandler serves authentication.
type SystemHandler struct {
	authService *auth.Service
}

func NewSystemHandler(authService *auth.Service) *SystemHandler {
	return &SystemHandler{authService: authService}
}

// Login handles POST /api/v1/auth/login
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[auth.LoginRequest](w, r)
	if !ok {
		return
	}

	if req.Username == "" || req.Password == "" {
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Username and password are required", nil)
		return
	}

	response, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		sendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials", nil)
		return
	}

	sendJSON(w, http.StatusOK, response)
}
