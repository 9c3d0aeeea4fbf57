package api

import (
	"net/http"

	"github.com/autonoc/autonoc/internal/auth"
	"github.com/autonoc/autonoc/internal/device"
	"github.com/autonoc/autonoc/internal/store"
)

// ProfileHandler handles connection profile endpoints. Secrets are
// encrypted before storage and never leave through a response.
type ProfileHandler struct {
	querier     store.Querier
	authService *auth.Service
}

func NewProfileHandler(querier store.Querier, authService *auth.Service) *ProfileHandler {
	return &ProfileHandler{querier: querier, authService: authService}
}

type profileInput struct {
	Name        string     `json:"name"`
	Transport   string     `json:"transport"`
	Host        string     `json:"host"`
	Port        int        `json:"port"`
	Credentials credsInput `json:"credentials"`
}

// Create handles POST /api/v1/profiles
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeJSON[profileInput](w, r)
	if !ok {
		return
	}

	if input.Name == "" {
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Name is required", nil)
		return
	}
	target := device.Target{
		Transport: device.Transport(input.Transport),
		Host:      input.Host,
		Port:      input.Port,
	}
	if msg := validateTarget(&target); msg != "" {
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", msg, nil)
		return
	}
	if input.Credentials.Username == "" {
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Credentials username is required", nil)
		return
	}

	creds := device.Credentials{
		Username:     input.Credentials.Username,
		Password:     input.Credentials.Password,
		EnableSecret: input.Credentials.EnableSecret,
		PrivateKey:   input.Credentials.PrivateKey,
		Passphrase:   input.Credentials.Passphrase,
	}
	secrets, err := h.authService.EncryptJSON(creds)
	if err != nil {
		sendError(w, r, http.StatusInternalServerError, "ENCRYPTION_ERROR", "Failed to encrypt credentials", nil)
		return
	}

	profile := &store.Profile{
		Name:      input.Name,
		Transport: string(target.Transport),
		Host:      target.Host,
		Port:      target.Port,
		Username:  input.Credentials.Username,
		Secrets:   secrets,
	}
	if err := h.querier.CreateProfile(r.Context(), profile); err != nil {
		sendError(w, r, http.StatusInternalServerError, "DB_ERROR", "Failed to create profile", err.Error())
		return
	}

	sendJSON(w, http.StatusCreated, profile)
}

// List handles GET /api/v1/profiles
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.querier.ListProfiles(r.Context())
	if err != nil {
		sendError(w, r, http.StatusInternalServerError, "DB_ERROR", "Failed to list profiles", err.Error())
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"data":  profiles,
		"total": len(profiles),
	})
}

// Get handles GET /api/v1/profiles/{id}
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	profile, err := h.querier.GetProfile(r.Context(), id)
	if handleStoreError(w, r, err, "Profile") {
		return
	}

	sendJSON(w, http.StatusOK, profile)
}

// Delete handles DELETE /api/v1/profiles/{id}
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.querier.DeleteProfile(r.Context(), id); handleStoreError(w, r, err, "Profile") {
		return
	}

	sendJSON(w, http.StatusNoContent, nil)
}
