package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"eventmaster-auth/internal/model"
	"eventmaster-auth/internal/service"
	"eventmaster-auth/pkg/apierror"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.CredentialsRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := payload.Validate(); err != nil {
		writeError(w, err)
		return
	}

	tokens, err := h.service.Register(r.Context(), payload.Login, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.CredentialsRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := payload.Validate(); err != nil {
		writeError(w, err)
		return
	}

	tokens, err := h.service.Login(r.Context(), payload.Login, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// RefreshToken accepts the token as a raw JSON string, as
// {"refreshToken": "..."}, or as a plain-text body.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := parseRefreshBody(data)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := payload.Validate(); err != nil {
		writeError(w, err)
		return
	}

	tokens, err := h.service.RefreshToken(r.Context(), payload.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if err := model.ValidateID("userId", userID); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.Revoke(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func parseRefreshBody(data []byte) (model.RefreshRequest, error) {
	trimmed := bytes.TrimSpace(data)

	switch {
	case len(trimmed) == 0:
		return model.RefreshRequest{}, nil
	case trimmed[0] == '"':
		var token string
		if err := json.Unmarshal(trimmed, &token); err != nil {
			return model.RefreshRequest{}, apierror.BadRequest("invalid JSON body", "")
		}
		return model.RefreshRequest{RefreshToken: token}, nil
	case trimmed[0] == '{':
		var payload model.RefreshRequest
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return model.RefreshRequest{}, apierror.BadRequest("invalid JSON body", "")
		}
		return payload, nil
	default:
		return model.RefreshRequest{RefreshToken: string(trimmed)}, nil
	}
}
