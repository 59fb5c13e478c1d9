package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"eventmaster-auth/internal/middleware"
	"eventmaster-auth/internal/model"
	"eventmaster-auth/internal/service"
)

type RoleHandler struct {
	service *service.RoleService
}

func NewRoleHandler(service *service.RoleService) *RoleHandler {
	return &RoleHandler{service: service}
}

func (h *RoleHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.GetAllRoles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, roles)
}

func (h *RoleHandler) GetRolesByUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if err := model.ValidateID("userId", userID); err != nil {
		writeError(w, err)
		return
	}

	roles, err := h.service.GetRolesByUserID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, roles)
}

func (h *RoleHandler) IsInUse(w http.ResponseWriter, r *http.Request) {
	roleID := strings.TrimSpace(chi.URLParam(r, "roleId"))
	if err := model.ValidateID("roleId", roleID); err != nil {
		writeError(w, err)
		return
	}

	usage, err := h.service.IsRoleInUse(r.Context(), roleID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, usage)
}

func (h *RoleHandler) SetRoleToUser(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeUserRole(w, r)
	if !ok {
		return
	}

	if err := h.service.SetRoleToUser(r.Context(), actorID(r), payload.UserID, payload.RoleID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *RoleHandler) RemoveRoleFromUser(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeUserRole(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveRoleFromUser(r.Context(), actorID(r), payload.UserID, payload.RoleID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func decodeUserRole(w http.ResponseWriter, r *http.Request) (model.UserRoleRequest, bool) {
	var payload model.UserRoleRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return payload, false
	}
	if err := payload.Validate(); err != nil {
		writeError(w, err)
		return payload, false
	}
	return payload, true
}

func actorID(r *http.Request) string {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Subject
}
