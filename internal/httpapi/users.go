package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nearby/core-go/internal/geo"
	"nearby/core-go/internal/models"
	"nearby/core-go/internal/presence"
	"nearby/core-go/internal/users"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if h.deps.Users == nil {
		h.writeUnavailable(w, "users")
		return
	}

	rows, err := h.deps.Users.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "list users")
		return
	}
	h.writeJSON(w, http.StatusOK, toUsers(rows))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req users.RegisterInput
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}
	if h.deps.Users == nil {
		h.writeUnavailable(w, "users")
		return
	}

	u, created, err := h.deps.Users.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, "register user")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, toUser(u))
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if h.deps.Users == nil {
		h.writeUnavailable(w, "users")
		return
	}

	u, err := h.deps.Users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "fetch user")
		return
	}
	h.writeJSON(w, http.StatusOK, toUser(u))
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req users.ProfileInput
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}
	if h.deps.Users == nil {
		h.writeUnavailable(w, "users")
		return
	}

	u, err := h.deps.Users.UpdateProfile(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err, "update user")
		return
	}
	h.writeJSON(w, http.StatusOK, toUser(u))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if h.deps.Presence == nil {
		h.writeUnavailable(w, "presence")
		return
	}

	state, ok := h.deps.Presence.State(chi.URLParam(r, "id"))
	if !ok {
		h.writeServiceError(w, r, presence.ErrNoSession, "get session")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

func (h *Handler) handleEnterSession(w http.ResponseWriter, r *http.Request) {
	if h.deps.Presence == nil {
		h.writeUnavailable(w, "presence")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.deps.Presence.Enter(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, "open session")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"state": presence.StateActive})
}

func (h *Handler) handleTransitionSession(w http.ResponseWriter, r *http.Request) {
	var req sessionUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}
	if req.State == "" {
		h.writeServiceError(w, r, models.NewValidationError(models.FieldError{Field: "state", Message: "is required"}), "update session")
		return
	}
	if h.deps.Presence == nil {
		h.writeUnavailable(w, "presence")
		return
	}

	state := presence.ParseState(req.State)
	if err := h.deps.Presence.Transition(r.Context(), chi.URLParam(r, "id"), state); err != nil {
		h.writeServiceError(w, r, err, "update session")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

func (h *Handler) handleLeaveSession(w http.ResponseWriter, r *http.Request) {
	if h.deps.Presence == nil {
		h.writeUnavailable(w, "presence")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.deps.Presence.Leave(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, "close session")
		return
	}
	if h.deps.Gate != nil {
		h.deps.Gate.Forget(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req locationUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}

	var fields []models.FieldError
	if req.Latitude == nil {
		fields = append(fields, models.FieldError{Field: "latitude", Message: "is required"})
	}
	if req.Longitude == nil {
		fields = append(fields, models.FieldError{Field: "longitude", Message: "is required"})
	}
	if len(fields) > 0 {
		h.writeServiceError(w, r, models.NewValidationError(fields...), "update location")
		return
	}
	if h.deps.Users == nil {
		h.writeUnavailable(w, "users")
		return
	}

	id := chi.URLParam(r, "id")
	p := geo.Point{Lat: *req.Latitude, Lon: *req.Longitude}
	if !geo.Valid(p) {
		h.writeServiceError(w, r, models.NewValidationError(models.FieldError{Field: "location", Message: "is not a valid coordinate"}), "update location")
		return
	}

	if h.deps.Gate != nil && !h.deps.Gate.Accept(id, p, h.now()) {
		h.deps.Metrics.ObserveLocationSample(false)
		h.writeJSON(w, http.StatusOK, map[string]any{"accepted": false})
		return
	}

	u, err := h.deps.Users.RecordLocation(r.Context(), id, p)
	if err != nil {
		if h.deps.Gate != nil {
			h.deps.Gate.Forget(id)
		}
		h.writeServiceError(w, r, err, "update location")
		return
	}
	h.deps.Metrics.ObserveLocationSample(true)
	h.writeJSON(w, http.StatusOK, map[string]any{"accepted": true, "user": toUser(u)})
}
