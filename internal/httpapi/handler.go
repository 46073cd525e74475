package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"nearby/core-go/internal/metrics"
	"nearby/core-go/internal/models"
	"nearby/core-go/internal/presence"
	"nearby/core-go/internal/proximity"
	"nearby/core-go/internal/realtime"
	"nearby/core-go/internal/social"
	"nearby/core-go/internal/users"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the API is built on. Nil services answer 503.
type Deps struct {
	Store     Pinger
	Hub       *realtime.Hub
	Users     *users.Service
	Presence  *presence.Tracker
	Gate      *presence.SampleGate
	Proximity *proximity.Service
	Social    *social.Service
	Metrics   *metrics.Metrics

	RequestTimeout  time.Duration
	StreamHeartbeat time.Duration
	Now             func() time.Time
}

type Handler struct {
	log  zerolog.Logger
	deps Deps
	now  func() time.Time
}

func NewHandler(log zerolog.Logger, deps Deps) *Handler {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 15 * time.Second
	}
	if deps.StreamHeartbeat <= 0 {
		deps.StreamHeartbeat = 15 * time.Second
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{log: log, deps: deps, now: now}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.deps.Metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/users", func(r chi.Router) {
				timeout := middleware.Timeout(h.deps.RequestTimeout)

				r.With(timeout).Get("/", h.handleListUsers)
				r.With(timeout).Post("/register", h.handleRegister)

				r.Route("/{id}", func(r chi.Router) {
					// Streams stay open for as long as the client listens.
					r.Get("/stream", h.handleUserStream)
					r.Get("/nearby/stream", h.handleNearbyStream)
					r.Get("/friends/stream", h.handleFriendsStream)
					r.Get("/recents/stream", h.handleRecentsStream)

					r.Group(func(r chi.Router) {
						r.Use(timeout)

						r.Get("/", h.handleGetUser)
						r.Put("/", h.handleUpdateUser)

						r.Get("/session", h.handleGetSession)
						r.Post("/session", h.handleEnterSession)
						r.Put("/session", h.handleTransitionSession)
						r.Delete("/session", h.handleLeaveSession)

						r.Put("/location", h.handleUpdateLocation)
						r.Get("/nearby", h.handleNearby)

						r.Get("/friends", h.handleListFriends)
						r.Put("/friends/{friendId}", h.handleAddFriend)
						r.Delete("/friends/{friendId}", h.handleRemoveFriend)

						r.Get("/recents", h.handleListRecents)
						r.Post("/recents/{otherId}", h.handleRecordView)
					})
				})
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		h.deps.Metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), duration)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

// writeServiceError maps domain errors onto the error envelope. Anything
// unrecognised is logged and reported as a store failure.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, what string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		fields := make(map[string]any, len(verr.Fields))
		for _, f := range verr.Fields {
			fields[f.Field] = f.Message
		}
		h.writeError(w, http.StatusBadRequest, "validation_failed", "request failed validation", map[string]any{"fields": fields})
	case errors.Is(err, models.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "user not found", map[string]any{"id": chi.URLParam(r, "id")})
	case errors.Is(err, models.ErrPhoneTaken):
		h.writeError(w, http.StatusConflict, "conflict", "phone number already registered", nil)
	case errors.Is(err, models.ErrSelfReference):
		h.writeError(w, http.StatusBadRequest, "validation_failed", "a user cannot reference themselves", nil)
	case errors.Is(err, models.ErrNoLocation):
		h.writeError(w, http.StatusConflict, "conflict", "user has no location yet", nil)
	case errors.Is(err, presence.ErrNoSession):
		h.writeError(w, http.StatusConflict, "conflict", "no open session for user", nil)
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "store did not answer in time", nil)
	default:
		h.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg(what + " failed")
		h.writeError(w, http.StatusInternalServerError, "store_error", "failed to "+what, nil)
	}
}

func (h *Handler) writeInvalidJSON(w http.ResponseWriter, err error) {
	h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
}

func (h *Handler) writeUnavailable(w http.ResponseWriter, what string) {
	h.writeError(w, http.StatusServiceUnavailable, "store_unavailable", what+" not configured", nil)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

// decodeOptionalJSON is decodeJSONStrict for endpoints where the body may be empty.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := decodeJSONStrict(r, dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.deps.Store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "store not configured", nil)
		return
	}

	if err := h.deps.Store.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "store not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}
