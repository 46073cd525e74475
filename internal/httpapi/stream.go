package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"nearby/core-go/internal/models"
)

// sseStream writes server-sent events. One goroutine owns it.
type sseStream struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	heartbeat time.Duration
}

func (h *Handler) startStream(w http.ResponseWriter) (*sseStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "stream_unsupported", "streaming unsupported", nil)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseStream{w: w, flusher: flusher, heartbeat: h.deps.StreamHeartbeat}, true
}

func (s *sseStream) send(event string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) done() {
	_, _ = fmt.Fprint(s.w, "event: done\ndata: end\n\n")
	s.flusher.Flush()
}

// streamEvents forwards every value from in as an event until in closes, ctx is
// done, or the client goes away. Idle periods are filled with heartbeat comments.
func streamEvents[T any](ctx context.Context, s *sseStream, event string, in <-chan T, encode func(T) any) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				return
			}
		case v, ok := <-in:
			if !ok {
				s.done()
				return
			}
			if err := s.send(event, encode(v)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) handleUserStream(w http.ResponseWriter, r *http.Request) {
	if h.deps.Users == nil {
		h.writeUnavailable(w, "users")
		return
	}

	updates, err := h.deps.Users.Watch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "stream user")
		return
	}

	stream, ok := h.startStream(w)
	if !ok {
		return
	}
	streamEvents(r.Context(), stream, "user", updates, func(u models.User) any { return toUser(u) })
}
