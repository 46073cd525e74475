package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nearby/core-go/internal/models"
	"nearby/core-go/internal/social"
)

func (h *Handler) handleListFriends(w http.ResponseWriter, r *http.Request) {
	if h.deps.Social == nil {
		h.writeUnavailable(w, "social")
		return
	}

	friends, err := h.deps.Social.Friends(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "list friends")
		return
	}
	h.writeJSON(w, http.StatusOK, toUsers(friends))
}

func (h *Handler) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	if h.deps.Social == nil {
		h.writeUnavailable(w, "social")
		return
	}

	if err := h.deps.Social.AddFriend(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "friendId")); err != nil {
		h.writeServiceError(w, r, err, "add friend")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	if h.deps.Social == nil {
		h.writeUnavailable(w, "social")
		return
	}

	if err := h.deps.Social.RemoveFriend(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "friendId")); err != nil {
		h.writeServiceError(w, r, err, "remove friend")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRecents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Social == nil {
		h.writeUnavailable(w, "social")
		return
	}

	recents, err := h.deps.Social.Recents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "list recent users")
		return
	}
	h.writeJSON(w, http.StatusOK, toRecentUsers(recents))
}

func (h *Handler) handleRecordView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		h.writeInvalidJSON(w, err)
		return
	}
	if h.deps.Social == nil {
		h.writeUnavailable(w, "social")
		return
	}

	rec, err := h.deps.Social.RecordView(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "otherId"), req.Origin)
	if err != nil {
		h.writeServiceError(w, r, err, "record view")
		return
	}
	h.writeJSON(w, http.StatusOK, toRecentUser(rec.RecentUser, rec.IsFriend))
}

func (h *Handler) handleFriendsStream(w http.ResponseWriter, r *http.Request) {
	if h.deps.Social == nil {
		h.writeUnavailable(w, "social")
		return
	}

	updates, err := h.deps.Social.WatchFriends(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "stream friends")
		return
	}

	stream, ok := h.startStream(w)
	if !ok {
		return
	}
	streamEvents(r.Context(), stream, "friends", updates, func(us []models.User) any { return toUsers(us) })
}

func (h *Handler) handleRecentsStream(w http.ResponseWriter, r *http.Request) {
	if h.deps.Social == nil {
		h.writeUnavailable(w, "social")
		return
	}

	updates, err := h.deps.Social.WatchRecents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "stream recent users")
		return
	}

	stream, ok := h.startStream(w)
	if !ok {
		return
	}
	streamEvents(r.Context(), stream, "recents", updates, func(rs []social.RecentEntry) any { return toRecentUsers(rs) })
}
