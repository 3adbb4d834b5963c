package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/koopa0/secondbrain/internal/store"
)

type shareHandler struct {
	shares   ShareStore
	contents ContentManager
	logger   *slog.Logger
}

type setSharingRequest struct {
	Share bool `json:"share"`
}

func (h *shareHandler) setSharing(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid user identity")
		return
	}

	var req setSharingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	if !req.Share {
		if err := h.shares.DisableShareLink(r.Context(), owner); err != nil {
			h.logger.Error("disabling share link failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not update sharing")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "sharing disabled"})
		return
	}

	hash, err := h.shares.EnsureShareLink(r.Context(), owner)
	if err != nil {
		h.logger.Error("creating share link failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not update sharing")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": hash})
}

func (h *shareHandler) viewShared(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")

	owner, username, err := h.shares.ResolveShareLink(r.Context(), hash)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "share link not found")
		return
	}
	if err != nil {
		h.logger.Error("resolving share link failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not load shared brain")
		return
	}

	var out []contentResponse
	if h.contents != nil {
		contents, err := h.contents.List(r.Context(), owner)
		if err != nil {
			h.logger.Error("listing shared contents failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not load shared brain")
			return
		}
		out = make([]contentResponse, 0, len(contents))
		for _, c := range contents {
			out = append(out, toContentResponse(c))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"username": username,
		"contents": out,
	})
}
