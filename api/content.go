package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/secondbrain/internal/ingest"
	"github.com/koopa0/secondbrain/internal/store"
	"github.com/koopa0/secondbrain/internal/vecstore"
)

type contentHandler struct {
	contents ContentManager
	logger   *slog.Logger
}

type createContentRequest struct {
	Link  string   `json:"link"`
	Type  string   `json:"type"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

type contentResponse struct {
	ID        string    `json:"id"`
	Link      string    `json:"link"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

func toContentResponse(c store.Content) contentResponse {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return contentResponse{
		ID:        c.ID.String(),
		Link:      c.Link,
		Type:      string(c.Type),
		Title:     c.Title,
		Tags:      tags,
		CreatedAt: c.CreatedAt,
	}
}

// ownerID extracts the authenticated user's UUID from the request context.
func ownerID(r *http.Request) (uuid.UUID, bool) {
	uid, ok := userIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(uid)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (h *contentHandler) create(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid user identity")
		return
	}

	var req createContentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	contentType := vecstore.ContentType(req.Type)
	if !contentType.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"type must be one of: document, tweet, video, link")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
		return
	}
	if strings.TrimSpace(req.Link) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "link is required")
		return
	}

	content, err := h.contents.Add(r.Context(), ingest.AddParams{
		OwnerID: owner,
		Link:    req.Link,
		Type:    contentType,
		Title:   req.Title,
		Tags:    req.Tags,
	})
	if err != nil {
		h.logger.Error("content creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not save content")
		return
	}

	writeJSON(w, http.StatusCreated, toContentResponse(content))
}

func (h *contentHandler) list(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid user identity")
		return
	}

	contents, err := h.contents.List(r.Context(), owner)
	if err != nil {
		h.logger.Error("content listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list contents")
		return
	}

	out := make([]contentResponse, 0, len(contents))
	for _, c := range contents {
		out = append(out, toContentResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"contents": out})
}

func (h *contentHandler) remove(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid user identity")
		return
	}

	contentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid content id")
		return
	}

	err = h.contents.Remove(r.Context(), owner, contentID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "content not found")
		return
	}
	if err != nil {
		h.logger.Error("content removal failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not delete content")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
