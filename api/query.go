package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/koopa0/secondbrain/internal/answer"
)

// maxQueryLen keeps a single query from eating the daily token budget.
const maxQueryLen = 2000

type queryHandler struct {
	answers Answerer
	cache   QueryCache
	logger  *slog.Logger
}

type queryRequest struct {
	Query      string `json:"query"`
	ForceFresh bool   `json:"force_fresh"`
}

type queryResponse struct {
	Response string `json:"response"`
	Cached   bool   `json:"cached"`
}

func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid user identity")
		return
	}

	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if len(query) > maxQueryLen {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long")
		return
	}

	ownerStr := owner.String()

	if h.cache != nil && !req.ForceFresh {
		if cached, hit := h.cache.Get(r.Context(), ownerStr, query); hit {
			writeJSON(w, http.StatusOK, queryResponse{Response: cached, Cached: true})
			return
		}
	}

	var opts []answer.Option
	if req.ForceFresh {
		opts = append(opts, answer.WithForceFresh())
	}

	response, err := h.answers.Answer(r.Context(), ownerStr, query, opts...)
	if err != nil {
		h.logger.Error("query failed", "error", err)
		writeError(w, http.StatusBadGateway, "query_failed", "could not generate a response")
		return
	}

	if h.cache != nil {
		h.cache.Set(r.Context(), ownerStr, query, response)
	}

	writeJSON(w, http.StatusOK, queryResponse{Response: response, Cached: false})
}
