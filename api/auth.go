package api

import (
	"errors"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/koopa0/secondbrain/internal/store"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt input limit
)

type authHandler struct {
	auth   Authenticator
	users  UserStore
	logger *slog.Logger
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func validateCredentials(c credentialsRequest) string {
	ulen := utf8.RuneCountInString(c.Username)
	if ulen < minUsernameLen || ulen > maxUsernameLen {
		return "username must be 3-32 characters"
	}
	plen := len(c.Password)
	if plen < minPasswordLen || plen > maxPasswordLen {
		return "password must be 8-72 characters"
	}
	return ""
}

func (h *authHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if msg := validateCredentials(req); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("password hashing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not create account")
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Username, hash)
	if errors.Is(err, store.ErrDuplicateUsername) {
		writeError(w, http.StatusConflict, "username_taken", "username already exists")
		return
	}
	if err != nil {
		h.logger.Error("user creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not create account")
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse{Token: h.auth.IssueToken(user.ID.String())})
}

func (h *authHandler) signin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if errors.Is(err, store.ErrNotFound) {
		// Same response as a bad password; don't leak which usernames exist.
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
		return
	}
	if err != nil {
		h.logger.Error("user lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not sign in")
		return
	}

	if !h.auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: h.auth.IssueToken(user.ID.String())})
}
