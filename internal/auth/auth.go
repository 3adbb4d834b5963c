// Package auth provides password hashing and stateless bearer tokens.
//
// Tokens are HMAC-SHA256 signed: base64url(userID|expiryUnix) + "." +
// base64url(signature). No server-side session state is kept; revocation
// happens by rotating the secret.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidToken indicates a malformed or tampered token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indicates the token signature is valid but past expiry.
	ErrTokenExpired = errors.New("token expired")
)

// MinSecretLength is the minimum accepted HMAC secret length.
const MinSecretLength = 32

// Manager issues and verifies bearer tokens and hashes passwords.
type Manager struct {
	secret   []byte
	tokenTTL time.Duration

	now func() time.Time // test hook
}

// NewManager creates a token manager. The secret must be at least
// MinSecretLength characters.
func NewManager(secret string, tokenTTL time.Duration) (*Manager, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("secret must be at least %d characters, got %d", MinSecretLength, len(secret))
	}
	if tokenTTL <= 0 {
		return nil, errors.New("token TTL must be positive")
	}
	return &Manager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}, nil
}

// HashPassword hashes a password with bcrypt at the default cost.
func (m *Manager) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the bcrypt hash.
func (m *Manager) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueToken creates a signed bearer token for the given user ID.
func (m *Manager) IssueToken(userID string) string {
	expiry := m.now().Add(m.tokenTTL).Unix()
	payload := fmt.Sprintf("%s|%d", userID, expiry)
	sig := m.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// VerifyToken validates a bearer token and returns the user ID it carries.
func (m *Manager) VerifyToken(token string) (string, error) {
	payloadPart, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return "", ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return "", ErrInvalidToken
	}

	// Constant-time comparison; check the signature before trusting any
	// field of the payload.
	if !hmac.Equal(sig, m.sign(string(payload))) {
		return "", ErrInvalidToken
	}

	userID, expiryStr, ok := strings.Cut(string(payload), "|")
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if m.now().Unix() > expiry {
		return "", ErrTokenExpired
	}

	return userID, nil
}

func (m *Manager) sign(payload string) []byte {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
