// Package llm wraps the generative backend behind a small Generate
// contract and classifies its failures.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/koopa0/secondbrain/internal/log"
)

// fallbackResponse is returned when the model produces no text at all.
const fallbackResponse = "Sorry, I couldn't generate a response."

// Request carries one generation call.
type Request struct {
	Prompt      string
	Model       string // empty = client default
	MaxTokens   int
	Temperature float32
}

// Client generates text through Genkit. Safe for concurrent use.
type Client struct {
	g            *genkit.Genkit
	defaultModel string
	logger       log.Logger
}

// New creates a Client with the given default model name.
func New(g *genkit.Genkit, defaultModel string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		g:            g,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Generate runs one generation call and returns the response text.
// Rate-limit failures are recognizable via IsRateLimited on the
// returned error.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(model),
		ai.WithPrompt(req.Prompt),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(req.Temperature),
			MaxOutputTokens: int32(req.MaxTokens),
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", model, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		c.logger.Warn("model returned empty response", "model", model)
		return fallbackResponse, nil
	}
	return text, nil
}

// rateLimitPatterns are matched case-insensitively against err.Error().
//
// String matching is used because the provider SDKs do not expose typed
// errors for rate limiting. Re-evaluate if Genkit grows structured
// error types.
var rateLimitPatterns = []string{
	"rate limit",
	"rate_limit",
	"quota exceeded",
	"resource exhausted",
	"429",
}

// IsRateLimited reports whether err signals upstream rate or quota
// limiting.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range rateLimitPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
