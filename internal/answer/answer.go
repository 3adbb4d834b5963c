// Package answer implements the knowledge query pipeline: embed the
// question, retrieve the owner's nearest content, assemble a bounded
// context, and generate an answer under a daily token budget, request
// pacing, and a layered caching and degradation strategy.
//
// The pipeline almost always resolves to a best-effort string rather
// than an error. Only repeated rate limiting with no cache fallback, or
// a non-rate-limit generation failure, surfaces as an error.
package answer

import (
	"context"
	"fmt"
	"math"

	"github.com/koopa0/secondbrain/internal/llm"
	"github.com/koopa0/secondbrain/internal/log"
	"github.com/koopa0/secondbrain/internal/token"
	"github.com/koopa0/secondbrain/internal/vecstore"
)

// User-visible soft-failure message when the daily budget is exhausted.
const QuotaExceededMessage = "Daily API quota limit reached. Please try again tomorrow or use cached responses only."

// DegradedPrefix marks answers served from the near-duplicate cache
// fallback instead of fresh generation.
const DegradedPrefix = "(Cached similar response due to API limits): "

const systemPrompt = "Provide very concise answers based on the context provided. Keep responses brief and focused."

// Pipeline defaults.
const (
	DefaultMaxTokens        = 250
	DefaultTemperature      = 0.7
	DefaultMaxContextTokens = 800
	DefaultTopK             = 5

	// maxRetries bounds the shrinking-budget ladder after rate limiting.
	maxRetries = 2

	// shrinkFactor scales maxTokens and maxContextTokens per retry.
	shrinkFactor = 0.7
)

// Embedder turns a question into a query vector. A zero vector is a
// valid (degraded) result.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Searcher retrieves an owner's nearest content candidates.
type Searcher interface {
	Search(ctx context.Context, queryVector []float32, ownerID string, topK int32) ([]vecstore.Candidate, error)
}

// Generator produces text from a prompt. *llm.Client implements it.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// Option configures a single query, following the functional options
// pattern used across this codebase.
type Option func(*queryConfig)

type queryConfig struct {
	maxTokens        int
	temperature      float32
	model            string
	cacheEnabled     bool
	maxContextTokens int
	forceFresh       bool
}

// WithMaxTokens caps the generated output length.
func WithMaxTokens(n int) Option {
	return func(c *queryConfig) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(c *queryConfig) { c.temperature = t }
}

// WithModel overrides the provider model identifier.
func WithModel(model string) Option {
	return func(c *queryConfig) { c.model = model }
}

// WithCacheDisabled turns the response cache off for this query.
func WithCacheDisabled() Option {
	return func(c *queryConfig) { c.cacheEnabled = false }
}

// WithMaxContextTokens caps the assembled context size.
func WithMaxContextTokens(n int) Option {
	return func(c *queryConfig) { c.maxContextTokens = n }
}

// WithForceFresh skips the cache lookup but still stores the result.
func WithForceFresh() Option {
	return func(c *queryConfig) { c.forceFresh = true }
}

func (s *Service) buildQueryConfig(opts []Option) queryConfig {
	cfg := s.defaults
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Service is the query orchestrator. All shared state (cache, quota,
// pacer) is owned and injected, never global, so tests run on isolated
// instances. Safe for concurrent use.
type Service struct {
	embedder  Embedder
	searcher  Searcher
	generator Generator
	cache     *ResponseCache
	quota     *QuotaManager
	pacer     *Pacer
	codec     token.Codec
	topK      int32
	defaults  queryConfig
	logger    log.Logger
}

// Config wires a Service. The zero value of each tuning field selects
// the package default.
type Config struct {
	Embedder  Embedder
	Searcher  Searcher
	Generator Generator
	Cache     *ResponseCache
	Quota     *QuotaManager
	Pacer     *Pacer
	Codec     token.Codec
	TopK      int32
	Logger    log.Logger

	// Per-query generation defaults, overridable with Options.
	MaxTokens        int
	Temperature      float32
	MaxContextTokens int
}

// New creates the orchestrator.
func New(cfg Config) (*Service, error) {
	if cfg.Embedder == nil || cfg.Searcher == nil || cfg.Generator == nil {
		return nil, fmt.Errorf("embedder, searcher and generator are required")
	}
	if cfg.Cache == nil || cfg.Quota == nil || cfg.Pacer == nil {
		return nil, fmt.Errorf("cache, quota and pacer are required")
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	defaults := queryConfig{
		maxTokens:        cfg.MaxTokens,
		temperature:      cfg.Temperature,
		cacheEnabled:     true,
		maxContextTokens: cfg.MaxContextTokens,
	}
	if defaults.maxTokens <= 0 {
		defaults.maxTokens = DefaultMaxTokens
	}
	if defaults.temperature <= 0 {
		defaults.temperature = DefaultTemperature
	}
	if defaults.maxContextTokens <= 0 {
		defaults.maxContextTokens = DefaultMaxContextTokens
	}

	return &Service{
		embedder:  cfg.Embedder,
		searcher:  cfg.Searcher,
		generator: cfg.Generator,
		cache:     cfg.Cache,
		quota:     cfg.Quota,
		pacer:     cfg.Pacer,
		codec:     cfg.Codec,
		topK:      topK,
		defaults:  defaults,
		logger:    logger,
	}, nil
}

// Answer runs the full pipeline for one question scoped to ownerID.
//
// Quota exhaustion and the degraded cache fallback resolve to strings,
// not errors. Rate-limited generation retries with budgets shrunk by
// shrinkFactor per attempt, as an explicit bounded loop; other
// generation failures propagate immediately.
func (s *Service) Answer(ctx context.Context, ownerID, query string, opts ...Option) (string, error) {
	cfg := s.buildQueryConfig(opts)

	queryVector := s.embedder.Embed(ctx, query)

	candidates, err := s.searcher.Search(ctx, queryVector, ownerID, s.topK)
	if err != nil {
		return "", fmt.Errorf("retrieving candidates: %w", err)
	}

	queryTokens := s.codec.Count(query)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Shrink budgets and force caching on for retries.
			cfg.maxTokens = scaleDown(cfg.maxTokens)
			cfg.maxContextTokens = scaleDown(cfg.maxContextTokens)
			cfg.cacheEnabled = true
		}

		assembled := Assemble(candidates, cfg.maxContextTokens, s.codec)

		if cfg.cacheEnabled && !cfg.forceFresh {
			if entry, ok := s.cache.Get(query, assembled.Text); ok {
				s.logger.Debug("cache hit", "owner", ownerID, "tokens", entry.TokenCount)
				return entry.Response, nil
			}
		}

		estimated := assembled.Tokens + queryTokens + cfg.maxTokens
		if !s.quota.Admit(estimated) {
			s.logger.Warn("daily token quota exceeded",
				"owner", ownerID, "estimated", estimated, "used", s.quota.Used())
			return QuotaExceededMessage, nil
		}

		response, err := s.generate(ctx, assembled.Text, query, cfg)
		if err != nil {
			if !llm.IsRateLimited(err) {
				return "", fmt.Errorf("generating answer: %w", err)
			}
			lastErr = err
			s.logger.Warn("generation rate limited, shrinking budgets",
				"attempt", attempt+1,
				"max_tokens", cfg.maxTokens,
				"max_context_tokens", cfg.maxContextTokens,
				"error", err)
			continue
		}

		s.quota.Commit(estimated)
		if cfg.cacheEnabled {
			s.cache.Set(query, assembled.Text, response, s.codec.Count(response))
		}
		return response, nil
	}

	// Retries exhausted under sustained rate limiting: degrade to the
	// nearest cached answer if one shares enough words with the query.
	if similar, ok := s.cache.FindSimilar(query); ok {
		s.logger.Info("serving degraded answer from similar cache entry", "owner", ownerID)
		return DegradedPrefix + similar, nil
	}

	return "", fmt.Errorf("generation failed after %d attempts: %w", maxRetries+1, lastErr)
}

// generate issues one paced generation call.
func (s *Service) generate(ctx context.Context, contextText, query string, cfg queryConfig) (string, error) {
	if err := s.pacer.Acquire(ctx); err != nil {
		return "", fmt.Errorf("acquiring pacer slot: %w", err)
	}
	defer s.pacer.Release()

	prompt := fmt.Sprintf("%s\n\nContext:\n%s\n\nQuestion: %s\n\nProvide a brief response.",
		systemPrompt, contextText, query)

	return s.generator.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Model:       cfg.model,
		MaxTokens:   cfg.maxTokens,
		Temperature: cfg.temperature,
	})
}

func scaleDown(n int) int {
	return int(math.Floor(float64(n) * shrinkFactor))
}
