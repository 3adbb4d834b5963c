package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/koopa0/secondbrain/internal/llm"
	"github.com/koopa0/secondbrain/internal/log"
	"github.com/koopa0/secondbrain/internal/vecstore"
)

type fakeEmbedder struct {
	vec []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) []float32 {
	if f.vec == nil {
		return make([]float32, 4)
	}
	return f.vec
}

type fakeSearcher struct {
	candidates []vecstore.Candidate
	err        error
	lastOwner  string
}

func (f *fakeSearcher) Search(ctx context.Context, vec []float32, ownerID string, topK int32) ([]vecstore.Candidate, error) {
	f.lastOwner = ownerID
	return f.candidates, f.err
}

type fakeGenerator struct {
	response string
	err      error
	calls    int
	lastReq  llm.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.calls++
	f.lastReq = req
	return f.response, f.err
}

type pipeline struct {
	svc   *Service
	gen   *fakeGenerator
	cache *ResponseCache
	quota *QuotaManager
}

func newTestPipeline(t *testing.T, searcher *fakeSearcher, gen *fakeGenerator) *pipeline {
	t.Helper()

	cache := NewResponseCache(CacheDuration, log.NewNop())
	quota := NewQuotaManager(DailyTokenLimit)

	svc, err := New(Config{
		Embedder:  &fakeEmbedder{},
		Searcher:  searcher,
		Generator: gen,
		Cache:     cache,
		Quota:     quota,
		Pacer:     NewPacer(time.Millisecond),
		Codec:     wordCodec{},
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &pipeline{svc: svc, gen: gen, cache: cache, quota: quota}
}

func TestAnswerConfiguredDefaults(t *testing.T) {
	gen := &fakeGenerator{response: "ok"}
	svc, err := New(Config{
		Embedder:  &fakeEmbedder{},
		Searcher:  &fakeSearcher{},
		Generator: gen,
		Cache:     NewResponseCache(CacheDuration, log.NewNop()),
		Quota:     NewQuotaManager(DailyTokenLimit),
		Pacer:     NewPacer(time.Millisecond),
		Codec:     wordCodec{},
		Logger:    log.NewNop(),

		MaxTokens:   99,
		Temperature: 1.2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := svc.Answer(context.Background(), "user-1", "what are goroutines"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if gen.lastReq.MaxTokens != 99 {
		t.Errorf("max tokens = %d, want 99", gen.lastReq.MaxTokens)
	}
	if gen.lastReq.Temperature != 1.2 {
		t.Errorf("temperature = %v, want 1.2", gen.lastReq.Temperature)
	}

	// An explicit option still overrides the configured default.
	if _, err := svc.Answer(context.Background(), "user-1", "how do channels work", WithMaxTokens(10)); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if gen.lastReq.MaxTokens != 10 {
		t.Errorf("max tokens = %d, want 10", gen.lastReq.MaxTokens)
	}
}

func someCandidates() []vecstore.Candidate {
	return []vecstore.Candidate{
		{ID: "1", ContentType: vecstore.TypeDocument, Excerpt: "go routines are lightweight threads", Similarity: 0.9},
		{ID: "2", ContentType: vecstore.TypeTweet, Excerpt: "channels carry values between goroutines", Similarity: 0.8},
	}
}

func TestAnswerSuccess(t *testing.T) {
	gen := &fakeGenerator{response: "Goroutines are lightweight."}
	searcher := &fakeSearcher{candidates: someCandidates()}
	p := newTestPipeline(t, searcher, gen)

	got, err := p.svc.Answer(context.Background(), "user-1", "what are goroutines")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "Goroutines are lightweight." {
		t.Errorf("answer = %q", got)
	}
	if searcher.lastOwner != "user-1" {
		t.Errorf("search owner = %q, want user-1", searcher.lastOwner)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
	if !strings.Contains(gen.lastReq.Prompt, "document: go routines are lightweight threads") {
		t.Errorf("prompt missing context:\n%s", gen.lastReq.Prompt)
	}
	if gen.lastReq.MaxTokens != DefaultMaxTokens {
		t.Errorf("max tokens = %d, want %d", gen.lastReq.MaxTokens, DefaultMaxTokens)
	}
}

func TestAnswerCommitsEstimatedTokens(t *testing.T) {
	gen := &fakeGenerator{response: "ok"}
	p := newTestPipeline(t, &fakeSearcher{candidates: someCandidates()}, gen)

	if _, err := p.svc.Answer(context.Background(), "user-1", "what are goroutines"); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	// Estimate = context tokens + query tokens + max output tokens.
	assembled := Assemble(someCandidates(), DefaultMaxContextTokens, wordCodec{})
	want := assembled.Tokens + wordCodec{}.Count("what are goroutines") + DefaultMaxTokens
	if p.quota.Used() != want {
		t.Errorf("quota used = %d, want %d", p.quota.Used(), want)
	}
}

func TestAnswerSecondCallServedFromCache(t *testing.T) {
	gen := &fakeGenerator{response: "cached me"}
	p := newTestPipeline(t, &fakeSearcher{candidates: someCandidates()}, gen)
	ctx := context.Background()

	first, err := p.svc.Answer(ctx, "user-1", "what are goroutines")
	if err != nil {
		t.Fatalf("first Answer: %v", err)
	}
	usedAfterFirst := p.quota.Used()

	second, err := p.svc.Answer(ctx, "user-1", "what are goroutines")
	if err != nil {
		t.Fatalf("second Answer: %v", err)
	}

	if second != first {
		t.Errorf("cached answer = %q, want %q", second, first)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1 (second call must hit cache)", gen.calls)
	}
	if p.quota.Used() != usedAfterFirst {
		t.Error("cache hit must not consume quota")
	}
}

func TestAnswerForceFreshSkipsCacheRead(t *testing.T) {
	gen := &fakeGenerator{response: "fresh"}
	p := newTestPipeline(t, &fakeSearcher{candidates: someCandidates()}, gen)
	ctx := context.Background()

	if _, err := p.svc.Answer(ctx, "user-1", "what are goroutines"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if _, err := p.svc.Answer(ctx, "user-1", "what are goroutines", WithForceFresh()); err != nil {
		t.Fatalf("forced Answer: %v", err)
	}

	if gen.calls != 2 {
		t.Errorf("generator called %d times, want 2 with ForceFresh", gen.calls)
	}
}

func TestAnswerQuotaExceededIsSoft(t *testing.T) {
	gen := &fakeGenerator{response: "never"}
	p := newTestPipeline(t, &fakeSearcher{candidates: someCandidates()}, gen)

	// Leave one token of headroom; any real request needs more.
	p.quota.Commit(DailyTokenLimit - 1)

	got, err := p.svc.Answer(context.Background(), "user-1", "what are goroutines")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != QuotaExceededMessage {
		t.Errorf("answer = %q, want quota message", got)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0 when quota rejects", gen.calls)
	}
}

func TestAnswerEmptyCandidatesStillGenerates(t *testing.T) {
	gen := &fakeGenerator{response: "I don't have relevant notes."}
	p := newTestPipeline(t, &fakeSearcher{}, gen)

	got, err := p.svc.Answer(context.Background(), "user-1", "anything saved about rust")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got == "" {
		t.Error("expected a response despite empty context")
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
	if !strings.Contains(gen.lastReq.Prompt, "Context:\n\n") {
		t.Errorf("prompt should carry an empty context block:\n%s", gen.lastReq.Prompt)
	}
}

func TestAnswerRetriesShrinkBudgets(t *testing.T) {
	rateLimited := errors.New("googleapi: Error 429: rate limit exceeded")
	gen := &fakeGenerator{err: rateLimited}
	p := newTestPipeline(t, &fakeSearcher{candidates: someCandidates()}, gen)

	_, err := p.svc.Answer(context.Background(), "user-1", "what are goroutines")
	if err == nil {
		t.Fatal("expected error after exhausted retries with empty cache")
	}
	if !errors.Is(err, rateLimited) {
		t.Errorf("error should wrap the last upstream failure: %v", err)
	}
	if gen.calls != 3 {
		t.Errorf("generator called %d times, want 3 (initial + 2 retries)", gen.calls)
	}
	// Budgets shrink by 0.7 per retry: 250 -> 175 -> 122.
	if gen.lastReq.MaxTokens != 122 {
		t.Errorf("final max tokens = %d, want 122", gen.lastReq.MaxTokens)
	}
}

func TestAnswerDegradesToSimilarCachedResponse(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded for model")}
	p := newTestPipeline(t, &fakeSearcher{candidates: someCandidates()}, gen)

	// A previous answer whose key shares enough words with the new
	// query; the punctuated context preserves word boundaries in the
	// whitespace-stripped key.
	p.cache.Set("goroutines", "what, are, they?", "Channels carry values.", 3)

	got, err := p.svc.Answer(context.Background(), "user-1", "what are goroutines")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.HasPrefix(got, DegradedPrefix) {
		t.Errorf("degraded answer missing prefix: %q", got)
	}
	if !strings.Contains(got, "Channels carry values.") {
		t.Errorf("degraded answer = %q", got)
	}
}

func TestAnswerNonRateLimitErrorPropagates(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("invalid api key")}
	p := newTestPipeline(t, &fakeSearcher{candidates: someCandidates()}, gen)

	_, err := p.svc.Answer(context.Background(), "user-1", "what are goroutines")
	if err == nil {
		t.Fatal("expected non-rate-limit failure to propagate")
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1 (no retry for non-rate-limit)", gen.calls)
	}
}

func TestAnswerSearchErrorPropagates(t *testing.T) {
	gen := &fakeGenerator{response: "never"}
	p := newTestPipeline(t, &fakeSearcher{err: errors.New("index unavailable")}, gen)

	if _, err := p.svc.Answer(context.Background(), "user-1", "query"); err == nil {
		t.Fatal("expected search failure to propagate")
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls)
	}
}

func TestAnswerCacheDisabled(t *testing.T) {
	gen := &fakeGenerator{response: "uncached"}
	p := newTestPipeline(t, &fakeSearcher{candidates: someCandidates()}, gen)
	ctx := context.Background()

	if _, err := p.svc.Answer(ctx, "user-1", "q one two", WithCacheDisabled()); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if p.cache.Len() != 0 {
		t.Errorf("cache len = %d, want 0 with caching disabled", p.cache.Len())
	}
}

func TestAnswerOptionOverrides(t *testing.T) {
	gen := &fakeGenerator{response: "ok"}
	p := newTestPipeline(t, &fakeSearcher{candidates: someCandidates()}, gen)

	_, err := p.svc.Answer(context.Background(), "user-1", "question",
		WithMaxTokens(99),
		WithTemperature(0.2),
		WithModel("custom-model"),
	)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if gen.lastReq.MaxTokens != 99 {
		t.Errorf("max tokens = %d, want 99", gen.lastReq.MaxTokens)
	}
	if gen.lastReq.Temperature != 0.2 {
		t.Errorf("temperature = %f, want 0.2", gen.lastReq.Temperature)
	}
	if gen.lastReq.Model != "custom-model" {
		t.Errorf("model = %q, want custom-model", gen.lastReq.Model)
	}
}
