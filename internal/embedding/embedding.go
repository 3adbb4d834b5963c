// Package embedding wraps a Genkit embedder with the preprocessing and
// fail-soft behavior the query pipeline depends on.
//
// Failures never propagate: a zero vector of the expected dimensionality
// is returned instead, because a degraded (non-matching) embedding keeps
// ingestion and querying alive where an error would stop them.
package embedding

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"

	"github.com/koopa0/secondbrain/internal/log"
)

// Dimension is the fixed embedding dimensionality. The vector column in
// db/migrations and the embedder's output dimensionality must both match.
const Dimension = 512

// maxInputChars caps the text sent upstream per embedding call.
const maxInputChars = 8192

var whitespaceRun = regexp.MustCompile(`\s+`)

// Service generates L2-normalized embeddings of a fixed dimensionality.
// Safe for concurrent use.
type Service struct {
	embedder ai.Embedder
	logger   log.Logger
}

// New creates an embedding Service backed by the given Genkit embedder.
func New(embedder ai.Embedder, logger log.Logger) *Service {
	return &Service{
		embedder: embedder,
		logger:   logger,
	}
}

// Embed returns the unit-norm embedding of text, or the zero vector when
// the upstream call fails or returns an unexpected dimensionality.
func (s *Service) Embed(ctx context.Context, text string) []float32 {
	vecs := s.EmbedBatch(ctx, []string{text})
	return vecs[0]
}

// EmbedBatch embeds each text, applying the same cleaning and
// normalization row-wise. The result always has len(texts) entries; rows
// that failed are zero vectors.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(cleanText(text), nil)
	}

	// Gemini embedders default to their native dimensionality (3072 for
	// gemini-embedding-001), so the 512-dim output must be requested
	// explicitly. Truncated vectors come back unnormalized; normalize
	// below restores unit norm.
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: docs,
		Options: &genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(Dimension)),
		},
	})
	if err != nil {
		s.logger.Warn("embedding call failed, returning zero vectors",
			"count", len(texts), "error", err)
		return zeroVectors(len(texts))
	}
	if len(resp.Embeddings) != len(texts) {
		s.logger.Warn("embedding count mismatch, returning zero vectors",
			"want", len(texts), "got", len(resp.Embeddings))
		return zeroVectors(len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) != Dimension {
			s.logger.Warn("unexpected embedding dimensionality, returning zero vector",
				"want", Dimension, "got", len(emb.Embedding))
			out[i] = make([]float32, Dimension)
			continue
		}
		out[i] = normalize(emb.Embedding)
	}
	return out
}

// cleanText collapses whitespace runs to single spaces, trims, and caps
// the input length before it goes upstream.
func cleanText(text string) string {
	cleaned := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	runes := []rune(cleaned)
	if len(runes) > maxInputChars {
		return string(runes[:maxInputChars])
	}
	return cleaned
}

// normalize scales vec to unit L2 norm. A zero vector stays zero.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return make([]float32, len(vec))
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func zeroVectors(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, Dimension)
	}
	return out
}
