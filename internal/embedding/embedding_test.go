package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"google.golang.org/genai"

	"github.com/koopa0/secondbrain/internal/log"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	embedErr    error
	dimension   int
	value       float32
	lastInputs  []string
	lastOptions any
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(r api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.lastInputs = nil
	m.lastOptions = req.Options
	for _, doc := range req.Input {
		if len(doc.Content) > 0 {
			m.lastInputs = append(m.lastInputs, doc.Content[0].Text)
		}
	}

	if m.embedErr != nil {
		return nil, m.embedErr
	}

	dim := m.dimension
	if dim == 0 {
		dim = Dimension
	}
	resp := &ai.EmbedResponse{}
	for range req.Input {
		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = m.value
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: vec})
	}
	return resp, nil
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func l2norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestEmbedRequestsFixedDimensionality(t *testing.T) {
	mock := &mockEmbedder{value: 1.0}
	svc := New(mock, log.NewNop())

	svc.Embed(context.Background(), "some text")

	cfg, ok := mock.lastOptions.(*genai.EmbedContentConfig)
	if !ok {
		t.Fatalf("request options = %T, want *genai.EmbedContentConfig", mock.lastOptions)
	}
	if cfg.OutputDimensionality == nil {
		t.Fatal("OutputDimensionality not set")
	}
	if got := *cfg.OutputDimensionality; got != Dimension {
		t.Errorf("OutputDimensionality = %d, want %d", got, Dimension)
	}
}

func TestEmbedReturnsUnitNorm(t *testing.T) {
	svc := New(&mockEmbedder{value: 3.5}, log.NewNop())

	vec := svc.Embed(context.Background(), "some text")
	if len(vec) != Dimension {
		t.Fatalf("dimension = %d, want %d", len(vec), Dimension)
	}
	if norm := l2norm(vec); math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("L2 norm = %f, want 1.0", norm)
	}
}

func TestEmbedFailsSoftOnError(t *testing.T) {
	svc := New(&mockEmbedder{embedErr: errors.New("upstream down")}, log.NewNop())

	vec := svc.Embed(context.Background(), "some text")
	if len(vec) != Dimension {
		t.Fatalf("dimension = %d, want %d", len(vec), Dimension)
	}
	if !isZero(vec) {
		t.Error("expected zero vector on upstream error")
	}
}

func TestEmbedFailsSoftOnDimensionMismatch(t *testing.T) {
	svc := New(&mockEmbedder{dimension: 768, value: 1}, log.NewNop())

	vec := svc.Embed(context.Background(), "some text")
	if len(vec) != Dimension {
		t.Fatalf("dimension = %d, want %d", len(vec), Dimension)
	}
	if !isZero(vec) {
		t.Error("expected zero vector on dimension mismatch")
	}
}

func TestEmbedCleansInput(t *testing.T) {
	mock := &mockEmbedder{value: 1}
	svc := New(mock, log.NewNop())

	svc.Embed(context.Background(), "  hello\n\n\t world  ")
	if got := mock.lastInputs[0]; got != "hello world" {
		t.Errorf("cleaned input = %q, want %q", got, "hello world")
	}
}

func TestEmbedCapsInputLength(t *testing.T) {
	mock := &mockEmbedder{value: 1}
	svc := New(mock, log.NewNop())

	svc.Embed(context.Background(), strings.Repeat("x", 3*maxInputChars))
	if got := len(mock.lastInputs[0]); got != maxInputChars {
		t.Errorf("input length = %d, want %d", got, maxInputChars)
	}
}

func TestEmbedBatchRowWise(t *testing.T) {
	svc := New(&mockEmbedder{value: 2}, log.NewNop())

	vecs := svc.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	for i, vec := range vecs {
		if len(vec) != Dimension {
			t.Errorf("row %d: dimension = %d, want %d", i, len(vec), Dimension)
		}
		if norm := l2norm(vec); math.Abs(norm-1.0) > 1e-5 {
			t.Errorf("row %d: L2 norm = %f, want 1.0", i, norm)
		}
	}
}

func TestEmbedBatchFailsSoft(t *testing.T) {
	svc := New(&mockEmbedder{embedErr: errors.New("boom")}, log.NewNop())

	vecs := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	for i, vec := range vecs {
		if !isZero(vec) {
			t.Errorf("row %d: expected zero vector", i)
		}
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	vec := normalize(make([]float32, Dimension))
	if !isZero(vec) {
		t.Error("normalizing a zero vector should stay zero")
	}
}
