package token

import (
	"strings"
	"testing"
)

// newTestCodec loads the real encoding, skipping when the BPE ranks
// cannot be fetched (offline CI).
func newTestCodec(t *testing.T) *Tiktoken {
	t.Helper()
	codec, err := NewTiktoken()
	if err != nil {
		t.Skipf("cl100k_base encoding unavailable: %v", err)
	}
	return codec
}

func TestCount(t *testing.T) {
	codec := newTestCodec(t)

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"single word", "hello"},
		{"sentence", "The quick brown fox jumps over the lazy dog."},
		{"multibyte", "日本語のテキストも数えられる"},
		{"whitespace heavy", "a    b\n\n\tc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codec.Count(tt.text)
			if tt.text == "" && got != 0 {
				t.Errorf("Count(%q) = %d, want 0", tt.text, got)
			}
			if tt.text != "" && got <= 0 {
				t.Errorf("Count(%q) = %d, want > 0", tt.text, got)
			}
		})
	}
}

func TestTruncateWithinBudget(t *testing.T) {
	codec := newTestCodec(t)

	text := "a short sentence"
	if got := codec.Truncate(text, 1000); got != text {
		t.Errorf("Truncate returned %q, want unchanged input", got)
	}
}

func TestTruncateRespectsBudget(t *testing.T) {
	codec := newTestCodec(t)

	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 100)

	for _, max := range []int{1, 5, 50, 200} {
		cut := codec.Truncate(long, max)
		if n := codec.Count(cut); n > max {
			t.Errorf("Count(Truncate(text, %d)) = %d, want <= %d", max, n, max)
		}
	}
}

func TestTruncateIdempotent(t *testing.T) {
	codec := newTestCodec(t)

	long := strings.Repeat("knowledge bases remember what you forget ", 50)

	for _, max := range []int{3, 25, 100} {
		once := codec.Truncate(long, max)
		twice := codec.Truncate(once, max)
		if once != twice {
			t.Errorf("Truncate not idempotent at max=%d: %q != %q", max, once, twice)
		}
	}
}

func TestTruncateZeroBudget(t *testing.T) {
	codec := newTestCodec(t)

	if got := codec.Truncate("anything", 0); got != "" {
		t.Errorf("Truncate(text, 0) = %q, want empty", got)
	}
	if got := codec.Truncate("anything", -1); got != "" {
		t.Errorf("Truncate(text, -1) = %q, want empty", got)
	}
}
