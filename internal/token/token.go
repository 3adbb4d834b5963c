// Package token provides model-token counting and truncation.
//
// Every budget in the query pipeline (context window, output cap, daily
// quota) is denominated in the units produced by one Codec, so counting
// and truncation must share a single tokenization scheme. The production
// implementation uses the cl100k_base BPE via tiktoken-go.
package token

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Codec counts and truncates text in model-token units.
//
// Implementations must guarantee that Count(Truncate(t, n)) <= n for all
// inputs, and that Truncate is idempotent: a text already within budget
// is returned unchanged.
type Codec interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// encodingName is the BPE used for all token accounting.
const encodingName = "cl100k_base"

// Tiktoken implements Codec on top of the cl100k_base byte-pair encoding.
// It is safe for concurrent use.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the cl100k_base encoding. The BPE ranks are fetched
// once and cached by tiktoken-go (TIKTOKEN_CACHE_DIR controls the cache
// location).
func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("loading %s encoding: %w", encodingName, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate returns text cut to at most maxTokens tokens. Text already
// within the budget is returned unchanged, which makes Truncate
// idempotent.
func (t *Tiktoken) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}

	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}

	// Re-encoding a decoded prefix is not guaranteed to land on the same
	// token boundary, so back off until the cut fits the budget.
	for k := maxTokens; k > 0; k-- {
		cut := t.enc.Decode(tokens[:k])
		if t.Count(cut) <= maxTokens {
			return cut
		}
	}
	return ""
}
