package answer

import (
	"fmt"
	"strings"

	"github.com/koopa0/secondbrain/internal/token"
	"github.com/koopa0/secondbrain/internal/vecstore"
)

// Context is the assembled block of retrieved text handed to the
// generation backend, plus its own token count.
type Context struct {
	Text   string
	Tokens int
}

// Assemble builds the generation context from retrieved candidates.
//
// Deterministic steps: drop candidates with blank excerpts, deduplicate
// by exact text (first occurrence wins, preserving similarity order),
// render each survivor as "{type}: {text}", join with blank lines, and
// truncate to maxTokens so downstream token accounting stays valid.
func Assemble(candidates []vecstore.Candidate, maxTokens int, codec token.Codec) Context {
	seen := make(map[string]struct{}, len(candidates))
	parts := make([]string, 0, len(candidates))

	for _, c := range candidates {
		if strings.TrimSpace(c.Excerpt) == "" {
			continue
		}
		if _, dup := seen[c.Excerpt]; dup {
			continue
		}
		seen[c.Excerpt] = struct{}{}
		parts = append(parts, fmt.Sprintf("%s: %s", c.ContentType, c.Excerpt))
	}

	text := codec.Truncate(strings.Join(parts, "\n\n"), maxTokens)
	return Context{
		Text:   text,
		Tokens: codec.Count(text),
	}
}
