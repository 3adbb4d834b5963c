package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
)

// timedTextPath is YouTube's caption endpoint. It serves the uploaded
// English track as XML without authentication, when one exists.
const timedTextPath = "/timedtext?lang=en&v=%s"

// transcript is the timedtext XML envelope.
type transcript struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

// VideoTranscript fetches the English transcript of a YouTube video.
// Videos without captions return an error; callers decide whether to fall
// back to indexing the title alone.
func (f *Fetcher) VideoTranscript(ctx context.Context, link string) (string, error) {
	m := videoIDPattern.FindStringSubmatch(link)
	if m == nil {
		return "", fmt.Errorf("no video ID in %q", link)
	}
	videoID := m[1]

	body, err := f.get(ctx, f.timedTextBase+fmt.Sprintf(timedTextPath, videoID), nil)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("no transcript available for video %s", videoID)
	}

	var tr transcript
	if err := xml.Unmarshal([]byte(body), &tr); err != nil {
		return "", fmt.Errorf("parsing transcript: %w", err)
	}

	parts := make([]string, 0, len(tr.Texts))
	for _, t := range tr.Texts {
		// Caption text arrives double-escaped (&amp;#39; and friends).
		line := collapseWhitespace(html.UnescapeString(html.UnescapeString(t.Value)))
		if line != "" {
			parts = append(parts, line)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("empty transcript for video %s", videoID)
	}
	return strings.Join(parts, " "), nil
}
