// Package fetch extracts indexable text from saved links: web pages,
// tweets and YouTube videos.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/koopa0/secondbrain/internal/log"
	"github.com/koopa0/secondbrain/internal/security"
	"github.com/koopa0/secondbrain/internal/vecstore"
)

const (
	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 10 << 20 // 10 MiB

	requestTimeout = 30 * time.Second

	userAgent = "secondbrain/1.0 (+https://github.com/koopa0/secondbrain)"
)

var (
	tweetIDPattern = regexp.MustCompile(`(?:twitter|x)\.com/[^/]+/status(?:es)?/(\d+)`)
	videoIDPattern = regexp.MustCompile(`(?:youtube\.com/watch\?.*?v=|youtu\.be/)([\w-]{11})`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

// Config holds fetcher settings.
type Config struct {
	// TwitterBearerToken authorizes Twitter API v2 tweet lookups.
	// Empty disables tweet fetching.
	TwitterBearerToken string
}

// Fetcher retrieves and extracts text content from external links.
// All requests go through an SSRF-validating transport.
type Fetcher struct {
	client       *http.Client
	validator    *security.URLValidator
	twitterToken string
	logger       log.Logger

	// test hooks
	twitterBase   string
	timedTextBase string
	skipValidate  bool
}

// New creates a fetcher.
func New(cfg Config, logger log.Logger) *Fetcher {
	if logger == nil {
		logger = log.NewNop()
	}
	validator := security.NewURLValidator()
	return &Fetcher{
		client:        validator.Client(requestTimeout),
		validator:     validator,
		twitterToken:  cfg.TwitterBearerToken,
		logger:        logger,
		twitterBase:   "https://api.twitter.com",
		timedTextBase: "https://video.google.com",
	}
}

// ForType extracts text from a link according to its content type.
// Tweets and videos use their platform APIs; everything else is treated
// as a web page.
func (f *Fetcher) ForType(ctx context.Context, t vecstore.ContentType, link string) (string, error) {
	switch t {
	case vecstore.TypeTweet:
		return f.Tweet(ctx, link)
	case vecstore.TypeVideo:
		return f.VideoTranscript(ctx, link)
	default:
		return f.Webpage(ctx, link)
	}
}

// Webpage fetches a page and extracts its readable text. Readability
// handles article-shaped pages; a goquery pass over the main content
// selectors covers everything else.
func (f *Fetcher) Webpage(ctx context.Context, link string) (string, error) {
	if !f.skipValidate {
		if err := f.validator.Validate(link); err != nil {
			return "", fmt.Errorf("rejecting URL: %w", err)
		}
	}

	body, err := f.get(ctx, link, nil)
	if err != nil {
		return "", err
	}

	pageURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parsing URL: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(body), pageURL)
	if err == nil {
		if text := collapseWhitespace(article.TextContent); text != "" {
			return text, nil
		}
	}

	// Readability gave up; fall back to stripping boilerplate ourselves.
	text, gqErr := extractWithGoquery(body)
	if gqErr != nil {
		return "", fmt.Errorf("extracting page text: %w", gqErr)
	}
	if text == "" {
		return "", fmt.Errorf("no readable text in %s", link)
	}
	return text, nil
}

// tweetResponse is the Twitter API v2 single-tweet envelope.
type tweetResponse struct {
	Data struct {
		Text string `json:"text"`
	} `json:"data"`
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Tweet fetches a tweet's text through the Twitter API v2.
func (f *Fetcher) Tweet(ctx context.Context, link string) (string, error) {
	if f.twitterToken == "" {
		return "", fmt.Errorf("tweet fetching disabled: no bearer token configured")
	}

	m := tweetIDPattern.FindStringSubmatch(link)
	if m == nil {
		return "", fmt.Errorf("no tweet ID in %q", link)
	}
	tweetID := m[1]

	apiURL := fmt.Sprintf("%s/2/tweets/%s?tweet.fields=text", f.twitterBase, tweetID)
	body, err := f.get(ctx, apiURL, map[string]string{
		"Authorization": "Bearer " + f.twitterToken,
	})
	if err != nil {
		return "", err
	}

	var resp tweetResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", fmt.Errorf("parsing tweet response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return "", fmt.Errorf("twitter API error: %s", resp.Errors[0].Detail)
	}
	if resp.Data.Text == "" {
		return "", fmt.Errorf("tweet %s has no text", tweetID)
	}
	return collapseWhitespace(resp.Data.Text), nil
}

// get performs a GET request and returns the body, capped at maxBodyBytes.
func (f *Fetcher) get(ctx context.Context, rawURL string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.logger.Debug("closing response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	return string(body), nil
}

// extractWithGoquery strips boilerplate elements and returns the text of
// the main content region, or the whole body when no region matches.
func extractWithGoquery(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, header, footer, aside, noscript").Remove()

	for _, sel := range []string{"article", "main", "#content", ".content", "#main"} {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if text := collapseWhitespace(node.Text()); text != "" {
				return text, nil
			}
		}
	}

	return collapseWhitespace(doc.Find("body").Text()), nil
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
