// Package reader turns listing pages into the plain text handed to extraction.
package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
)

const (
	DefaultFetchTimeout  = 30 * time.Second
	DefaultBodyByteLimit = 8 * 1024 * 1024

	defaultUserAgent = "event-pipeline/1.0 (+https://horse.fit)"
)

// ErrUnsupportedContent is returned for responses that are not text, HTML or JSON.
var ErrUnsupportedContent = errors.New("unsupported content type")

// FetchOptions controls HTTP behavior for page text extraction.
type FetchOptions struct {
	Timeout       time.Duration
	BodyByteLimit int64
	UserAgent     string
	HTTPClient    *http.Client
}

// Fetcher retrieves the readable text of listing pages.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	bodyLimit int64
	userAgent string
}

func NewFetcher(opts FetchOptions) *Fetcher {
	f := &Fetcher{
		client:    opts.HTTPClient,
		timeout:   opts.Timeout,
		bodyLimit: opts.BodyByteLimit,
		userAgent: strings.TrimSpace(opts.UserAgent),
	}
	if f.timeout <= 0 {
		f.timeout = DefaultFetchTimeout
	}
	if f.bodyLimit <= 0 {
		f.bodyLimit = DefaultBodyByteLimit
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}
	return f
}

// FetchText is a one-shot Fetch with opts.
func FetchText(ctx context.Context, pageURL string, opts FetchOptions) (string, error) {
	return NewFetcher(opts).Fetch(ctx, pageURL)
}

// Fetch returns the readable text of a page. Plain text and JSON bodies are only
// cleaned; HTML goes through readability, falling back to the excerpt.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	page := strings.TrimSpace(pageURL)
	if page == "" {
		return "", fmt.Errorf("page URL is required")
	}
	parsedURL, err := url.Parse(page)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}

	body, mediaType, err := f.fetchBody(ctx, page)
	if err != nil {
		return "", err
	}

	var text string
	switch {
	case mediaType == "text/plain", mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		text = CleanText(string(body))
	case mediaType == "", mediaType == "text/html", mediaType == "application/xhtml+xml":
		text, err = renderHTML(body, parsedURL)
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
	}

	if text == "" {
		return "", fmt.Errorf("page %s has no readable text", page)
	}
	return text, nil
}

func (f *Fetcher) fetchBody(ctx context.Context, page string) ([]byte, string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, page, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,application/json;q=0.8,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.bodyLimit))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}
	return body, strings.ToLower(mediaType), nil
}

func renderHTML(body []byte, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability parse: %w", err)
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return "", fmt.Errorf("render readability text: %w", err)
	}

	if text := CleanText(rendered.String()); text != "" {
		return text, nil
	}
	return CleanText(article.Excerpt()), nil
}

// CleanText normalizes line endings, collapses in-line whitespace and drops
// blank lines. Listing pages keep one entry per line.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	var b strings.Builder
	for _, line := range strings.Split(normalized, "\n") {
		clean := strings.Join(strings.Fields(line), " ")
		if clean == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(clean)
	}
	return b.String()
}

// TruncateText clips text to maxChars runes and appends a single ellipsis rune when truncated.
func TruncateText(raw string, maxChars int) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || maxChars <= 0 {
		return trimmed, false
	}

	runes := []rune(trimmed)
	if len(runes) <= maxChars {
		return trimmed, false
	}
	if maxChars == 1 {
		return "…", true
	}
	return strings.TrimSpace(string(runes[:maxChars-1])) + "…", true
}
