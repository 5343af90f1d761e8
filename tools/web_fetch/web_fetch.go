package web_fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// Page is the readable extraction of a fetched document.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fetcher retrieves readable page content for summarization.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (Page, error)
}

// ReadabilityFetcher fetches a URL and strips it down to readable text.
type ReadabilityFetcher struct {
	Client *http.Client
}

func NewReadabilityFetcher(timeout time.Duration) *ReadabilityFetcher {
	return &ReadabilityFetcher{Client: &http.Client{Timeout: timeout}}
}

func (f *ReadabilityFetcher) Fetch(ctx context.Context, pageURL string) (Page, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Page{}, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("User-Agent", "briefer/1.0")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return Page{}, fmt.Errorf("readability: %w", err)
	}

	return Page{URL: pageURL, Title: article.Title, Text: article.TextContent}, nil
}
