// Package web gathers source material for the research stage from a web
// search and the pages it links to.
package web

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/metrics"
	"github.com/content-agent/backend/pkg/logger"
)

const (
	defaultSerpAPIURL = "https://serpapi.com/search"
	defaultHTMLURL    = "https://html.duckduckgo.com/html/"
	maxContentChars   = 5000
	userAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

type Config struct {
	SerpAPIKey string
	Timeout    time.Duration
	// SerpAPIURL and HTMLSearchURL override the search endpoints.
	SerpAPIURL    string
	HTMLSearchURL string
}

type Client struct {
	serpAPIKey string
	serpAPIURL string
	htmlURL    string
	http       *resty.Client
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	serpURL := cfg.SerpAPIURL
	if serpURL == "" {
		serpURL = defaultSerpAPIURL
	}
	htmlURL := cfg.HTMLSearchURL
	if htmlURL == "" {
		htmlURL = defaultHTMLURL
	}

	return &Client{
		serpAPIKey: cfg.SerpAPIKey,
		serpAPIURL: serpURL,
		htmlURL:    htmlURL,
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
	}
}

// Search returns up to maxResults results, each with the scraped text of the
// linked page or its snippet when the page cannot be fetched.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	logger.Info("Performing web search", zap.String("query", query))
	metrics.WebSearchTriggered.Inc()

	var (
		results []SearchResult
		err     error
	)
	if c.serpAPIKey != "" {
		results, err = c.searchWithSerpAPI(ctx, query, maxResults)
	} else {
		results, err = c.searchHTML(ctx, query, maxResults)
	}
	if err != nil {
		return nil, err
	}

	for i := range results {
		content, err := c.scrapeContent(ctx, results[i].URL)
		if err != nil {
			logger.Warn("Failed to scrape content", zap.String("url", results[i].URL), zap.Error(err))
			content = results[i].Snippet
		}
		results[i].Content = content
	}

	logger.Info("Web search completed", zap.Int("results", len(results)))
	return results, nil
}

func (c *Client) searchWithSerpAPI(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	var searchResp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":       query,
			"api_key": c.serpAPIKey,
			"num":     fmt.Sprintf("%d", maxResults),
		}).
		SetResult(&searchResp).
		Get(c.serpAPIURL)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode())
	}

	results := make([]SearchResult, 0, len(searchResp.OrganicResults))
	for _, r := range searchResp.OrganicResults {
		if len(results) >= maxResults {
			break
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return results, nil
}

func (c *Client) searchHTML(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		Get(c.htmlURL)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	results := make([]SearchResult, 0, maxResults)
	doc.Find(".result").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(results) >= maxResults {
			return false
		}

		link := s.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		snippet := strings.TrimSpace(s.Find(".result__snippet").Text())

		if title != "" && href != "" {
			results = append(results, SearchResult{Title: title, URL: href, Snippet: snippet})
		}
		return true
	})

	return results, nil
}

func (c *Client) scrapeContent(ctx context.Context, urlStr string) (string, error) {
	resp, err := c.http.R().SetContext(ctx).Get(urlStr)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")

	if len(text) > maxContentChars {
		text = text[:maxContentChars]
	}

	return text, nil
}
