package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/content-agent/backend/pkg/logger"
)

const maxBlockDepth = 3

type NotionConfig struct {
	APIKey  string
	BaseURL string
	Version string
	Timeout time.Duration
}

// NotionSource reads page text through the Notion REST API.
type NotionSource struct {
	http *resty.Client
}

func NewNotionSource(cfg NotionConfig) *NotionSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Notion-Version", cfg.Version).
		SetHeader("Content-Type", "application/json")

	return &NotionSource{http: http}
}

type notionBlock struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	HasChildren bool                   `json:"has_children"`
	Raw         map[string]interface{} `json:"-"`
}

type notionList struct {
	Results    []map[string]interface{} `json:"results"`
	HasMore    bool                     `json:"has_more"`
	NextCursor *string                  `json:"next_cursor"`
}

type notionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Fetch returns the pages behind a Notion identifier: the page itself, or
// every page in a database.
func (n *NotionSource) Fetch(ctx context.Context, id string, docType DocType) ([]Page, error) {
	switch docType {
	case DocTypePage:
		text, err := n.pageText(ctx, id)
		if err != nil {
			return nil, err
		}
		return []Page{{ID: id, Text: text}}, nil

	case DocTypeDatabase:
		pageIDs, err := n.databasePages(ctx, id)
		if err != nil {
			return nil, err
		}
		pages := make([]Page, 0, len(pageIDs))
		for _, pid := range pageIDs {
			text, err := n.pageText(ctx, pid)
			if err != nil {
				return nil, err
			}
			pages = append(pages, Page{ID: pid, Text: text})
		}
		logger.Info("Notion database read", zap.String("database_id", id), zap.Int("pages", len(pages)))
		return pages, nil
	}
	return nil, fmt.Errorf("unsupported doc type %q", docType)
}

func (n *NotionSource) databasePages(ctx context.Context, databaseID string) ([]string, error) {
	var (
		ids    []string
		cursor string
	)
	for {
		body := map[string]interface{}{"page_size": 100}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var list notionList
		var apiErr notionError
		resp, err := n.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&list).
			SetError(&apiErr).
			Post("/databases/" + databaseID + "/query")
		if err != nil {
			return nil, fmt.Errorf("failed to query notion database: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("notion database query returned %d: %s", resp.StatusCode(), apiErr.Message)
		}

		for _, r := range list.Results {
			if id, ok := r["id"].(string); ok {
				ids = append(ids, id)
			}
		}
		if !list.HasMore || list.NextCursor == nil {
			return ids, nil
		}
		cursor = *list.NextCursor
	}
}

func (n *NotionSource) pageText(ctx context.Context, pageID string) (string, error) {
	var lines []string
	if err := n.collectText(ctx, pageID, 0, &lines); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func (n *NotionSource) collectText(ctx context.Context, blockID string, depth int, lines *[]string) error {
	blocks, err := n.children(ctx, blockID)
	if err != nil {
		return err
	}

	for _, b := range blocks {
		if text := blockText(b); text != "" {
			*lines = append(*lines, text)
		}
		if b.HasChildren && depth < maxBlockDepth && b.Type != "child_page" && b.Type != "child_database" {
			if err := n.collectText(ctx, b.ID, depth+1, lines); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *NotionSource) children(ctx context.Context, blockID string) ([]notionBlock, error) {
	var (
		blocks []notionBlock
		cursor string
	)
	for {
		req := n.http.R().SetContext(ctx).SetQueryParam("page_size", "100")
		if cursor != "" {
			req.SetQueryParam("start_cursor", cursor)
		}

		var list notionList
		var apiErr notionError
		resp, err := req.SetResult(&list).SetError(&apiErr).Get("/blocks/" + blockID + "/children")
		if err != nil {
			return nil, fmt.Errorf("failed to read notion blocks: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("notion blocks request returned %d: %s", resp.StatusCode(), apiErr.Message)
		}

		for _, r := range list.Results {
			b := notionBlock{Raw: r}
			b.ID, _ = r["id"].(string)
			b.Type, _ = r["type"].(string)
			b.HasChildren, _ = r["has_children"].(bool)
			blocks = append(blocks, b)
		}
		if !list.HasMore || list.NextCursor == nil {
			return blocks, nil
		}
		cursor = *list.NextCursor
	}
}

// blockText flattens the rich_text of a block into plain text.
func blockText(b notionBlock) string {
	content, ok := b.Raw[b.Type].(map[string]interface{})
	if !ok {
		return ""
	}
	richText, ok := content["rich_text"].([]interface{})
	if !ok {
		if title, ok := content["title"].(string); ok {
			return strings.TrimSpace(title)
		}
		return ""
	}

	var sb strings.Builder
	for _, rt := range richText {
		part, ok := rt.(map[string]interface{})
		if !ok {
			continue
		}
		if s, ok := part["plain_text"].(string); ok {
			sb.WriteString(s)
		}
	}
	return strings.TrimSpace(sb.String())
}
