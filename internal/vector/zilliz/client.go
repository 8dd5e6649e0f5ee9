package zilliz

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/content-agent/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// DocumentChunk is one embedded piece of a Notion page.
type DocumentChunk struct {
	ID        string
	Embedding []float32
	Text      string
	SourceID  string
	PageID    string
	DocType   string
	Timestamp time.Time
}

const maxTextLen = 8192

func NewClient(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (z *Client) Close() error {
	return z.client.Close()
}

func (z *Client) CreateCollection(ctx context.Context) error {
	has, err := z.client.HasCollection(ctx, z.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", z.collectionName))
		return z.client.LoadCollection(ctx, z.collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: z.collectionName,
		Description:    "Notion content embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(z.vectorDim),
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": strconv.Itoa(maxTextLen),
				},
			},
			{
				Name:     "source_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "page_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "doc_type",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "timestamp",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = z.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexAUTOINDEX(entity.L2)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	err = z.client.CreateIndex(ctx, z.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = z.client.LoadCollection(ctx, z.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", z.collectionName))

	return nil
}

// columns converts chunks into the column layout of the collection.
func (z *Client) columns(chunks []DocumentChunk) ([]entity.Column, error) {
	chunkIDs := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	texts := make([]string, len(chunks))
	sourceIDs := make([]string, len(chunks))
	pageIDs := make([]string, len(chunks))
	docTypes := make([]string, len(chunks))
	timestamps := make([]int64, len(chunks))

	for i, chunk := range chunks {
		if len(chunk.Embedding) != z.vectorDim {
			return nil, fmt.Errorf("chunk %s has dimension %d, collection expects %d", chunk.ID, len(chunk.Embedding), z.vectorDim)
		}
		chunkIDs[i] = chunk.ID
		embeddings[i] = chunk.Embedding
		texts[i] = truncate(chunk.Text, maxTextLen)
		sourceIDs[i] = chunk.SourceID
		pageIDs[i] = chunk.PageID
		docTypes[i] = chunk.DocType
		timestamps[i] = chunk.Timestamp.Unix()
	}

	return []entity.Column{
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", z.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("source_id", sourceIDs),
		entity.NewColumnVarChar("page_id", pageIDs),
		entity.NewColumnVarChar("doc_type", docTypes),
		entity.NewColumnInt64("timestamp", timestamps),
	}, nil
}

func (z *Client) Insert(ctx context.Context, chunks []DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	cols, err := z.columns(chunks)
	if err != nil {
		return err
	}

	if _, err := z.client.Insert(ctx, z.collectionName, "", cols...); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := z.client.Flush(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks inserted into vector DB", zap.Int("count", len(chunks)))

	return nil
}

// Upsert writes chunks, replacing any stored chunk with the same id.
func (z *Client) Upsert(ctx context.Context, chunks []DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	cols, err := z.columns(chunks)
	if err != nil {
		return err
	}

	if _, err := z.client.Upsert(ctx, z.collectionName, "", cols...); err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	if err := z.client.Flush(ctx, z.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks upserted into vector DB", zap.Int("count", len(chunks)))

	return nil
}

// DeleteStale removes vectors of a source whose chunk id is not in keep. A
// non-empty pageIDs limits the delete to those pages.
func (z *Client) DeleteStale(ctx context.Context, sourceID string, pageIDs, keep []string) error {
	expr := StaleExpr(sourceID, pageIDs, keep)
	if err := z.client.Delete(ctx, z.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete stale vectors: %w", err)
	}

	logger.Info("Stale vectors deleted",
		zap.String("source_id", sourceID),
		zap.Int("pages", len(pageIDs)),
		zap.Int("kept", len(keep)),
	)
	return nil
}

// SourceExpr builds the boolean expression that selects every vector of one
// source.
func SourceExpr(sourceID string) string {
	return fmt.Sprintf(`source_id == %s`, quote(sourceID))
}

// StaleExpr narrows SourceExpr to the given pages and excludes the kept
// chunk ids.
func StaleExpr(sourceID string, pageIDs, keep []string) string {
	expr := SourceExpr(sourceID)
	if len(pageIDs) > 0 {
		expr += " && page_id in " + quoteList(pageIDs)
	}
	if len(keep) > 0 {
		expr += " && chunk_id not in " + quoteList(keep)
	}
	return expr
}

func quote(s string) string {
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// keep a valid utf-8 boundary
	for n > 0 && !utf8Start(s[n]) {
		n--
	}
	return s[:n]
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
