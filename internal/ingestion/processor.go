package ingestion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/metrics"
	"github.com/content-agent/backend/internal/vector/zilliz"
	"github.com/content-agent/backend/pkg/logger"
	"github.com/content-agent/backend/pkg/utils"
)

type Source interface {
	Fetch(ctx context.Context, id string, docType DocType) ([]Page, error)
}

type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, int, error)
}

// VectorIndex is the write side of the vector store.
type VectorIndex interface {
	Insert(ctx context.Context, chunks []zilliz.DocumentChunk) error
	Upsert(ctx context.Context, chunks []zilliz.DocumentChunk) error
	DeleteStale(ctx context.Context, sourceID string, pageIDs, keep []string) error
}

type Processor struct {
	source    Source
	embedder  Embedder
	index     VectorIndex
	chunker   *Chunker
	costPer1K float64
	now       func() time.Time
}

func NewProcessor(source Source, embedder Embedder, index VectorIndex, chunker *Chunker, costPer1K float64) *Processor {
	return &Processor{
		source:    source,
		embedder:  embedder,
		index:     index,
		chunker:   chunker,
		costPer1K: costPer1K,
		now:       time.Now,
	}
}

type pendingChunk struct {
	id     string
	pageID string
	text   string
}

// Upsert fetches the source, embeds its chunks and writes them according to
// the cleanup mode.
func (p *Processor) Upsert(ctx context.Context, req Request) (*Summary, error) {
	if !req.CleanupMode.Valid() {
		return nil, fmt.Errorf("unsupported cleanup mode %q", req.CleanupMode)
	}

	logger.Info("Processing Notion source",
		zap.String("source_id", req.SourceID),
		zap.String("doc_type", string(req.DocType)),
	)

	pages, err := p.source.Fetch(ctx, req.SourceID, req.DocType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source: %w", err)
	}

	var pending []pendingChunk
	for _, page := range pages {
		chunks, err := p.chunker.Split(page.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk page %s: %w", page.ID, err)
		}
		for i, text := range chunks {
			pending = append(pending, pendingChunk{
				id:     chunkID(req.SourceID, page.ID, i),
				pageID: page.ID,
				text:   text,
			})
		}
	}
	logger.Info("Source chunked", zap.Int("pages", len(pages)), zap.Int("chunks", len(pending)))

	summary := &Summary{Items: []ItemResult{}}
	var tokens int
	if len(pending) > 0 {
		texts := make([]string, len(pending))
		for i, c := range pending {
			texts[i] = c.text
		}

		var embeddings [][]float32
		embeddings, tokens, err = p.embedder.GenerateBatchEmbeddings(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(embeddings) != len(pending) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(pending))
		}

		now := p.now()
		vectorChunks := make([]zilliz.DocumentChunk, len(pending))
		for i, c := range pending {
			vectorChunks[i] = zilliz.DocumentChunk{
				ID:        c.id,
				Embedding: embeddings[i],
				Text:      c.text,
				SourceID:  req.SourceID,
				PageID:    c.pageID,
				DocType:   string(req.DocType),
				Timestamp: now,
			}
		}

		if req.CleanupMode == CleanupNone {
			err = p.index.Insert(ctx, vectorChunks)
		} else {
			err = p.index.Upsert(ctx, vectorChunks)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to write vectors: %w", err)
		}
	}

	// Stale vectors go only after the new ones are stored.
	keep := make([]string, len(pending))
	for i, c := range pending {
		keep[i] = c.id
	}
	switch req.CleanupMode {
	case CleanupFull:
		if len(pending) > 0 {
			err = p.index.DeleteStale(ctx, req.SourceID, nil, keep)
		}
	case CleanupIncremental:
		if len(pages) > 0 {
			pageIDs := make([]string, len(pages))
			for i, page := range pages {
				pageIDs[i] = page.ID
			}
			err = p.index.DeleteStale(ctx, req.SourceID, pageIDs, keep)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to clear stale vectors: %w", err)
	}

	if len(pending) == 0 {
		return summary, nil
	}

	status := itemStatus(req.CleanupMode)
	for _, c := range pending {
		summary.Items = append(summary.Items, ItemResult{ChunkID: c.id, PageID: c.pageID, Status: status})
	}
	summary.TotalVectors = len(pending)
	summary.EmbeddingCost = float64(tokens) / 1000 * p.costPer1K

	metrics.RecordUpsert(string(req.DocType), string(req.CleanupMode), summary.TotalVectors, summary.EmbeddingCost)
	logger.Info("Source upserted",
		zap.String("source_id", req.SourceID),
		zap.Int("vectors", summary.TotalVectors),
		zap.Float64("embedding_cost", summary.EmbeddingCost),
	)

	return summary, nil
}

func itemStatus(mode CleanupMode) string {
	switch mode {
	case CleanupIncremental:
		return "upserted"
	case CleanupFull:
		return "replaced"
	}
	return "inserted"
}

// chunkID is stable across runs so incremental upserts overwrite the same
// vectors.
func chunkID(sourceID, pageID string, index int) string {
	return utils.HashString(fmt.Sprintf("%s:%s:%d", sourceID, pageID, index))
}
