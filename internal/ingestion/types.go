// Package ingestion loads Notion pages into the vector index: fetch, chunk,
// embed, write.
package ingestion

// DocType says how a Notion identifier is read.
type DocType string

const (
	DocTypePage     DocType = "page"
	DocTypeDatabase DocType = "database"
)

func (d DocType) Valid() bool {
	return d == DocTypePage || d == DocTypeDatabase
}

// CleanupMode decides what happens to vectors already stored for a source.
type CleanupMode string

const (
	// CleanupNone appends the new vectors.
	CleanupNone CleanupMode = "none"
	// CleanupIncremental overwrites vectors with the same chunk id and drops
	// leftover chunks of the fetched pages.
	CleanupIncremental CleanupMode = "incremental"
	// CleanupFull replaces every vector of the source with the new set.
	CleanupFull CleanupMode = "full"
)

func (m CleanupMode) Valid() bool {
	switch m {
	case CleanupNone, CleanupIncremental, CleanupFull:
		return true
	}
	return false
}

type Request struct {
	SourceID    string
	DocType     DocType
	CleanupMode CleanupMode
}

// Page is the flattened text of one Notion page.
type Page struct {
	ID   string
	Text string
}

// ItemResult reports what happened to one chunk.
type ItemResult struct {
	ChunkID string `json:"chunk_id"`
	PageID  string `json:"page_id"`
	Status  string `json:"status"`
}

type Summary struct {
	TotalVectors  int
	EmbeddingCost float64
	Items         []ItemResult
}
