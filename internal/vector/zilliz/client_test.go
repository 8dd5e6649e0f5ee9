package zilliz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceExprEscapes(t *testing.T) {
	assert.Equal(t, `source_id == "abc-123"`, SourceExpr("abc-123"))
	assert.Equal(t, `source_id == "a\"b\\c"`, SourceExpr(`a"b\c`))
}

func TestStaleExpr(t *testing.T) {
	assert.Equal(t, `source_id == "db-1"`, StaleExpr("db-1", nil, nil))
	assert.Equal(t,
		`source_id == "db-1" && chunk_id not in ["a", "b"]`,
		StaleExpr("db-1", nil, []string{"a", "b"}))
	assert.Equal(t,
		`source_id == "db-1" && page_id in ["p\"1"] && chunk_id not in ["a"]`,
		StaleExpr("db-1", []string{`p"1`}, []string{"a"}))
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	// "é" is two bytes; cutting inside it backs off to the previous rune.
	assert.Equal(t, "ab", truncate("abé", 3))
}

func TestColumnsRejectsWrongDimension(t *testing.T) {
	z := &Client{vectorDim: 3}

	_, err := z.columns([]DocumentChunk{{ID: "x", Embedding: []float32{1, 2}}})
	assert.Error(t, err)

	cols, err := z.columns([]DocumentChunk{{
		ID:        "x",
		Embedding: []float32{1, 2, 3},
		Text:      "hello",
		SourceID:  "src",
		PageID:    "page",
		DocType:   "page",
		Timestamp: time.Unix(1700000000, 0),
	}})
	require.NoError(t, err)
	require.Len(t, cols, 7)
	assert.Equal(t, "chunk_id", cols[0].Name())
	assert.Equal(t, 1, cols[0].Len())
}
