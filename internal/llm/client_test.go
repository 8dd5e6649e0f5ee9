package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantKey string
		wantErr bool
	}{
		{name: "plain", content: `{"script": "hi"}`, wantKey: "script"},
		{name: "fenced", content: "```json\n{\"script\": \"hi\"}\n```", wantKey: "script"},
		{name: "bare fence", content: "```\n{\"a\": 1}\n```", wantKey: "a"},
		{name: "array", content: `[1, 2]`, wantErr: true},
		{name: "null", content: `null`, wantErr: true},
		{name: "prose", content: `Here is your script`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ParseJSONObject(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tt.wantKey)
		})
	}
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:         "test",
		BaseURL:        srv.URL + "/v1",
		Model:          "gpt-4o",
		EmbeddingModel: "text-embedding-3-small",
	})
}

func TestCompleteJSON(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		format, ok := body["response_format"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "json_object", format["type"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"Final_Script\":\"Open cold.\"}"}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	})

	out, err := c.CompleteJSON(context.Background(), CompletionRequest{SystemPrompt: "s", UserPrompt: "u"})
	require.NoError(t, err)
	assert.Equal(t, "Open cold.", out["Final_Script"])
}

func TestCompleteEmptyChoices(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "u"})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestGenerateBatchEmbeddingsRetries(t *testing.T) {
	var calls int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"try again"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2]},{"index":1,"embedding":[0.3,0.4]}],"usage":{"prompt_tokens":7,"total_tokens":7}}`))
	})

	vectors, tokens, err := c.GenerateBatchEmbeddings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
	assert.Equal(t, 7, tokens)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGenerateBatchEmbeddingsEmpty(t *testing.T) {
	c := NewClient(Config{Model: "gpt-4o"})

	vectors, tokens, err := c.GenerateBatchEmbeddings(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Zero(t, tokens)
}
