package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/metrics"
	"github.com/content-agent/backend/pkg/logger"
	"github.com/content-agent/backend/pkg/retry"
)

// ErrEmptyCompletion is returned when the model answers with no choices or
// with blank content.
var ErrEmptyCompletion = errors.New("empty completion")

type Config struct {
	APIKey           string
	BaseURL          string
	Model            string
	EmbeddingModel   string
	Temperature      float32
	MaxTokens        int
	EmbeddingTimeout time.Duration
}

type Client struct {
	client           *openai.Client
	model            string
	embeddingModel   string
	temperature      float32
	maxTokens        int
	embeddingTimeout time.Duration
	retryConfig      retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	embeddingTimeout := cfg.EmbeddingTimeout
	if embeddingTimeout <= 0 {
		embeddingTimeout = 60 * time.Second
	}

	// Only embedding calls retry. Stage completions fail the run on the
	// first error.
	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &Client{
		client:           openai.NewClientWithConfig(clientCfg),
		model:            cfg.Model,
		embeddingModel:   cfg.EmbeddingModel,
		temperature:      cfg.Temperature,
		maxTokens:        cfg.MaxTokens,
		embeddingTimeout: embeddingTimeout,
		retryConfig:      retryConfig,
	}
}

// Complete runs one chat completion. The caller's context bounds it.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return c.complete(ctx, req, nil)
}

// CompleteJSON asks the model for a single JSON object and decodes it.
func (c *Client) CompleteJSON(ctx context.Context, req CompletionRequest) (map[string]interface{}, error) {
	resp, err := c.complete(ctx, req, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
	if err != nil {
		return nil, err
	}
	return ParseJSONObject(resp.Content)
}

func (c *Client) complete(ctx context.Context, req CompletionRequest, format *openai.ChatCompletionResponseFormat) (*CompletionResponse, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:          c.model,
			Messages:       messages,
			Temperature:    temperature,
			MaxTokens:      maxTokens,
			ResponseFormat: format,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyCompletion
	}

	logger.Debug("LLM completion generated",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	metrics.RecordTokens(c.model, "prompt", resp.Usage.PromptTokens)
	metrics.RecordTokens(c.model, "completion", resp.Usage.CompletionTokens)

	return &CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// GenerateBatchEmbeddings embeds texts in batches of 100 and returns the
// vectors in input order along with the total tokens billed.
func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.embeddingTimeout)
	defer cancel()

	embeddings := make([][]float32, 0, len(texts))
	totalTokens := 0

	batchSize := 100
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]

		resp, err := retry.DoWithResult(ctx, c.retryConfig, func() (openai.EmbeddingResponse, error) {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: batch,
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)
			if err != nil {
				return resp, fmt.Errorf("failed to generate batch embeddings: %w", err)
			}
			if len(resp.Data) != len(batch) {
				return resp, retry.Permanent(fmt.Errorf("embedding count mismatch: got %d for %d inputs", len(resp.Data), len(batch)))
			}
			return resp, nil
		})
		if err != nil {
			return nil, 0, err
		}

		for _, data := range resp.Data {
			embedding := make([]float32, len(data.Embedding))
			copy(embedding, data.Embedding)
			embeddings = append(embeddings, embedding)
		}
		totalTokens += resp.Usage.TotalTokens
	}

	metrics.RecordTokens(c.embeddingModel, "embedding", totalTokens)
	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)), zap.Int("tokens", totalTokens))

	return embeddings, totalTokens, nil
}

// ParseJSONObject decodes a model answer into a JSON object, tolerating a
// surrounding markdown code fence.
func ParseJSONObject(content string) (map[string]interface{}, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("model output is not a JSON object: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("model output is not a JSON object")
	}
	return out, nil
}
