package pipeline

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/content-agent/backend/internal/ingestion"
	"github.com/content-agent/backend/internal/models"
)

// Event reports stage progress within one pipeline run.
type Event struct {
	RunID   string  `json:"run_id"`
	Stage   string  `json:"stage"`
	Status  string  `json:"status"`
	Elapsed float64 `json:"elapsed,omitempty"`
	Error   string  `json:"error,omitempty"`
}

const (
	EventStarted  = "started"
	EventFinished = "finished"
	EventFailed   = "failed"
)

// ProgressFunc receives events synchronously from the goroutine running the
// pipeline. It must not block for long.
type ProgressFunc func(Event)

type IdeateRequest struct {
	InitialInput string       `json:"initial_input"`
	ChatID       string       `json:"chat_id"`
	Progress     ProgressFunc `json:"-"`
}

func (r IdeateRequest) validate() (primitive.ObjectID, error) {
	if strings.TrimSpace(r.InitialInput) == "" {
		return primitive.NilObjectID, fmt.Errorf("%w: initial_input is required", models.ErrMalformedInput)
	}
	return models.ParseID("chat_id", r.ChatID)
}

type IdeateResult struct {
	IdeationResult   models.Payload     `json:"ideation_result"`
	ResearchResult   models.Payload     `json:"research_result"`
	IdeationID       string             `json:"ideation_id"`
	StageTimings     map[string]float64 `json:"stage_timings"`
	TotalProcessTime float64            `json:"total_process_time"`
}

type ScriptRequest struct {
	IdeationResult models.Payload `json:"ideation_result"`
	ResearchResult models.Payload `json:"research_result"`
	IdeationID     string         `json:"ideation_id"`
	ChatID         string         `json:"chat_id"`
	Progress       ProgressFunc   `json:"-"`
}

func (r ScriptRequest) validate() (ideationID, chatID primitive.ObjectID, err error) {
	if ideationID, err = models.ParseID("ideation_id", r.IdeationID); err != nil {
		return
	}
	if chatID, err = models.ParseID("chat_id", r.ChatID); err != nil {
		return
	}
	if len(r.IdeationResult) == 0 {
		err = fmt.Errorf("%w: ideation_result is required", models.ErrMalformedInput)
		return
	}
	if len(r.ResearchResult) == 0 {
		err = fmt.Errorf("%w: research_result is required", models.ErrMalformedInput)
	}
	return
}

type ScriptResult struct {
	Script              string             `json:"script"`
	MrBeastScore        float64            `json:"mr_beast_score"`
	GeorgeBlackmanScore float64            `json:"george_blackman_score"`
	ScriptID            string             `json:"script_id"`
	StageTimings        map[string]float64 `json:"stage_timings"`
	TotalProcessTime    float64            `json:"total_process_time"`
}

type ReviseRequest struct {
	Script             string `json:"script"`
	ModificationPrompt string `json:"modification_prompt"`
}

func (r ReviseRequest) validate() error {
	if strings.TrimSpace(r.Script) == "" {
		return fmt.Errorf("%w: script is required", models.ErrMalformedInput)
	}
	if strings.TrimSpace(r.ModificationPrompt) == "" {
		return fmt.Errorf("%w: modification_prompt is required", models.ErrMalformedInput)
	}
	return nil
}

type ReviseResult struct {
	Script           string  `json:"script"`
	TotalProcessTime float64 `json:"total_process_time"`
}

type UpsertRequest struct {
	NotionID       string `json:"notion_id"`
	DocType        string `json:"doc_type"`
	CleanupMode    string `json:"cleanup_mode"`
	LastUpdateTime string `json:"last_update_time"`
}

func (r UpsertRequest) validate() (ingestion.DocType, ingestion.CleanupMode, error) {
	if strings.TrimSpace(r.NotionID) == "" {
		return "", "", fmt.Errorf("%w: notion_id is required", models.ErrMalformedInput)
	}
	docType := ingestion.DocType(r.DocType)
	if !docType.Valid() {
		return "", "", fmt.Errorf("%w: doc_type %q must be page or database", models.ErrMalformedInput, r.DocType)
	}
	mode := ingestion.CleanupMode(r.CleanupMode)
	if mode == "" {
		mode = ingestion.CleanupNone
	}
	if !mode.Valid() {
		return "", "", fmt.Errorf("%w: cleanup_mode %q must be none, incremental or full", models.ErrMalformedInput, r.CleanupMode)
	}
	return docType, mode, nil
}

type UpsertResult struct {
	TotalVectors       int                    `json:"total_vectors"`
	TotalEmbeddingCost float64                `json:"total_embedding_cost"`
	UpsertDetails      []ingestion.ItemResult `json:"upsert_details"`
	CleanupMode        string                 `json:"cleanup_mode"`
	LastUpdateTime     string                 `json:"last_update_time"`
	TotalProcessTime   float64                `json:"total_process_time"`
}
