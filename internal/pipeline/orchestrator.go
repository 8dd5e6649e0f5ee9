// Package pipeline sequences the generation stages and persists their
// combined output through the lineage repository.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/ingestion"
	"github.com/content-agent/backend/internal/metrics"
	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/internal/stages"
	"github.com/content-agent/backend/pkg/logger"
)

// Lineage is the part of the lineage repository the orchestrator writes
// through.
type Lineage interface {
	ChatExists(ctx context.Context, chatID primitive.ObjectID) (bool, error)
	IdeationInChat(ctx context.Context, ideationID, chatID primitive.ObjectID) (bool, error)
	InsertIdeation(ctx context.Context, ideation *models.Ideation) (primitive.ObjectID, error)
	InsertScript(ctx context.Context, script *models.Script) (primitive.ObjectID, error)
}

// VectorUpserter loads an external document into the vector index.
type VectorUpserter interface {
	Upsert(ctx context.Context, req ingestion.Request) (*ingestion.Summary, error)
}

type Stages struct {
	Ideation  stages.Stage
	Research  stages.Stage
	Scripting stages.Stage
	Revision  stages.Stage
}

type Orchestrator struct {
	executor *stages.Executor
	stages   Stages
	lineage  Lineage
	upserter VectorUpserter
	now      func() time.Time
}

// NewOrchestrator wires the pipeline. upserter may be nil when no vector
// index is configured; Upsert then fails.
func NewOrchestrator(executor *stages.Executor, st Stages, lineage Lineage, upserter VectorUpserter) *Orchestrator {
	return &Orchestrator{
		executor: executor,
		stages:   st,
		lineage:  lineage,
		upserter: upserter,
		now:      time.Now,
	}
}

// run tracks one pipeline operation for logging, metrics and progress events.
type run struct {
	id        string
	operation string
	start     time.Time
	progress  ProgressFunc
	timings   map[string]float64
}

func (o *Orchestrator) newRun(operation string, progress ProgressFunc) *run {
	return &run{
		id:        uuid.New().String(),
		operation: operation,
		start:     time.Now(),
		progress:  progress,
		timings:   make(map[string]float64),
	}
}

func (r *run) emit(ev Event) {
	if r.progress == nil {
		return
	}
	ev.RunID = r.id
	r.progress(ev)
}

func (r *run) elapsed() float64 {
	return time.Since(r.start).Seconds()
}

func (r *run) finish(err error) {
	status := "success"
	if err != nil {
		status = "error"
		logger.Error("Pipeline run failed",
			zap.String("run_id", r.id),
			zap.String("operation", r.operation),
			zap.Float64("elapsed", r.elapsed()),
			zap.Error(err),
		)
	} else {
		logger.Info("Pipeline run completed",
			zap.String("run_id", r.id),
			zap.String("operation", r.operation),
			zap.Float64("elapsed", r.elapsed()),
		)
	}
	metrics.RecordPipelineRun(r.operation, status, time.Since(r.start))
}

func (o *Orchestrator) runStage(ctx context.Context, r *run, stage stages.Stage, in stages.Input) (stages.Result, error) {
	name := stage.Name()
	r.emit(Event{Stage: name, Status: EventStarted})
	start := time.Now()

	result, err := o.executor.Execute(ctx, stage, in)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		r.emit(Event{Stage: name, Status: EventFailed, Elapsed: elapsed, Error: err.Error()})
		return nil, err
	}

	r.timings[name] = elapsed
	r.emit(Event{Stage: name, Status: EventFinished, Elapsed: elapsed})
	return result, nil
}

// IdeateAndResearch runs ideation then research and persists one Ideation
// document holding both results. Nothing is written unless both succeed.
func (o *Orchestrator) IdeateAndResearch(ctx context.Context, req IdeateRequest) (res *IdeateResult, err error) {
	r := o.newRun("ideate_and_research", req.Progress)
	defer func() { r.finish(err) }()

	chatID, err := req.validate()
	if err != nil {
		return nil, err
	}

	exists, err := o.lineage.ChatExists(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: chat %s", models.ErrNotFound, req.ChatID)
	}

	logger.Info("Research started", zap.String("run_id", r.id), zap.String("chat_id", req.ChatID))

	ideationResult, err := o.runStage(ctx, r, o.stages.Ideation, stages.Input{Topic: req.InitialInput})
	if err != nil {
		return nil, err
	}

	researchResult, err := o.runStage(ctx, r, o.stages.Research, stages.Input{
		Topic:    req.InitialInput,
		Ideation: ideationResult,
	})
	if err != nil {
		return nil, err
	}

	total := r.elapsed()
	ideation := &models.Ideation{
		InitialInput:   req.InitialInput,
		IdeationResult: ideationResult,
		ResearchResult: researchResult,
		ProcessTime:    total,
		ChatID:         chatID,
		Timestamp:      unixSeconds(o.now()),
	}
	id, err := o.lineage.InsertIdeation(ctx, ideation)
	if err != nil {
		return nil, err
	}

	return &IdeateResult{
		IdeationResult:   ideationResult,
		ResearchResult:   researchResult,
		IdeationID:       id.Hex(),
		StageTimings:     r.timings,
		TotalProcessTime: total,
	}, nil
}

// GenerateScript writes a script from a prior ideation and research result
// and persists it against that ideation and chat.
func (o *Orchestrator) GenerateScript(ctx context.Context, req ScriptRequest) (res *ScriptResult, err error) {
	r := o.newRun("generate_script", req.Progress)
	defer func() { r.finish(err) }()

	ideationID, chatID, err := req.validate()
	if err != nil {
		return nil, err
	}

	ok, err := o.lineage.IdeationInChat(ctx, ideationID, chatID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: ideation %s in chat %s", models.ErrNotFound, req.IdeationID, req.ChatID)
	}

	output, err := o.runStage(ctx, r, o.stages.Scripting, stages.Input{
		Ideation: req.IdeationResult,
		Research: req.ResearchResult,
	})
	if err != nil {
		return nil, err
	}

	text, mrBeast, georgeBlackman, err := extractScript(output)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrStageFailure, stages.NameScripting, err)
	}

	total := r.elapsed()
	script := &models.Script{
		IdeationID:          ideationID,
		ChatID:              chatID,
		InitialInput:        req.IdeationResult,
		Script:              text,
		MrBeastScore:        mrBeast,
		GeorgeBlackmanScore: georgeBlackman,
		ProcessTime:         total,
		Timestamp:           unixSeconds(o.now()),
	}
	id, err := o.lineage.InsertScript(ctx, script)
	if err != nil {
		return nil, err
	}

	return &ScriptResult{
		Script:              text,
		MrBeastScore:        mrBeast,
		GeorgeBlackmanScore: georgeBlackman,
		ScriptID:            id.Hex(),
		StageTimings:        r.timings,
		TotalProcessTime:    total,
	}, nil
}

// ReviseScript applies a modification instruction to a script. The revision
// is returned but never persisted.
func (o *Orchestrator) ReviseScript(ctx context.Context, req ReviseRequest) (res *ReviseResult, err error) {
	r := o.newRun("revise_script", nil)
	defer func() { r.finish(err) }()

	if err := req.validate(); err != nil {
		return nil, err
	}

	output, err := o.runStage(ctx, r, o.stages.Revision, stages.Input{
		Script:      req.Script,
		Instruction: req.ModificationPrompt,
	})
	if err != nil {
		return nil, err
	}

	revised, ok := output[stages.FieldRevisedScript].(string)
	if !ok || strings.TrimSpace(revised) == "" {
		return nil, fmt.Errorf("%w: %s: missing %q in output", models.ErrStageFailure, stages.NameRevision, stages.FieldRevisedScript)
	}

	return &ReviseResult{Script: revised, TotalProcessTime: r.elapsed()}, nil
}

// Upsert loads a Notion page or database into the vector index.
func (o *Orchestrator) Upsert(ctx context.Context, req UpsertRequest) (res *UpsertResult, err error) {
	r := o.newRun("upsert", nil)
	defer func() { r.finish(err) }()

	docType, mode, err := req.validate()
	if err != nil {
		return nil, err
	}
	if o.upserter == nil {
		return nil, fmt.Errorf("vector upsert is not configured")
	}

	logger.Info("Upsert started",
		zap.String("run_id", r.id),
		zap.String("notion_id", req.NotionID),
		zap.String("doc_type", string(docType)),
		zap.String("cleanup_mode", string(mode)),
	)

	summary, err := o.upserter.Upsert(ctx, ingestion.Request{
		SourceID:    req.NotionID,
		DocType:     docType,
		CleanupMode: mode,
	})
	if err != nil {
		return nil, err
	}

	return &UpsertResult{
		TotalVectors:       summary.TotalVectors,
		TotalEmbeddingCost: summary.EmbeddingCost,
		UpsertDetails:      summary.Items,
		CleanupMode:        string(mode),
		LastUpdateTime:     req.LastUpdateTime,
		TotalProcessTime:   r.elapsed(),
	}, nil
}

func extractScript(output stages.Result) (text string, mrBeast, georgeBlackman float64, err error) {
	text, ok := output[stages.FieldFinalScript].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", 0, 0, fmt.Errorf("missing %q in output", stages.FieldFinalScript)
	}
	if mrBeast, err = score(output, stages.FieldMrBeastScore); err != nil {
		return "", 0, 0, err
	}
	if georgeBlackman, err = score(output, stages.FieldGeorgeBlackmanScore); err != nil {
		return "", 0, 0, err
	}
	return text, mrBeast, georgeBlackman, nil
}

// score reads a numeric field that the model may emit as a number or as a
// numeric string.
func score(output stages.Result, field string) (float64, error) {
	v, ok := output[field]
	if !ok {
		return 0, fmt.Errorf("missing %q in output", field)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric: %q", field, n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%q has unsupported type %T", field, v)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
