package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/content-agent/backend/internal/pipeline"
)

// Pipeline is the set of generation operations served over HTTP.
type Pipeline interface {
	IdeateAndResearch(ctx context.Context, req pipeline.IdeateRequest) (*pipeline.IdeateResult, error)
	GenerateScript(ctx context.Context, req pipeline.ScriptRequest) (*pipeline.ScriptResult, error)
	ReviseScript(ctx context.Context, req pipeline.ReviseRequest) (*pipeline.ReviseResult, error)
	Upsert(ctx context.Context, req pipeline.UpsertRequest) (*pipeline.UpsertResult, error)
}

type PipelineHandler struct {
	pipeline Pipeline
}

func NewPipelineHandler(p Pipeline) *PipelineHandler {
	return &PipelineHandler{pipeline: p}
}

func (h *PipelineHandler) Upsert(c *fiber.Ctx) error {
	var req pipeline.UpsertRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	res, err := h.pipeline.Upsert(c.UserContext(), req)
	if err != nil {
		return fail(c, "upsert", err)
	}

	return c.JSON(fiber.Map{
		"success":              true,
		"total_vectors":        res.TotalVectors,
		"total_embedding_cost": res.TotalEmbeddingCost,
		"upsert_details":       res.UpsertDetails,
		"cleanup_mode":         res.CleanupMode,
		"last_update_time":     res.LastUpdateTime,
		"total_process_time":   res.TotalProcessTime,
	})
}

func (h *PipelineHandler) ExecuteAgentTeams(c *fiber.Ctx) error {
	var req pipeline.IdeateRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	res, err := h.pipeline.IdeateAndResearch(c.UserContext(), req)
	if err != nil {
		return fail(c, "run ideation and research", err)
	}

	return c.JSON(ideateResponse(res))
}

func (h *PipelineHandler) GenerateScript(c *fiber.Ctx) error {
	var req pipeline.ScriptRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	res, err := h.pipeline.GenerateScript(c.UserContext(), req)
	if err != nil {
		return fail(c, "generate script", err)
	}

	return c.JSON(scriptResponse(res))
}

func (h *PipelineHandler) ModifyScript(c *fiber.Ctx) error {
	var req pipeline.ReviseRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	res, err := h.pipeline.ReviseScript(c.UserContext(), req)
	if err != nil {
		return fail(c, "modify script", err)
	}

	return c.JSON(fiber.Map{
		"success":            true,
		"script":             res.Script,
		"total_process_time": res.TotalProcessTime,
	})
}

func ideateResponse(res *pipeline.IdeateResult) fiber.Map {
	return fiber.Map{
		"success":            true,
		"ideation_result":    res.IdeationResult,
		"research_result":    res.ResearchResult,
		"ideation_id":        res.IdeationID,
		"stage_timings":      res.StageTimings,
		"total_process_time": res.TotalProcessTime,
	}
}

func scriptResponse(res *pipeline.ScriptResult) fiber.Map {
	return fiber.Map{
		"success":               true,
		"script":                res.Script,
		"mr_beast_score":        res.MrBeastScore,
		"george_blackman_score": res.GeorgeBlackmanScore,
		"script_id":             res.ScriptID,
		"stage_timings":         res.StageTimings,
		"total_process_time":    res.TotalProcessTime,
	}
}
