package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	kg "github.com/content-agent/backend/internal/kg/neo4j"
	"github.com/content-agent/backend/internal/lineage"
	"github.com/content-agent/backend/internal/models"
)

// Lineage is the read and bookkeeping side of the lineage repository.
type Lineage interface {
	CreateChat(ctx context.Context, timestamp string) (*models.Chat, error)
	UpdateChatInitialMessage(ctx context.Context, chatID, message string) error
	ListChats(ctx context.Context) ([]models.Chat, error)
	LatestIdeation(ctx context.Context, chatID string) (*models.Ideation, error)
	ScriptsForIdeation(ctx context.Context, ideationID, chatID string) ([]models.Script, error)
	SaveMessage(ctx context.Context, in lineage.SaveMessageInput) (*models.Message, error)
	MessagesForChat(ctx context.Context, chatID string) ([]models.Message, error)
}

// GraphSource serves the mirrored lineage graph.
type GraphSource interface {
	ChatGraph(ctx context.Context, chatID string) (*kg.Graph, error)
}

type LineageHandler struct {
	lineage Lineage
	graph   GraphSource
}

// NewLineageHandler builds the handler. graph may be nil when the graph
// mirror is disabled.
func NewLineageHandler(l Lineage, graph GraphSource) *LineageHandler {
	return &LineageHandler{lineage: l, graph: graph}
}

func (h *LineageHandler) CreateChat(c *fiber.Ctx) error {
	var req struct {
		Timestamp string `json:"timestamp"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	chat, err := h.lineage.CreateChat(c.UserContext(), req.Timestamp)
	if err != nil {
		return fail(c, "create chat", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"id":      chat.ID.Hex(),
	})
}

func (h *LineageHandler) UpdateChat(c *fiber.Ctx) error {
	var req struct {
		InitialMessage string `json:"initial_message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	if err := h.lineage.UpdateChatInitialMessage(c.UserContext(), c.Params("chat_id"), req.InitialMessage); err != nil {
		return fail(c, "update chat", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Chat updated successfully",
	})
}

func (h *LineageHandler) GetAllChats(c *fiber.Ctx) error {
	chats, err := h.lineage.ListChats(c.UserContext())
	if err != nil {
		return fail(c, "retrieve chats", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    chats,
	})
}

// GetIdeation returns the newest ideation of a chat, or data null when the
// chat has none.
func (h *LineageHandler) GetIdeation(c *fiber.Ctx) error {
	ideation, err := h.lineage.LatestIdeation(c.UserContext(), c.Params("chat_id"))
	if err != nil {
		return fail(c, "retrieve ideation", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    ideation,
	})
}

func (h *LineageHandler) GetScriptsByIdeation(c *fiber.Ctx) error {
	scripts, err := h.lineage.ScriptsForIdeation(c.UserContext(), c.Params("ideation_id"), c.Params("chat_id"))
	if err != nil {
		return fail(c, "retrieve scripts", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    scripts,
	})
}

func (h *LineageHandler) SaveMessage(c *fiber.Ctx) error {
	var req lineage.SaveMessageInput
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}

	msg, err := h.lineage.SaveMessage(c.UserContext(), req)
	if err != nil {
		return fail(c, "save message", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"id":      msg.ID.Hex(),
	})
}

func (h *LineageHandler) GetMessagesByChat(c *fiber.Ctx) error {
	messages, err := h.lineage.MessagesForChat(c.UserContext(), c.Params("chat_id"))
	if err != nil {
		return fail(c, "retrieve messages", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    messages,
	})
}

func (h *LineageHandler) GetLineageGraph(c *fiber.Ctx) error {
	if h.graph == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"success": false,
			"error":   "Lineage graph is not enabled",
		})
	}

	graph, err := h.graph.ChatGraph(c.UserContext(), c.Params("chat_id"))
	if err != nil {
		return fail(c, "retrieve lineage graph", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    graph,
	})
}
