package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/internal/pipeline"
	"github.com/content-agent/backend/pkg/logger"
)

// Websocket message types.
const (
	msgIdeate         = "ideate"
	msgGenerateScript = "generate_script"

	msgProgress = "progress"
	msgComplete = "complete"
	msgError    = "error"
)

// pendingRequests is how many frames a client may queue behind a running
// request.
const pendingRequests = 8

// wsRequest is one client frame. Payload carries the body the matching HTTP
// route would accept.
type wsRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type WebSocketHandler struct {
	pipeline Pipeline
}

func NewWebSocketHandler(p Pipeline) *WebSocketHandler {
	return &WebSocketHandler{pipeline: p}
}

// UpgradeRequired lets only websocket upgrade requests through.
func UpgradeRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	ctx, cancel := context.WithCancel(context.Background())
	requests := readRequests(ctx, cancel, c.ReadJSON)
	defer func() {
		cancel()
		c.Close()
		for range requests {
		}
		logger.Info("WebSocket connection closed")
	}()

	for req := range requests {
		if err := h.dispatch(ctx, req, c.WriteJSON); err != nil {
			logger.Error("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

// readRequests reads client frames until the connection fails. A read error
// cancels ctx, which stops any run still in progress, and closes the
// returned channel.
func readRequests(ctx context.Context, cancel context.CancelFunc, read func(interface{}) error) <-chan wsRequest {
	requests := make(chan wsRequest, pendingRequests)
	go func() {
		defer close(requests)
		defer cancel()
		for {
			var req wsRequest
			if err := read(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Error("Failed to read WebSocket message", zap.Error(err))
				}
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()
	return requests
}

// dispatch runs one requested pipeline operation, forwarding progress
// events before the final complete or error frame. The returned error is a
// write failure only.
func (h *WebSocketHandler) dispatch(ctx context.Context, req wsRequest, send func(interface{}) error) error {
	var sendErr error
	progress := func(ev pipeline.Event) {
		if sendErr != nil {
			return
		}
		sendErr = send(fiber.Map{"type": msgProgress, "event": ev})
	}

	var (
		result    fiber.Map
		err       error
		operation = "handle message"
	)

	switch req.Type {
	case msgIdeate:
		operation = "run ideation and research"
		var in pipeline.IdeateRequest
		if err = decodePayload(req.Payload, &in); err == nil {
			in.Progress = progress
			var res *pipeline.IdeateResult
			if res, err = h.pipeline.IdeateAndResearch(ctx, in); err == nil {
				result = ideateResponse(res)
			}
		}
	case msgGenerateScript:
		operation = "generate script"
		var in pipeline.ScriptRequest
		if err = decodePayload(req.Payload, &in); err == nil {
			in.Progress = progress
			var res *pipeline.ScriptResult
			if res, err = h.pipeline.GenerateScript(ctx, in); err == nil {
				result = scriptResponse(res)
			}
		}
	default:
		err = fmt.Errorf("%w: unknown message type %q", models.ErrMalformedInput, req.Type)
	}

	if sendErr != nil {
		return sendErr
	}
	if err != nil {
		logger.Warn("WebSocket request failed", zap.String("type", req.Type), zap.Error(err))
		return send(fiber.Map{
			"type":   msgError,
			"status": statusFor(err),
			"error":  clientMessage(operation, err),
		})
	}
	return send(fiber.Map{"type": msgComplete, "result": result})
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload is required", models.ErrMalformedInput)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", models.ErrMalformedInput, err)
	}
	return nil
}
