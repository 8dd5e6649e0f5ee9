package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/content-agent/backend/internal/middleware/validation"
)

// Routes groups the handlers served under /api/v1.
type Routes struct {
	Pipeline  *PipelineHandler
	Lineage   *LineageHandler
	Sessions  *SessionHandler
	WebSocket *WebSocketHandler
	Health    *HealthHandler
	// Throttle guards the routes that call the model. Nil disables it.
	Throttle fiber.Handler
	Metrics  fiber.Handler
}

func (r Routes) Register(app *fiber.App) {
	throttle := r.Throttle
	if throttle == nil {
		throttle = func(c *fiber.Ctx) error { return c.Next() }
	}
	chatID := validation.ObjectIDParams("chat_id")

	api := app.Group("/api/v1")
	api.Use(validation.Middleware(validation.Config{}))

	api.Post("/upsert", throttle, r.Pipeline.Upsert)
	api.Post("/execute_agent_teams", throttle, r.Pipeline.ExecuteAgentTeams)
	api.Post("/generate_script", throttle, r.Pipeline.GenerateScript)
	api.Post("/modify_script", throttle, r.Pipeline.ModifyScript)

	api.Post("/create_chat", r.Lineage.CreateChat)
	api.Put("/update_chat/:chat_id", chatID, r.Lineage.UpdateChat)
	api.Get("/get_all_chats", r.Lineage.GetAllChats)
	api.Get("/get_ideation/:chat_id", chatID, r.Lineage.GetIdeation)
	api.Get("/get_scripts_by_ideation/:ideation_id/:chat_id",
		validation.ObjectIDParams("ideation_id", "chat_id"), r.Lineage.GetScriptsByIdeation)
	api.Post("/save_message", r.Lineage.SaveMessage)
	api.Get("/get_messages_by_chat/:chat_id", chatID, r.Lineage.GetMessagesByChat)
	api.Get("/lineage_graph/:chat_id", chatID, r.Lineage.GetLineageGraph)

	api.Post("/sessions", r.Sessions.Create)
	api.Get("/sessions/latest", r.Sessions.Latest)

	if r.WebSocket != nil {
		api.Get("/ws/pipeline", UpgradeRequired(), throttle, websocket.New(r.WebSocket.HandleConnection))
	}

	api.Get("/health", r.Health.Health)
	api.Get("/ready", r.Health.Ready)
	if r.Metrics != nil {
		api.Get("/metrics", r.Metrics)
	}
}
