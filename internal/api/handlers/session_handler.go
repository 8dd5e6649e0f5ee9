package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/content-agent/backend/internal/models"
)

type Sessions interface {
	Create(ctx context.Context) (*models.Session, error)
	Latest(ctx context.Context) (*time.Time, error)
}

type SessionHandler struct {
	sessions Sessions
}

func NewSessionHandler(s Sessions) *SessionHandler {
	return &SessionHandler{sessions: s}
}

func (h *SessionHandler) Create(c *fiber.Ctx) error {
	session, err := h.sessions.Create(c.UserContext())
	if err != nil {
		return fail(c, "create session", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"expiry":  session.Expiry,
	})
}

// Latest reports the expiry of the newest session, null when none exists.
func (h *SessionHandler) Latest(c *fiber.Ctx) error {
	expiry, err := h.sessions.Latest(c.UserContext())
	if err != nil {
		return fail(c, "retrieve latest session", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"expiry":  expiry,
	})
}
