package validation

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/pkg/logger"
)

type Config struct {
	AllowedContentTypes []string
}

// Middleware rejects POST and PUT requests whose body is not JSON.
func Middleware(cfg Config) fiber.Handler {
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}
		if len(c.Body()) == 0 {
			return c.Next()
		}

		contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
		for _, allowed := range cfg.AllowedContentTypes {
			if strings.HasPrefix(contentType, allowed) {
				return c.Next()
			}
		}

		logger.Warn("Rejected request content type",
			zap.String("path", c.Path()),
			zap.String("content_type", contentType),
		)
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"success": false,
			"error":   "Unsupported content type",
		})
	}
}

// ObjectIDParams rejects the request with 400 unless every named route
// parameter is a 24-character hex identifier. It must be registered on the
// route itself so the parameters are bound.
func ObjectIDParams(names ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, name := range names {
			if _, err := models.ParseID(name, c.Params(name)); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"error":   fmt.Sprintf("Invalid %s: %v", name, err),
				})
			}
		}
		return c.Next()
	}
}
