package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/models"
	"github.com/content-agent/backend/pkg/logger"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrMalformedInput):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrStageFailure) && errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, models.ErrStageFailure):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// clientMessage is the error text a caller sees. Internal failures get a
// generic message; everything else reports the error text.
func clientMessage(operation string, err error) string {
	if statusFor(err) == fiber.StatusInternalServerError {
		return "Failed to " + operation
	}
	return err.Error()
}

// fail logs err once and writes the error envelope.
func fail(c *fiber.Ctx, operation string, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("operation", operation),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	} else {
		logger.Warn("Request rejected",
			zap.String("operation", operation),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   clientMessage(operation, err),
	})
}

func badBody(c *fiber.Ctx, err error) error {
	logger.Warn("Failed to parse request body", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   "Invalid request body",
	})
}
