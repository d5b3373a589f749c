package server

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"chat-gateway/internal/gate"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	localsRequestID     = "requestId"
)

// RequestID propagates the caller's correlation ID or assigns a new one.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.Clone(strings.TrimSpace(c.Get(headerCorrelationID)))
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(localsRequestID, id)
		c.Set(headerCorrelationID, id)
		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(localsRequestID).(string)
	return id
}

// APIKey rejects requests whose credential header does not match the gate's
// secret. Rejected requests never reach later handlers.
func APIKey(g *gate.Gate, observer Observer, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !g.Allow(c.Get(g.Header())) {
			observer.ObserveRejection()
			logger.Warn("request rejected", "requestId", requestID(c), "method", c.Method(), "path", c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": gate.RejectionMessage})
		}
		return c.Next()
	}
}

// AccessLog logs every request and counts it by route and final status.
// Chain errors are resolved through the app's error handler first so the
// logged status is the one the caller sees.
func AccessLog(observer Observer, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if chainErr := c.Next(); chainErr != nil {
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		observer.ObserveRequest(routeLabel(c.Path()), status)

		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.UserContext(), level, "request",
			"requestId", requestID(c),
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start),
		)
		return nil
	}
}

// routeLabel bounds metric cardinality to the known routes.
func routeLabel(path string) string {
	switch path {
	case routeChat, routeHealth:
		return path
	default:
		return "other"
	}
}
