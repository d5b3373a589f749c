package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"chat-gateway/internal/gate"
	"chat-gateway/internal/usecase"
)

const (
	routeChat   = "/chat/completions"
	routeHealth = "/health"
)

// Completer is the chat-completion use case.
type Completer interface {
	Complete(ctx context.Context, in usecase.CompleteInput) (usecase.CompleteOutput, error)
}

// Observer receives request-level measurements.
type Observer interface {
	ObserveRequest(route string, status int)
	ObserveRejection()
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, int) {}
func (nopObserver) ObserveRejection()          {}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type Server struct {
	app      *fiber.App
	svc      Completer
	gate     *gate.Gate
	observer Observer
	logger   *slog.Logger
}

type Option func(*Server)

func WithObserver(o Observer) Option {
	return func(s *Server) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds the HTTP application. The health route is registered ahead of
// the API key check; every other route sits behind it.
func New(svc Completer, g *gate.Gate, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, errors.New("server: completer must not be nil")
	}
	if g == nil {
		return nil, errors.New("server: gate must not be nil")
	}
	s := &Server{
		svc:      svc,
		gate:     g,
		observer: nopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		AppName:               "chat-gateway",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(RequestID())
	app.Use(AccessLog(s.observer, s.logger))

	app.Get(routeHealth, s.health)

	app.Use(APIKey(s.gate, s.observer, s.logger))
	app.Post(routeChat, s.chatCompletions)

	s.app = app
	return s, nil
}

// App exposes the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(healthResponse{Status: "ok"})
}

func (s *Server) chatCompletions(c *fiber.Ctx) error {
	out, err := s.svc.Complete(c.UserContext(), usecase.CompleteInput{
		RequestID: requestID(c),
		Body:      c.Body(),
	})
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(out.Body)
}

// handleError renders use-case and routing errors as JSON.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status, body := errorToResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "requestId", requestID(c), "path", c.Path(), "err", err)
	}
	return c.Status(status).JSON(body)
}

func errorToResponse(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		return statusForCode(ucErr.Code), errorResponse{Error: string(ucErr.Code), Message: ucErr.Message()}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		switch fiberErr.Code {
		case fiber.StatusNotFound:
			return fiberErr.Code, errorResponse{Error: "NOT_FOUND"}
		case fiber.StatusMethodNotAllowed:
			return fiberErr.Code, errorResponse{Error: "METHOD_NOT_ALLOWED"}
		case fiber.StatusRequestEntityTooLarge:
			return fiberErr.Code, errorResponse{Error: string(usecase.ErrorInvalidInput), Message: fiberErr.Message}
		}
	}
	return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
}

func statusForCode(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
