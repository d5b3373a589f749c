package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-gateway/internal/gate"
	"chat-gateway/internal/usecase"
)

const (
	routeChat   = "/chat/completions"
	routeHealth = "/health"

	headerCorrelationID = "X-Correlation-Id"
)

type UseCase interface {
	Complete(ctx context.Context, in usecase.CompleteInput) (usecase.CompleteOutput, error)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Handler serves the gateway routes from API Gateway proxy events.
type Handler struct {
	uc     UseCase
	gate   *gate.Gate
	logger *slog.Logger
}

func NewHandler(uc UseCase, g *gate.Gate) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	if g == nil {
		return nil, errors.New("handler: gate must not be nil")
	}
	return &Handler{uc: uc, gate: g, logger: slog.Default()}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := strings.TrimSpace(header(req, headerCorrelationID))
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	if req.HTTPMethod == http.MethodGet && req.Path == routeHealth {
		return jsonResponse(http.StatusOK, correlationID, healthResponse{Status: "ok"}), nil
	}

	if !h.gate.Allow(header(req, h.gate.Header())) {
		h.logger.Warn("request rejected", "requestId", correlationID, "method", req.HTTPMethod, "path", req.Path)
		return jsonResponse(http.StatusForbidden, correlationID, errorResponse{Error: gate.RejectionMessage}), nil
	}

	if req.Path != routeChat {
		return jsonResponse(http.StatusNotFound, correlationID, errorResponse{Error: "NOT_FOUND"}), nil
	}
	if req.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, correlationID, errorResponse{Error: "METHOD_NOT_ALLOWED"}), nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{
				Error:   string(usecase.ErrorInvalidInput),
				Message: "body is not valid base64",
			}), nil
		}
		body = decoded
	}

	out, err := h.uc.Complete(ctx, usecase.CompleteInput{RequestID: correlationID, Body: body})
	if err != nil {
		status, resp := errorToResponse(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("request failed", "requestId", correlationID, "err", err)
		}
		return jsonResponse(status, correlationID, resp), nil
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    responseHeaders(correlationID),
		Body:       string(out.Body),
	}, nil
}

// header looks a request header up case-insensitively, falling back to the
// multi-value map.
func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, v := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func errorToResponse(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, errorResponse{Error: string(ucErr.Code), Message: ucErr.Message()}
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, errorResponse{Error: string(ucErr.Code), Message: ucErr.Message()}
	default:
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
}

func responseHeaders(correlationID string) map[string]string {
	return map[string]string{
		"Content-Type":      "application/json",
		headerCorrelationID: correlationID,
	}
}

func jsonResponse(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    responseHeaders(correlationID),
		Body:       string(body),
	}
}
