package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-gateway/internal/domain"
)

const (
	defaultMaxTokens = 500
	defaultProvider  = "hf-inference"

	statusSuccess = "success"
	statusFailed  = "upstream_error"
)

// Completer is the inference collaborator. It returns the provider's
// completion object untouched.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (json.RawMessage, error)
}

// AuditWriter persists the outcome of a forwarded completion.
type AuditWriter interface {
	RecordCompletion(ctx context.Context, rec domain.AuditRecord) error
}

// UpstreamObserver receives the outcome and duration of each collaborator call.
type UpstreamObserver interface {
	ObserveUpstream(result string, elapsed time.Duration)
}

// Settings holds the fixed parameters of every forwarded completion.
type Settings struct {
	Model                string
	Provider             string
	MaxTokens            int
	DefaultSystemContent string
	Classification       Classification
}

type CompletionService struct {
	llm       Completer
	validator *Validator
	settings  Settings
	audit     AuditWriter
	observer  UpstreamObserver
	logger    *slog.Logger
}

type ServiceOption func(*CompletionService)

// WithAudit records every forwarded completion through w.
func WithAudit(w AuditWriter) ServiceOption {
	return func(s *CompletionService) {
		s.audit = w
	}
}

func WithObserver(o UpstreamObserver) ServiceOption {
	return func(s *CompletionService) {
		s.observer = o
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *CompletionService) {
		s.logger = l
	}
}

type CompleteInput struct {
	RequestID string
	Body      []byte
}

type CompleteOutput struct {
	Body json.RawMessage
}

func NewCompletionService(llm Completer, settings Settings, opts ...ServiceOption) (*CompletionService, error) {
	if llm == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	settings.Model = strings.TrimSpace(settings.Model)
	if settings.Model == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	if strings.TrimSpace(settings.Provider) == "" {
		settings.Provider = defaultProvider
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = defaultMaxTokens
	}
	if settings.DefaultSystemContent == "" {
		settings.DefaultSystemContent = DefaultSystemContent
	}
	if settings.Classification == "" {
		settings.Classification = ClassifyAsBuilt
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	s := &CompletionService{
		llm:       llm,
		validator: validator,
		settings:  settings,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Complete validates the request body, builds the forwarded transcript and
// relays the collaborator's answer.
func (s *CompletionService) Complete(ctx context.Context, in CompleteInput) (CompleteOutput, error) {
	req, err := s.validator.Decode(in.Body)
	if err != nil {
		return CompleteOutput{}, err
	}

	requestID := strings.TrimSpace(in.RequestID)
	if requestID == "" {
		requestID = newUUID()
	}

	forward := domain.CompletionRequest{
		Model:     s.settings.Model,
		Provider:  s.settings.Provider,
		MaxTokens: s.settings.MaxTokens,
		Messages:  Route(req.Messages, s.settings.Classification, s.settings.DefaultSystemContent),
	}

	start := time.Now()
	raw, err := s.llm.Complete(ctx, forward)
	elapsed := time.Since(start)

	status := statusSuccess
	if err != nil {
		status = statusFailed
	}
	if s.observer != nil {
		s.observer.ObserveUpstream(status, elapsed)
	}
	s.record(ctx, requestID, forward, status, elapsed)

	if err != nil {
		attrs := []any{"requestId", requestID, "err", err}
		if code, ok := upstreamStatusCode(err); ok {
			attrs = append(attrs, "upstreamStatus", code)
		}
		s.logger.Warn("inference call failed", attrs...)
		return CompleteOutput{}, newError(ErrorUpstream, "inference_error", err)
	}
	return CompleteOutput{Body: raw}, nil
}

// record writes the audit entry. Failures are logged and never surface to the caller.
func (s *CompletionService) record(ctx context.Context, requestID string, req domain.CompletionRequest, status string, elapsed time.Duration) {
	if s.audit == nil {
		return
	}
	rec := domain.AuditRecord{
		RequestID:    requestID,
		Model:        req.Model,
		Provider:     req.Provider,
		MessageCount: len(req.Messages),
		Status:       status,
		LatencyMs:    elapsed.Milliseconds(),
	}
	if err := s.audit.RecordCompletion(ctx, rec); err != nil {
		s.logger.Warn("failed to record completion", "requestId", requestID, "err", err)
	}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
