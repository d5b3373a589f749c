package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"chat-gateway/internal/config"
	"chat-gateway/internal/gate"
	"chat-gateway/internal/integrations/inference"
	"chat-gateway/internal/integrations/ollama"
	"chat-gateway/internal/integrations/paramstore"
	"chat-gateway/internal/metrics"
	"chat-gateway/internal/repository"
	"chat-gateway/internal/usecase"
)

// apiTokenKey is the parameter holding the gate secret when API_TOKEN is unset.
const apiTokenKey = "api-token"

type dependencies struct {
	gate     *gate.Gate
	service  *usecase.CompletionService
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

// build wires the clients shared by the HTTP server and the Lambda handler.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dependencies, error) {
	var (
		params *paramstore.Client
		audit  *repository.Client
	)

	if cfg.ParamPrefix != "" || cfg.AuditTable != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}

		if cfg.ParamPrefix != "" {
			params, err = paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
			if err != nil {
				return nil, err
			}
		}

		if cfg.AuditTable != "" {
			audit, err = repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.AuditTable)
			if err != nil {
				return nil, err
			}
		}
	}

	secret := cfg.APIToken
	if secret == "" && params != nil {
		var err error
		secret, err = params.GetSecret(ctx, apiTokenKey)
		if err != nil {
			return nil, fmt.Errorf("resolve api token: %w", err)
		}
	}
	if strings.TrimSpace(secret) == "" {
		logger.Warn("No API token configured, every gated request will be rejected")
	}

	g, err := gate.New(cfg.APIKeyHeader, secret)
	if err != nil {
		return nil, err
	}

	llm, err := newCompleter(cfg, params)
	if err != nil {
		return nil, err
	}

	classification, err := usecase.ParseClassification(cfg.Inference.Classification)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	registry := prometheus.NewRegistry()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	opts := []usecase.ServiceOption{
		usecase.WithObserver(m),
		usecase.WithLogger(logger),
	}
	if audit != nil {
		opts = append(opts, usecase.WithAudit(audit))
	}

	svc, err := usecase.NewCompletionService(llm, usecase.Settings{
		Model:                cfg.Inference.Model,
		Provider:             cfg.Inference.Provider,
		MaxTokens:            cfg.Inference.MaxTokens,
		DefaultSystemContent: cfg.Inference.DefaultSystemContent,
		Classification:       classification,
	}, opts...)
	if err != nil {
		return nil, err
	}

	logger.Debug("Dependencies ready",
		slog.String("model", cfg.Inference.Model),
		slog.String("provider", cfg.Inference.Provider),
		slog.Bool("audit", audit != nil),
		slog.Bool("paramStore", params != nil),
	)

	return &dependencies{
		gate:     g,
		service:  svc,
		metrics:  m,
		registry: registry,
	}, nil
}

func newCompleter(cfg *config.Config, params *paramstore.Client) (usecase.Completer, error) {
	if cfg.UsesOllama() {
		return ollama.NewClient(cfg.Inference.OllamaURL, &http.Client{Timeout: cfg.Inference.Timeout})
	}

	opts := []inference.Option{
		inference.WithBaseURL(cfg.Inference.BaseURL),
		inference.WithTimeout(cfg.Inference.Timeout),
	}
	switch {
	case cfg.Inference.APIKey != "":
		opts = append(opts, inference.WithAPIKey(cfg.Inference.APIKey))
	case params != nil:
		opts = append(opts, inference.WithSecretGetter(params))
	}
	return inference.NewClient(opts...)
}
