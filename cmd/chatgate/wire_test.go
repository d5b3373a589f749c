package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-gateway/internal/config"
	"chat-gateway/internal/integrations/inference"
	"chat-gateway/internal/integrations/ollama"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewCompleter_SelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Inference.APIKey = "hf_test"

	llm, err := newCompleter(cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &inference.Client{}, llm)

	cfg.Inference.Provider = "Ollama"
	llm, err = newCompleter(cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &ollama.Client{}, llm)
}

func TestNewCompleter_RequiresKeySource(t *testing.T) {
	_, err := newCompleter(config.Default(), nil)
	require.Error(t, err)
}

func TestBuild_WithoutAWS(t *testing.T) {
	cfg := config.Default()
	cfg.APIToken = "s3cret"
	cfg.Inference.APIKey = "hf_test"

	deps, err := build(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	require.True(t, deps.gate.Allow("s3cret"))
	require.False(t, deps.gate.Allow("nope"))
	require.NotNil(t, deps.service)

	families, err := deps.registry.Gather()
	require.NoError(t, err)
	require.NotNil(t, families)
}

func TestBuild_RejectsUnknownClassification(t *testing.T) {
	cfg := config.Default()
	cfg.Inference.APIKey = "hf_test"
	cfg.Inference.Classification = "sorted"

	_, err := build(context.Background(), cfg, discardLogger())
	require.Error(t, err)
}
