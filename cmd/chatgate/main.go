package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"chat-gateway/handler"
	"chat-gateway/internal/config"
	"chat-gateway/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cmd := &cli.Command{
		Name:  "chatgate",
		Usage: "api key gated proxy for chat completions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "use the named configuration file", Sources: cli.EnvVars("CHATGATE_CONFIG")},
			&cli.StringFlag{Name: "log-level", Usage: "override the configured log level (debug, info, warn, error)"},
			&cli.StringFlag{Name: "log-format", Usage: "override the configured log format (json, text)"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server",
				Action: serve,
			},
			{
				Name:   "lambda",
				Usage:  "run as an AWS Lambda behind API Gateway",
				Action: runLambda,
			},
			{
				Name:      "audit",
				Usage:     "print the audit record of a request",
				ArgsUsage: "<request-id>",
				Action:    showAudit,
			},
		},
		DefaultCommand: "serve",
	}

	// Exit on SIGINT or SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		abort := make(chan os.Signal, 1)
		signal.Notify(abort, syscall.SIGINT, syscall.SIGTERM)
		caught := 0
		for {
			<-abort
			caught++
			if caught == 1 {
				slog.Info("Caught signal, exiting gracefully")
				cancel()
			} else {
				slog.Info("Caught signal, exiting now")
				os.Exit(1)
			}
		}
	}()

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("Program was unsuccessful", slog.Any("error", err))
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the process logger.
func loadConfig(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if v := cmd.String("log-level"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", v, err)
		}
	}
	if v := cmd.String("log-format"); v != "" {
		cfg.LogFormat = v
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	logger := config.NewLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	deps, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(deps.service, deps.gate,
		server.WithObserver(deps.metrics),
		server.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if cfg.Prometheus.Enabled {
		metricsServer = &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Prometheus.Port))),
			Handler:           promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", slog.Any("error", err))
			}
		}()
		logger.Info("Serving metrics", slog.String("addr", metricsServer.Addr))
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- srv.Listen(cfg.Addr())
	}()
	logger.Info("Server listening", slog.String("addr", cfg.Addr()))

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func runLambda(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	deps, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	h, err := handler.NewHandler(deps.service, deps.gate)
	if err != nil {
		return err
	}

	lambda.StartWithOptions(h.Handle, lambda.WithContext(ctx))
	return nil
}
