package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/urfave/cli/v3"

	"chat-gateway/internal/domain"
	"chat-gateway/internal/repository"
)

type auditReader interface {
	GetCompletion(ctx context.Context, requestID string) (*domain.AuditRecord, error)
}

// showAudit prints the audit record of the request ID given as the first argument.
func showAudit(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.AuditTable == "" {
		return errors.New("audit log is disabled, set AUDIT_TABLE")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	audit, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.AuditTable)
	if err != nil {
		return err
	}
	return printAudit(ctx, audit, cmd.Args().First(), os.Stdout)
}

func printAudit(ctx context.Context, r auditReader, requestID string, w io.Writer) error {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return errors.New("a request ID is required")
	}

	rec, err := r.GetCompletion(ctx, requestID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no audit record for request %q", requestID)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rec)
}
