package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-gateway/internal/domain"
)

const (
	pkPrefixCall = "CALL#"
	skMeta       = "META#"
	ttlDuration  = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client wraps a DynamoDB table holding the completion audit log.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// callPK returns the DynamoDB partition key for a forwarded completion.
func callPK(requestID string) string {
	return pkPrefixCall + requestID
}

// RecordCompletion writes one audit record. Records are immutable; a second
// write for the same request ID fails the condition check.
func (c *Client) RecordCompletion(ctx context.Context, rec domain.AuditRecord) error {
	if strings.TrimSpace(rec.RequestID) == "" {
		return errors.New("repository: RecordCompletion: request ID is required")
	}
	now := c.now().UTC()
	rec.PK = callPK(rec.RequestID)
	rec.SK = skMeta
	rec.CreatedAt = now.Format(time.RFC3339Nano)
	rec.TTL = now.Add(ttlDuration).Unix()

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                auditItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: RecordCompletion: %w", err)
	}
	return nil
}

// GetCompletion reads the audit record for a request ID. A missing record
// yields (nil, nil).
func (c *Client) GetCompletion(ctx context.Context, requestID string) (*domain.AuditRecord, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: callPK(requestID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetCompletion get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	rec, err := itemToAudit(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: GetCompletion unmarshal: %w", err)
	}
	return &rec, nil
}

func auditItem(rec domain.AuditRecord) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: rec.PK},
		"SK":           &types.AttributeValueMemberS{Value: rec.SK},
		"requestId":    &types.AttributeValueMemberS{Value: rec.RequestID},
		"model":        &types.AttributeValueMemberS{Value: rec.Model},
		"provider":     &types.AttributeValueMemberS{Value: rec.Provider},
		"messageCount": &types.AttributeValueMemberN{Value: strconv.Itoa(rec.MessageCount)},
		"status":       &types.AttributeValueMemberS{Value: rec.Status},
		"latencyMs":    &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.LatencyMs, 10)},
		"createdAt":    &types.AttributeValueMemberS{Value: rec.CreatedAt},
		"ttl":          &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.TTL, 10)},
	}
}

// itemToAudit converts a DynamoDB attribute map to an AuditRecord.
func itemToAudit(item map[string]types.AttributeValue) (domain.AuditRecord, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.AuditRecord{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.AuditRecord{}, err
	}
	requestID, err := strAttr(item, "requestId")
	if err != nil {
		return domain.AuditRecord{}, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.AuditRecord{}, err
	}
	count, err := intAttr(item, "messageCount")
	if err != nil {
		return domain.AuditRecord{}, err
	}
	model, _ := strAttr(item, "model")       // allow empty
	provider, _ := strAttr(item, "provider") // allow empty
	createdAt, _ := strAttr(item, "createdAt")
	latency, _ := intAttr(item, "latencyMs")
	ttl, _ := intAttr(item, "ttl")

	return domain.AuditRecord{
		PK:           pk,
		SK:           sk,
		RequestID:    requestID,
		Model:        model,
		Provider:     provider,
		MessageCount: count,
		Status:       status,
		LatencyMs:    int64(latency),
		CreatedAt:    createdAt,
		TTL:          int64(ttl),
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
