package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spacesedan/ytsentiment/internal/models"
)

const (
	ANALYSES_TABLE_NAME = "CommentAnalyses"
	TTL_ATTRIBUTE       = "expires_at"
)

type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoStore keeps one item per analysis keyed by analysis_id. Expiry is
// left to the table's TTL on expires_at; reads also ignore expired items
// since DynamoDB deletes them lazily.
type DynamoStore struct {
	db    DynamoAPI
	table string
	ttl   time.Duration
	now   func() time.Time
}

func NewDynamoStore(db DynamoAPI, table string, ttl time.Duration) *DynamoStore {
	if table == "" {
		table = ANALYSES_TABLE_NAME
	}
	if ttl <= 0 {
		ttl = DEFAULT_TTL
	}
	return &DynamoStore{db: db, table: table, ttl: ttl, now: time.Now}
}

func (s *DynamoStore) Save(ctx context.Context, a *models.Analysis) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("[DynamoDB] Failed to marshal analysis: %w", err)
	}
	expirationTime := s.now().Add(s.ttl).Unix()
	item[TTL_ATTRIBUTE] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expirationTime)}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("[DynamoDB] Failed to put analysis %s: %w", a.ID, err)
	}

	slog.Info("[DynamoDB] Stored analysis",
		slog.String("analysis_id", a.ID),
		slog.String("table", s.table))
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, id string) (*models.Analysis, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"analysis_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[DynamoDB] Failed to get analysis %s: %w", id, err)
	}
	if len(out.Item) == 0 || s.expired(out.Item) {
		return nil, ErrNotFound
	}

	var a models.Analysis
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		slog.Error("[DynamoDB] Unable to unmarshal analysis", slog.String("error", err.Error()))
		return nil, fmt.Errorf("[DynamoDB] Failed to unmarshal analysis %s: %w", id, err)
	}
	return &a, nil
}

func (s *DynamoStore) expired(item map[string]types.AttributeValue) bool {
	n, ok := item[TTL_ATTRIBUTE].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ts, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return false
	}
	return s.now().Unix() > ts
}
