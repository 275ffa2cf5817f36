package chatlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/chat-moderator/internal/moderation"
)

const (
	dynamoEntryTTL = 30 * 24 * time.Hour
	// Fixed width so sort keys order chronologically as strings.
	sortKeyLayout = "2006-01-02T15:04:05.000000000Z"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// dynamoItem is the table layout: partition key conversationId, sort key
// sk = "<timestamp>#<id>".
type dynamoItem struct {
	ConversationID string `dynamodbav:"conversationId"`
	SortKey        string `dynamodbav:"sk"`
	ID             string `dynamodbav:"id"`
	Speaker        string `dynamodbav:"speaker"`
	Message        string `dynamodbav:"message"`
	ViewerResponse string `dynamodbav:"viewerResponse,omitempty"`
	Verdict        string `dynamodbav:"verdict"`
	Outcome        string `dynamodbav:"outcome,omitempty"`
	Cleared        bool   `dynamodbav:"cleared,omitempty"`
	CreatedAt      string `dynamodbav:"createdAt"`
	ExpiresAt      int64  `dynamodbav:"expiresAt,omitempty"`
}

// DynamoStore keeps entries in a DynamoDB table keyed by conversation and
// time. Items expire through the table's TTL on expiresAt.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
}

func NewDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	if client == nil {
		panic("chatlog: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("chatlog: table name cannot be empty")
	}
	return &DynamoStore{client: client, tableName: tableName}
}

func sortKey(e Entry) string {
	return e.Timestamp.UTC().Format(sortKeyLayout) + "#" + e.ID
}

func (s *DynamoStore) Append(ctx context.Context, entry Entry) error {
	entry, err := prepare(entry)
	if err != nil {
		return err
	}
	verdict, err := json.Marshal(entry.Verdict)
	if err != nil {
		return fmt.Errorf("chatlog: marshal verdict: %w", err)
	}
	item, err := attributevalue.MarshalMap(dynamoItem{
		ConversationID: entry.ConversationID,
		SortKey:        sortKey(entry),
		ID:             entry.ID,
		Speaker:        entry.Speaker,
		Message:        entry.Message,
		ViewerResponse: entry.ViewerResponse,
		Verdict:        string(verdict),
		Outcome:        entry.Outcome,
		Cleared:        entry.Cleared,
		CreatedAt:      entry.Timestamp.UTC().Format(time.RFC3339Nano),
		ExpiresAt:      entry.Timestamp.Add(dynamoEntryTTL).Unix(),
	})
	if err != nil {
		return fmt.Errorf("chatlog: marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	})
	if err != nil {
		return fmt.Errorf("chatlog: put item: %w", err)
	}
	return nil
}

func (s *DynamoStore) ListDay(ctx context.Context, conversationID string, day time.Time) ([]Entry, error) {
	prefix := day.UTC().Format("2006-01-02") + "T"
	var entries []Entry
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("conversationId = :conv AND begins_with(sk, :day)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":conv": &types.AttributeValueMemberS{Value: conversationID},
				":day":  &types.AttributeValueMemberS{Value: prefix},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("chatlog: query day: %w", err)
		}
		page, err := decodeItems(out.Items)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return entries, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// Recent queries newest first and returns the result oldest first.
func (s *DynamoStore) Recent(ctx context.Context, conversationID string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	var newest []Entry
	var startKey map[string]types.AttributeValue
	for len(newest) < n {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("conversationId = :conv"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":conv": &types.AttributeValueMemberS{Value: conversationID},
			},
			ScanIndexForward:  aws.Bool(false),
			Limit:             aws.Int32(int32(n - len(newest))),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("chatlog: query recent: %w", err)
		}
		page, err := decodeItems(out.Items)
		if err != nil {
			return nil, err
		}
		newest = append(newest, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	for i, j := 0, len(newest)-1; i < j; i, j = i+1, j-1 {
		newest[i], newest[j] = newest[j], newest[i]
	}
	return newest, nil
}

func decodeItems(items []map[string]types.AttributeValue) ([]Entry, error) {
	var rows []dynamoItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("chatlog: decode items: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("chatlog: decode timestamp %q: %w", row.CreatedAt, err)
		}
		var verdict moderation.Verdict
		if row.Verdict != "" {
			if err := json.Unmarshal([]byte(row.Verdict), &verdict); err != nil {
				return nil, fmt.Errorf("chatlog: decode verdict: %w", err)
			}
		}
		entries = append(entries, Entry{
			ID:             row.ID,
			ConversationID: row.ConversationID,
			Timestamp:      ts,
			Speaker:        row.Speaker,
			Message:        row.Message,
			ViewerResponse: row.ViewerResponse,
			Verdict:        verdict,
			Outcome:        row.Outcome,
			Cleared:        row.Cleared,
		})
	}
	return entries, nil
}

var errDynamoTableInactive = errors.New("chatlog: dynamodb table is not active")

type dynamoDescriber interface {
	DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// PingDynamoTable reports whether tableName exists and is active.
func PingDynamoTable(ctx context.Context, client dynamoDescriber, tableName string) error {
	out, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err != nil {
		return fmt.Errorf("chatlog: describe table: %w", err)
	}
	if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
		return errDynamoTableInactive
	}
	return nil
}
