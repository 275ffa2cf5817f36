package chatlog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/chat-moderator/internal/moderation"
)

type mockDynamo struct {
	putInputs   []*dynamodb.PutItemInput
	queryInputs []*dynamodb.QueryInput
	pages       []*dynamodb.QueryOutput
	err         error
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInputs = append(m.putInputs, in)
	return &dynamodb.PutItemOutput{}, m.err
}

func (m *mockDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.queryInputs = append(m.queryInputs, in)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.pages) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	out := m.pages[0]
	m.pages = m.pages[1:]
	return out, nil
}

func (m *mockDynamo) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableStatus: types.TableStatusActive}}, nil
}

func storedItems(t *testing.T, m *mockDynamo) []map[string]types.AttributeValue {
	t.Helper()
	items := make([]map[string]types.AttributeValue, 0, len(m.putInputs))
	for _, in := range m.putInputs {
		items = append(items, in.Item)
	}
	return items
}

func TestDynamoStore_AppendWritesItem(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoStore(mock, "chat_log_entries")

	ts := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	entry := sampleEntry("一班", "小明", "你真笨", ts)
	entry.ID = "e1"
	require.NoError(t, store.Append(context.Background(), entry))

	require.Len(t, mock.putInputs, 1)
	in := mock.putInputs[0]
	assert.Equal(t, "chat_log_entries", *in.TableName)
	assert.Equal(t, "attribute_not_exists(sk)", *in.ConditionExpression)

	var item dynamoItem
	require.NoError(t, attributevalue.UnmarshalMap(in.Item, &item))
	assert.Equal(t, "一班", item.ConversationID)
	assert.Equal(t, "2025-03-14T09:30:00.000000000Z#e1", item.SortKey)
	assert.Contains(t, item.Verdict, `"is_anomaly":false`)
	assert.Greater(t, item.ExpiresAt, ts.Unix())

	assert.ErrorIs(t, store.Append(context.Background(), Entry{Speaker: "u"}), ErrConversationRequired)
}

func TestDynamoStore_RecentReturnsOldestFirst(t *testing.T) {
	writer := &mockDynamo{}
	store := NewDynamoStore(writer, "t")
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, msg := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(context.Background(), sampleEntry("c1", "u", msg, base.Add(time.Duration(i)*time.Second))))
	}
	items := storedItems(t, writer)

	// Newest first, split across two pages.
	reader := &mockDynamo{pages: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{items[2]}, LastEvaluatedKey: items[2]},
		{Items: []map[string]types.AttributeValue{items[1]}},
	}}
	store = NewDynamoStore(reader, "t")

	entries, err := store.Recent(context.Background(), "c1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Message)
	assert.Equal(t, "c", entries[1].Message)
	assert.Equal(t, moderation.NeutralAcknowledgement, entries[1].Verdict.Responses.ToOthers)

	require.Len(t, reader.queryInputs, 2)
	assert.False(t, *reader.queryInputs[0].ScanIndexForward)
	assert.Equal(t, int32(2), *reader.queryInputs[0].Limit)
	assert.Equal(t, int32(1), *reader.queryInputs[1].Limit)
	assert.NotNil(t, reader.queryInputs[1].ExclusiveStartKey)

	none, err := store.Recent(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDynamoStore_ListDayQueriesDayPrefix(t *testing.T) {
	writer := &mockDynamo{}
	ts := time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC)
	require.NoError(t, NewDynamoStore(writer, "t").Append(context.Background(), sampleEntry("c1", "小红", "在吗", ts)))

	reader := &mockDynamo{pages: []*dynamodb.QueryOutput{{Items: storedItems(t, writer)}}}
	entries, err := NewDynamoStore(reader, "t").ListDay(context.Background(), "c1", ts)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "小红", entries[0].Speaker)
	assert.True(t, entries[0].Timestamp.Equal(ts))

	in := reader.queryInputs[0]
	assert.True(t, strings.Contains(*in.KeyConditionExpression, "begins_with(sk, :day)"))
	day := in.ExpressionAttributeValues[":day"].(*types.AttributeValueMemberS)
	assert.Equal(t, "2025-03-14T", day.Value)
}

func TestDynamoStore_Errors(t *testing.T) {
	mock := &mockDynamo{err: errors.New("throttled")}
	store := NewDynamoStore(mock, "t")

	_, err := store.Recent(context.Background(), "c1", 3)
	assert.ErrorContains(t, err, "throttled")
	_, err = store.ListDay(context.Background(), "c1", time.Now())
	assert.ErrorContains(t, err, "throttled")
	assert.Error(t, PingDynamoTable(context.Background(), mock, "t"))
	assert.NoError(t, PingDynamoTable(context.Background(), &mockDynamo{}, "t"))
}
