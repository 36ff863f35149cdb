package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"order-agent/internal/domain"
)

type fakeDynamo struct {
	getOut          *dynamodb.GetItemOutput
	getErr          error
	putErr          error
	updateErr       error
	deleteErr       error
	lastGetInput    *dynamodb.GetItemInput
	lastPutInput    *dynamodb.PutItemInput
	lastUpdateInput *dynamodb.UpdateItemInput
	lastDeleteInput *dynamodb.DeleteItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdateInput = in
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDeleteInput = in
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:           "o-1",
		CustomerName: "Alice",
		Items: []domain.OrderItem{
			{Name: "Table", Quantity: 2, Price: 2000},
			{Name: "Chair", Quantity: 4, Price: 500},
		},
		TotalAmount: 6000,
		Status:      domain.OrderPending,
		CreatedAt:   time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC),
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "t")
	require.ErrorContains(t, err, "must not be nil")
	_, err = New(&fakeDynamo{}, " ")
	require.ErrorContains(t, err, "must not be empty")
}

func TestPutAndGetOrder_RoundTrip(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	require.NoError(t, c.PutOrder(context.Background(), sampleOrder()))
	require.Equal(t, "ORDER#o-1", db.lastPutInput.Item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "META", db.lastPutInput.Item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "6000", db.lastPutInput.Item["totalAmount"].(*types.AttributeValueMemberN).Value)
	_, hasConfirmed := db.lastPutInput.Item["confirmedAt"]
	require.False(t, hasConfirmed)

	db.getOut = &dynamodb.GetItemOutput{Item: db.lastPutInput.Item}
	got, err := c.GetOrder(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, sampleOrder(), got)
	require.True(t, *db.lastGetInput.ConsistentRead)
}

func TestGetOrder_Missing(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{}})
	got, err := c.GetOrder(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGetOrder_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getErr: errors.New("boom")})
	_, err := c.GetOrder(context.Background(), "o-1")
	require.ErrorContains(t, err, "boom")

	bad := map[string]types.AttributeValue{
		"orderId": &types.AttributeValueMemberS{Value: "o-1"},
		"items":   &types.AttributeValueMemberS{Value: "not json"},
	}
	c = mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: bad}})
	_, err = c.GetOrder(context.Background(), "o-1")
	require.ErrorContains(t, err, "decode")
}

func TestUpdateOrder_BuildsExpression(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	var u domain.OrderUpdate
	u.WithItems([]domain.OrderItem{{Name: "Table", Quantity: 1, Price: 2000}})
	require.NoError(t, c.UpdateOrder(context.Background(), "o-1", u))

	in := db.lastUpdateInput
	require.Equal(t, "SET items = :items, totalAmount = :total", *in.UpdateExpression)
	require.Equal(t, "attribute_exists(PK)", *in.ConditionExpression)
	require.Nil(t, in.ExpressionAttributeNames)
	require.Equal(t, "2000", in.ExpressionAttributeValues[":total"].(*types.AttributeValueMemberN).Value)

	var items []domain.OrderItem
	require.NoError(t, json.Unmarshal([]byte(in.ExpressionAttributeValues[":items"].(*types.AttributeValueMemberS).Value), &items))
	require.Len(t, items, 1)
}

func TestUpdateOrder_StatusUsesAttributeName(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	status := domain.OrderConfirmed
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.UpdateOrder(context.Background(), "o-1", domain.OrderUpdate{Status: &status, ConfirmedAt: &at}))

	in := db.lastUpdateInput
	require.Equal(t, "SET #status = :status, confirmedAt = :confirmedAt", *in.UpdateExpression)
	require.Equal(t, map[string]string{"#status": "status"}, in.ExpressionAttributeNames)
}

func TestUpdateOrder_EmptyIsNoop(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.UpdateOrder(context.Background(), "o-1", domain.OrderUpdate{}))
	require.Nil(t, db.lastUpdateInput)
}

func TestUpdateOrder_MissingOrder(t *testing.T) {
	db := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	c := mustNewClient(t, db)
	addr := "1 rue de la Paix"
	err := c.UpdateOrder(context.Background(), "o-1", domain.OrderUpdate{DeliveryAddress: &addr})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestConversation_RoundTrip(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	now := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	state := domain.NewConversation("o-1", "fr", now)
	state.Append(domain.RoleAssistant, "Bonjour", now)
	state.Step = domain.StepConfirmingItems
	addr := "10 rue X"
	state.PendingAddress = &addr

	require.NoError(t, c.UpdateConversation(context.Background(), state))
	item := db.lastPutInput.Item
	require.Equal(t, "CONV", item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "confirming_items", item["step"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "1", item["turns"].(*types.AttributeValueMemberN).Value)
	wantTTL := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC).Unix()
	require.Equal(t, int64ToString(wantTTL), item["ttl"].(*types.AttributeValueMemberN).Value)

	db.getOut = &dynamodb.GetItemOutput{Item: item}
	got, err := c.GetConversation(context.Background(), "o-1")
	require.NoError(t, err)
	require.Equal(t, state.Step, got.Step)
	require.Equal(t, "10 rue X", *got.PendingAddress)
	require.Len(t, got.Turns, 1)
	require.True(t, now.Equal(got.LastActive))
}

func TestGetConversation_Missing(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{}})
	got, err := c.GetConversation(context.Background(), "o-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUpdateConversation_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{putErr: errors.New("throttled")})
	require.ErrorContains(t, c.UpdateConversation(context.Background(), &domain.ConversationState{OrderID: "o-1"}), "throttled")
	require.Error(t, c.UpdateConversation(context.Background(), &domain.ConversationState{}))
}

func TestDeleteConversation(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.DeleteConversation(context.Background(), "o-1"))
	require.Equal(t, "ORDER#o-1", db.lastDeleteInput.Key["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "CONV", db.lastDeleteInput.Key["SK"].(*types.AttributeValueMemberS).Value)

	db.deleteErr = errors.New("boom")
	require.ErrorContains(t, c.DeleteConversation(context.Background(), "o-1"), "boom")
}

func TestInt64Attr_Errors(t *testing.T) {
	_, err := int64Attr(map[string]types.AttributeValue{}, "n")
	require.ErrorContains(t, err, "missing attribute")
	_, err = int64Attr(map[string]types.AttributeValue{"n": &types.AttributeValueMemberS{Value: "1"}}, "n")
	require.ErrorContains(t, err, "not a number")
	_, err = int64Attr(map[string]types.AttributeValue{"n": &types.AttributeValueMemberN{Value: "x"}}, "n")
	require.ErrorContains(t, err, "parse attribute")
}

func int64ToString(n int64) string {
	return numAttr(n).Value
}
