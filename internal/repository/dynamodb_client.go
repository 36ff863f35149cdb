package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"order-agent/internal/domain"
)

const (
	pkPrefixOrder = "ORDER#"
	skOrder       = "META"
	skConv        = "CONV"
	ttlDuration   = 30 * 24 * time.Hour // 30-day TTL on conversations
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client stores orders and their conversations in a single DynamoDB table.
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

func orderPK(orderID string) string {
	return pkPrefixOrder + orderID
}

func key(orderID, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: orderPK(orderID)},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// ttlValue returns a Unix timestamp 30 days in the future.
func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// GetOrder returns nil when the order does not exist.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(orderID, skOrder),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetOrder get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	o, err := itemToOrder(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: GetOrder decode: %w", err)
	}
	return o, nil
}

// PutOrder writes the full order record.
func (c *Client) PutOrder(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return errors.New("repository: PutOrder: order id is required")
	}
	item, err := orderItem(o)
	if err != nil {
		return fmt.Errorf("repository: PutOrder: %w", err)
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: PutOrder: %w", err)
	}
	return nil
}

// UpdateOrder sets the fields carried by u. A missing order yields domain.ErrOrderNotFound.
func (c *Client) UpdateOrder(ctx context.Context, orderID string, u domain.OrderUpdate) error {
	if u.Empty() {
		return nil
	}
	sets, values, err := updateExpression(u)
	if err != nil {
		return fmt.Errorf("repository: UpdateOrder: %w", err)
	}
	in := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.tableName),
		Key:                       key(orderID, skOrder),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: values,
	}
	// status is a reserved word.
	if u.Status != nil {
		in.ExpressionAttributeNames = map[string]string{"#status": "status"}
	}
	_, err = c.api.UpdateItem(ctx, in)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("repository: UpdateOrder %s: %w", orderID, domain.ErrOrderNotFound)
		}
		return fmt.Errorf("repository: UpdateOrder: %w", err)
	}
	return nil
}

func updateExpression(u domain.OrderUpdate) ([]string, map[string]types.AttributeValue, error) {
	values := map[string]types.AttributeValue{}
	var sets []string
	if u.Items != nil {
		encoded, err := json.Marshal(u.Items)
		if err != nil {
			return nil, nil, fmt.Errorf("encode items: %w", err)
		}
		sets = append(sets, "items = :items")
		values[":items"] = &types.AttributeValueMemberS{Value: string(encoded)}
	}
	if u.TotalAmount != nil {
		sets = append(sets, "totalAmount = :total")
		values[":total"] = numAttr(int64(*u.TotalAmount))
	}
	if u.Status != nil {
		sets = append(sets, "#status = :status")
		values[":status"] = &types.AttributeValueMemberS{Value: string(*u.Status)}
	}
	if u.DeliveryAddress != nil {
		sets = append(sets, "deliveryAddress = :address")
		values[":address"] = &types.AttributeValueMemberS{Value: *u.DeliveryAddress}
	}
	if u.ConfirmedAt != nil {
		sets = append(sets, "confirmedAt = :confirmedAt")
		values[":confirmedAt"] = timeAttr(*u.ConfirmedAt)
	}
	if u.CancelledAt != nil {
		sets = append(sets, "cancelledAt = :cancelledAt")
		values[":cancelledAt"] = timeAttr(*u.CancelledAt)
	}
	sort.Strings(sets)
	return sets, values, nil
}

// GetConversation returns nil when no conversation is stored.
func (c *Client) GetConversation(ctx context.Context, orderID string) (*domain.ConversationState, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(orderID, skConv),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetConversation get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	raw, err := strAttr(out.Item, "state")
	if err != nil {
		return nil, fmt.Errorf("repository: GetConversation decode: %w", err)
	}
	var state domain.ConversationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("repository: GetConversation decode state: %w", err)
	}
	return &state, nil
}

// UpdateConversation writes or replaces the conversation record.
func (c *Client) UpdateConversation(ctx context.Context, state *domain.ConversationState) error {
	if state == nil || state.OrderID == "" {
		return errors.New("repository: UpdateConversation: order id is required")
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("repository: UpdateConversation encode: %w", err)
	}
	item := key(state.OrderID, skConv)
	item["orderId"] = &types.AttributeValueMemberS{Value: state.OrderID}
	item["step"] = &types.AttributeValueMemberS{Value: string(state.Step)}
	item["lastActive"] = timeAttr(state.LastActive)
	item["turns"] = numAttr(int64(len(state.Turns)))
	item["state"] = &types.AttributeValueMemberS{Value: string(encoded)}
	item["ttl"] = numAttr(c.ttlValue())

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: UpdateConversation: %w", err)
	}
	return nil
}

func (c *Client) DeleteConversation(ctx context.Context, orderID string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       key(orderID, skConv),
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteConversation: %w", err)
	}
	return nil
}

func orderItem(o *domain.Order) (map[string]types.AttributeValue, error) {
	encoded, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	item := key(o.ID, skOrder)
	item["orderId"] = &types.AttributeValueMemberS{Value: o.ID}
	item["customerName"] = &types.AttributeValueMemberS{Value: o.CustomerName}
	item["customerPhone"] = &types.AttributeValueMemberS{Value: o.CustomerPhone}
	item["items"] = &types.AttributeValueMemberS{Value: string(encoded)}
	item["totalAmount"] = numAttr(int64(o.TotalAmount))
	item["status"] = &types.AttributeValueMemberS{Value: string(o.Status)}
	item["deliveryAddress"] = &types.AttributeValueMemberS{Value: o.DeliveryAddress}
	item["createdAt"] = timeAttr(o.CreatedAt)
	if o.ConfirmedAt != nil {
		item["confirmedAt"] = timeAttr(*o.ConfirmedAt)
	}
	if o.CancelledAt != nil {
		item["cancelledAt"] = timeAttr(*o.CancelledAt)
	}
	return item, nil
}

// itemToOrder converts a DynamoDB attribute map to an Order.
func itemToOrder(item map[string]types.AttributeValue) (*domain.Order, error) {
	id, err := strAttr(item, "orderId")
	if err != nil {
		return nil, err
	}
	rawItems, err := strAttr(item, "items")
	if err != nil {
		return nil, err
	}
	var items []domain.OrderItem
	if err := json.Unmarshal([]byte(rawItems), &items); err != nil {
		return nil, fmt.Errorf("repository: decode items: %w", err)
	}
	total, err := int64Attr(item, "totalAmount")
	if err != nil {
		return nil, err
	}
	status, err := strAttr(item, "status")
	if err != nil {
		return nil, err
	}
	name, _ := strAttr(item, "customerName")   // allow empty
	phone, _ := strAttr(item, "customerPhone") // allow empty
	address, _ := strAttr(item, "deliveryAddress")

	o := &domain.Order{
		ID:              id,
		CustomerName:    name,
		CustomerPhone:   phone,
		Items:           items,
		TotalAmount:     domain.Money(total),
		Status:          domain.OrderStatus(status),
		DeliveryAddress: address,
	}
	if o.CreatedAt, err = optionalTime(item, "createdAt"); err != nil {
		return nil, err
	}
	if t, err := optionalTime(item, "confirmedAt"); err != nil {
		return nil, err
	} else if !t.IsZero() {
		o.ConfirmedAt = &t
	}
	if t, err := optionalTime(item, "cancelledAt"); err != nil {
		return nil, err
	} else if !t.IsZero() {
		o.CancelledAt = &t
	}
	return o, nil
}

func numAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func timeAttr(t time.Time) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

func optionalTime(item map[string]types.AttributeValue, key string) (time.Time, error) {
	if _, ok := item[key]; !ok {
		return time.Time{}, nil
	}
	s, err := strAttr(item, key)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
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

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
