// Package postgres stores orders and conversations in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"order-agent/internal/domain"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	customer_name    TEXT NOT NULL DEFAULT '',
	customer_phone   TEXT NOT NULL DEFAULT '',
	items            JSONB NOT NULL DEFAULT '[]',
	total_amount     BIGINT NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'pending',
	delivery_address TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	confirmed_at     TIMESTAMPTZ,
	cancelled_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS conversations (
	order_id    TEXT PRIMARY KEY REFERENCES orders(id) ON DELETE CASCADE,
	step        TEXT NOT NULL,
	state       JSONB NOT NULL,
	last_active TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const selectOrder = `SELECT id, customer_name, customer_phone, items, total_amount, status, delivery_address, created_at, confirmed_at, cancelled_at FROM orders WHERE id = $1`

type Store struct {
	db *sqlx.DB
}

// Open connects to databaseURL and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return New(db)
}

func New(db *sqlx.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres: db must not be nil")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping is used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

type orderRow struct {
	ID              string       `db:"id"`
	CustomerName    string       `db:"customer_name"`
	CustomerPhone   string       `db:"customer_phone"`
	Items           []byte       `db:"items"`
	TotalAmount     int64        `db:"total_amount"`
	Status          string       `db:"status"`
	DeliveryAddress string       `db:"delivery_address"`
	CreatedAt       time.Time    `db:"created_at"`
	ConfirmedAt     sql.NullTime `db:"confirmed_at"`
	CancelledAt     sql.NullTime `db:"cancelled_at"`
}

func (r orderRow) toDomain() (*domain.Order, error) {
	var items []domain.OrderItem
	if err := json.Unmarshal(r.Items, &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	o := &domain.Order{
		ID:              r.ID,
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		Items:           items,
		TotalAmount:     domain.Money(r.TotalAmount),
		Status:          domain.OrderStatus(r.Status),
		DeliveryAddress: r.DeliveryAddress,
		CreatedAt:       r.CreatedAt,
	}
	if r.ConfirmedAt.Valid {
		t := r.ConfirmedAt.Time
		o.ConfirmedAt = &t
	}
	if r.CancelledAt.Valid {
		t := r.CancelledAt.Time
		o.CancelledAt = &t
	}
	return o, nil
}

// GetOrder returns nil when the order does not exist.
func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, selectOrder, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order: %w", err)
	}
	o, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("postgres: get order: %w", err)
	}
	return o, nil
}

// PutOrder inserts or replaces an order.
func (s *Store) PutOrder(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return errors.New("postgres: order id is required")
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("postgres: encode items: %w", err)
	}
	query := `
		INSERT INTO orders (id, customer_name, customer_phone, items, total_amount, status, delivery_address, created_at, confirmed_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			customer_name = EXCLUDED.customer_name,
			customer_phone = EXCLUDED.customer_phone,
			items = EXCLUDED.items,
			total_amount = EXCLUDED.total_amount,
			status = EXCLUDED.status,
			delivery_address = EXCLUDED.delivery_address,
			confirmed_at = EXCLUDED.confirmed_at,
			cancelled_at = EXCLUDED.cancelled_at`
	_, err = s.db.ExecContext(ctx, query,
		o.ID, o.CustomerName, o.CustomerPhone, items, int64(o.TotalAmount), string(o.Status),
		o.DeliveryAddress, o.CreatedAt, nullTime(o.ConfirmedAt), nullTime(o.CancelledAt))
	if err != nil {
		return fmt.Errorf("postgres: put order: %w", err)
	}
	return nil
}

// UpdateOrder writes the fields carried by u. A missing order yields domain.ErrOrderNotFound.
func (s *Store) UpdateOrder(ctx context.Context, orderID string, u domain.OrderUpdate) error {
	if u.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if u.Items != nil {
		items, err := json.Marshal(u.Items)
		if err != nil {
			return fmt.Errorf("postgres: encode items: %w", err)
		}
		add("items", items)
	}
	if u.TotalAmount != nil {
		add("total_amount", int64(*u.TotalAmount))
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.DeliveryAddress != nil {
		add("delivery_address", *u.DeliveryAddress)
	}
	if u.ConfirmedAt != nil {
		add("confirmed_at", *u.ConfirmedAt)
	}
	if u.CancelledAt != nil {
		add("cancelled_at", *u.CancelledAt)
	}
	args = append(args, orderID)
	query := fmt.Sprintf("UPDATE orders SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: update order: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("postgres: update order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	return nil
}

// GetConversation returns nil when no conversation is stored.
func (s *Store) GetConversation(ctx context.Context, orderID string) (*domain.ConversationState, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, "SELECT state FROM conversations WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get conversation: %w", err)
	}
	var state domain.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("postgres: decode conversation: %w", err)
	}
	return &state, nil
}

func (s *Store) UpdateConversation(ctx context.Context, state *domain.ConversationState) error {
	if state == nil || state.OrderID == "" {
		return errors.New("postgres: conversation order id is required")
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("postgres: encode conversation: %w", err)
	}
	query := `
		INSERT INTO conversations (order_id, step, state, last_active, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (order_id) DO UPDATE SET
			step = EXCLUDED.step,
			state = EXCLUDED.state,
			last_active = EXCLUDED.last_active,
			updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, state.OrderID, string(state.Step), raw, state.LastActive); err != nil {
		return fmt.Errorf("postgres: update conversation: %w", err)
	}
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, orderID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE order_id = $1", orderID); err != nil {
		return fmt.Errorf("postgres: delete conversation: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
