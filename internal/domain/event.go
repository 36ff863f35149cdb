package domain

import "time"

// OrderStatusEvent is published when a conversation moves an order to a final status.
type OrderStatusEvent struct {
	EventID    string      `json:"eventId"`
	OrderID    string      `json:"orderId"`
	Status     OrderStatus `json:"status"`
	Total      Money       `json:"total"`
	OccurredAt time.Time   `json:"occurredAt"`
}
