package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
)

var (
	// ErrOrderNotFound is returned by stores that report a missing order as an error.
	ErrOrderNotFound = errors.New("order not found")
	// ErrQuotaExceeded marks a generative backend refusing work for quota reasons.
	ErrQuotaExceeded = errors.New("generation quota exceeded")
	// ErrAmountOverflow is returned when a line or total does not fit in Money.
	ErrAmountOverflow = errors.New("amount overflows")
)

// MaxQuantity bounds the quantity of a single order line.
const MaxQuantity = 10000

// Money is an amount in minor currency units.
type Money int64

// String renders the amount with two decimals, e.g. 40.00.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Times multiplies the amount by a quantity.
func (m Money) Times(qty int) Money {
	return m * Money(qty)
}

type OrderItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    Money  `json:"price"`
	Notes    string `json:"notes,omitempty"`
}

// SameName compares item names case-insensitively, ignoring surrounding space.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

type Order struct {
	ID              string      `json:"id"`
	CustomerName    string      `json:"customerName"`
	CustomerPhone   string      `json:"customerPhone"`
	Items           []OrderItem `json:"items"`
	TotalAmount     Money       `json:"totalAmount"`
	Status          OrderStatus `json:"status"`
	DeliveryAddress string      `json:"deliveryAddress,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	ConfirmedAt     *time.Time  `json:"confirmedAt,omitempty"`
	CancelledAt     *time.Time  `json:"cancelledAt,omitempty"`
}

// ComputeTotal sums price*quantity over items.
func ComputeTotal(items []OrderItem) Money {
	var total Money
	for _, it := range items {
		total += it.Price.Times(it.Quantity)
	}
	return total
}

// CheckedTotal is ComputeTotal with overflow detection.
func CheckedTotal(items []OrderItem) (Money, error) {
	var total Money
	for _, it := range items {
		if it.Quantity < 0 || it.Price < 0 {
			return 0, fmt.Errorf("%w: negative line %q", ErrAmountOverflow, it.Name)
		}
		if it.Quantity > 0 && it.Price > Money(math.MaxInt64)/Money(it.Quantity) {
			return 0, fmt.Errorf("%w: line %q", ErrAmountOverflow, it.Name)
		}
		line := it.Price.Times(it.Quantity)
		if total > Money(math.MaxInt64)-line {
			return 0, fmt.Errorf("%w: total", ErrAmountOverflow)
		}
		total += line
	}
	return total, nil
}

// Recompute resets TotalAmount from the current items.
func (o *Order) Recompute() {
	o.TotalAmount = ComputeTotal(o.Items)
}

// Consistent reports whether the total matches the items and every line is positive.
func (o *Order) Consistent() bool {
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return false
		}
	}
	return o.TotalAmount == ComputeTotal(o.Items)
}

// FindItem returns the index of the line with the given name, or -1.
func (o *Order) FindItem(name string) int {
	for i, it := range o.Items {
		if SameName(it.Name, name) {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to mutate.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	if o.ConfirmedAt != nil {
		t := *o.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}

// OrderUpdate carries the fields a conversation turn may change. Nil fields are left untouched.
// Items and the recomputed total are always written together.
type OrderUpdate struct {
	Items           []OrderItem
	TotalAmount     *Money
	Status          *OrderStatus
	DeliveryAddress *string
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
}

// Empty reports whether the update changes nothing.
func (u OrderUpdate) Empty() bool {
	return u.Items == nil && u.TotalAmount == nil && u.Status == nil &&
		u.DeliveryAddress == nil && u.ConfirmedAt == nil && u.CancelledAt == nil
}

// WithItems sets the item list together with its recomputed total.
func (u *OrderUpdate) WithItems(items []OrderItem) {
	u.Items = append([]OrderItem{}, items...)
	total := ComputeTotal(items)
	u.TotalAmount = &total
}

// ApplyTo merges the update into o.
func (u OrderUpdate) ApplyTo(o *Order) {
	if u.Items != nil {
		o.Items = append([]OrderItem{}, u.Items...)
	}
	if u.TotalAmount != nil {
		o.TotalAmount = *u.TotalAmount
	}
	if u.Status != nil {
		o.Status = *u.Status
	}
	if u.DeliveryAddress != nil {
		o.DeliveryAddress = *u.DeliveryAddress
	}
	if u.ConfirmedAt != nil {
		t := *u.ConfirmedAt
		o.ConfirmedAt = &t
	}
	if u.CancelledAt != nil {
		t := *u.CancelledAt
		o.CancelledAt = &t
	}
}
