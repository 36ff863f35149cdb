package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"order-agent/internal/domain"
	"order-agent/internal/usecase"
)

type orderWriter interface {
	PutOrder(ctx context.Context, o *domain.Order) error
}

// seedOrders loads a JSON array of orders into store. Totals are recomputed
// from the items and an order whose total overflows is rejected.
func seedOrders(ctx context.Context, store usecase.Store, path string) (int, error) {
	w, ok := store.(orderWriter)
	if !ok {
		return 0, fmt.Errorf("app: store %T cannot be seeded", store)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("app: read seed file: %w", err)
	}
	var orders []domain.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		return 0, fmt.Errorf("app: decode seed file: %w", err)
	}
	for i := range orders {
		o := &orders[i]
		if o.Status == "" {
			o.Status = domain.OrderPending
		}
		total, err := domain.CheckedTotal(o.Items)
		if err != nil {
			return i, fmt.Errorf("app: seed order %s: %w", o.ID, err)
		}
		o.TotalAmount = total
		if err := w.PutOrder(ctx, o); err != nil {
			return i, fmt.Errorf("app: seed order %s: %w", o.ID, err)
		}
	}
	return len(orders), nil
}
