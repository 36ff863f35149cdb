package modification

import (
	"errors"
	"fmt"
	"strings"

	"order-agent/internal/domain"
)

// ErrNotApplicable is returned when a record cannot be executed against an order.
var ErrNotApplicable = errors.New("modification: not applicable")

// Result reports what Apply did.
type Result struct {
	Action domain.ModAction
	// Requested and Removed are set for remove actions. Removed may be lower
	// than Requested when the line held fewer units.
	Requested int
	Removed   int
}

// Clamped reports whether a remove took fewer units than asked for.
func (r Result) Clamped() bool {
	return r.Action == domain.ModRemove && r.Requested > 0 && r.Removed < r.Requested
}

// Apply executes m against order. On error the order is left untouched; on
// success its items and total are replaced and the total is consistent.
func Apply(order *domain.Order, m domain.Modification) (Result, error) {
	if order == nil {
		return Result{}, fmt.Errorf("%w: nil order", ErrNotApplicable)
	}
	work := append([]domain.OrderItem(nil), order.Items...)

	var (
		res Result
		err error
	)
	switch m.Action {
	case domain.ModReplace:
		work, err = applyReplace(work, m)
	case domain.ModAdd:
		work, err = applyAdd(work, m)
	case domain.ModRemove:
		work, res, err = applyRemove(work, m)
	case domain.ModModify:
		work, err = applyModify(work, m)
	default:
		err = fmt.Errorf("%w: action %q", ErrNotApplicable, m.Action)
	}
	if err != nil {
		return Result{}, err
	}
	total, err := checkLines(work)
	if err != nil {
		return Result{}, err
	}
	res.Action = m.Action

	order.Items = work
	order.TotalAmount = total
	return res, nil
}

// checkLines rejects lines above domain.MaxQuantity and totals that overflow.
func checkLines(items []domain.OrderItem) (domain.Money, error) {
	for _, it := range items {
		if it.Quantity > domain.MaxQuantity {
			return 0, fmt.Errorf("%w: %d x %q exceeds the line limit", ErrNotApplicable, it.Quantity, it.Name)
		}
	}
	total, err := domain.CheckedTotal(items)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotApplicable, err)
	}
	return total, nil
}

func applyReplace(items []domain.OrderItem, m domain.Modification) ([]domain.OrderItem, error) {
	if blank(m.OldItem) || blank(m.NewItem) {
		return nil, fmt.Errorf("%w: replace needs both items", ErrNotApplicable)
	}
	qty := m.NewQty
	if qty <= 0 {
		qty = 1
	}
	var replacedPrice domain.Money
	kept := items[:0:0]
	for _, it := range items {
		if domain.SameName(it.Name, m.OldItem) {
			replacedPrice = it.Price
			continue
		}
		kept = append(kept, it)
	}
	if i := indexOf(kept, m.NewItem); i >= 0 {
		kept[i].Quantity = qty
		return kept, nil
	}
	price, ok := inferPrice(kept, m.NewItem)
	if !ok {
		price = replacedPrice
	}
	return append(kept, domain.OrderItem{
		Name:     strings.TrimSpace(m.NewItem),
		Quantity: qty,
		Price:    price,
		Notes:    "added by assistant (replace)",
	}), nil
}

func applyAdd(items []domain.OrderItem, m domain.Modification) ([]domain.OrderItem, error) {
	if blank(m.NewItem) {
		return nil, fmt.Errorf("%w: add needs an item", ErrNotApplicable)
	}
	qty := m.NewQty
	if qty <= 0 {
		qty = 1
	}
	if i := indexOf(items, m.NewItem); i >= 0 {
		items[i].Quantity += qty
		return items, nil
	}
	price, _ := inferPrice(items, m.NewItem)
	return append(items, domain.OrderItem{
		Name:     strings.TrimSpace(m.NewItem),
		Quantity: qty,
		Price:    price,
		Notes:    "added by assistant (add)",
	}), nil
}

func applyRemove(items []domain.OrderItem, m domain.Modification) ([]domain.OrderItem, Result, error) {
	i := indexOf(items, m.OldItem)
	if blank(m.OldItem) || i < 0 {
		return nil, Result{}, fmt.Errorf("%w: %q is not in the order", ErrNotApplicable, m.OldItem)
	}
	current := items[i].Quantity
	requested := m.OldQty
	if requested <= 0 {
		requested = current
	}
	removed := min(requested, current)
	items[i].Quantity -= removed
	if items[i].Quantity <= 0 {
		items = append(items[:i], items[i+1:]...)
	}
	return items, Result{Requested: requested, Removed: removed}, nil
}

func applyModify(items []domain.OrderItem, m domain.Modification) ([]domain.OrderItem, error) {
	name := m.OldItem
	if blank(name) {
		name = m.NewItem
	}
	i := indexOf(items, name)
	if blank(name) || i < 0 {
		return nil, fmt.Errorf("%w: %q is not in the order", ErrNotApplicable, name)
	}
	if m.NewQty <= 0 {
		return append(items[:i], items[i+1:]...), nil
	}
	items[i].Quantity = m.NewQty
	return items, nil
}

// inferPrice looks for a line with the same name, then falls back to the
// price of the last line. ok is false when items is empty.
func inferPrice(items []domain.OrderItem, name string) (domain.Money, bool) {
	if i := indexOf(items, name); i >= 0 {
		return items[i].Price, true
	}
	if len(items) > 0 {
		return items[len(items)-1].Price, true
	}
	return 0, false
}

func indexOf(items []domain.OrderItem, name string) int {
	for i, it := range items {
		if domain.SameName(it.Name, name) {
			return i
		}
	}
	return -1
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Isolate keeps only the named line, optionally setting its quantity when
// qty is positive. It fails when the item is not in the order.
func Isolate(order *domain.Order, name string, qty int) error {
	i := order.FindItem(name)
	if i < 0 {
		return fmt.Errorf("%w: %q is not in the order", ErrNotApplicable, name)
	}
	line := order.Items[i]
	if qty > 0 {
		line.Quantity = qty
	}
	items := []domain.OrderItem{line}
	total, err := checkLines(items)
	if err != nil {
		return err
	}
	order.Items = items
	order.TotalAmount = total
	return nil
}
