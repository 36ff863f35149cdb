package modification

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"order-agent/internal/domain"
)

func newOrder(items ...domain.OrderItem) *domain.Order {
	o := &domain.Order{ID: "o-1", Status: domain.OrderPending, Items: items}
	o.Recompute()
	return o
}

func TestApply_RemoveWholeLine(t *testing.T) {
	o := newOrder(
		domain.OrderItem{Name: "Table", Quantity: 2, Price: 2000},
		domain.OrderItem{Name: "Chair", Quantity: 4, Price: 500},
	)
	res, err := Apply(o, domain.Modification{Action: domain.ModRemove, OldItem: "Chair", OldQty: 4})
	require.NoError(t, err)
	require.Equal(t, 4, res.Removed)
	require.Equal(t, []domain.OrderItem{{Name: "Table", Quantity: 2, Price: 2000}}, o.Items)
	require.Equal(t, "40.00", o.TotalAmount.String())
	require.True(t, o.Consistent())
}

func TestApply_RemoveClamps(t *testing.T) {
	o := newOrder(domain.OrderItem{Name: "Chair", Quantity: 2, Price: 500}, domain.OrderItem{Name: "Table", Quantity: 1, Price: 2000})
	res, err := Apply(o, domain.Modification{Action: domain.ModRemove, OldItem: "chair", OldQty: 5})
	require.NoError(t, err)
	require.Equal(t, 5, res.Requested)
	require.Equal(t, 2, res.Removed)
	require.True(t, res.Clamped())
	require.Equal(t, -1, o.FindItem("Chair"))
	require.True(t, o.Consistent())
}

func TestApply_RemovePartial(t *testing.T) {
	o := newOrder(domain.OrderItem{Name: "Chair", Quantity: 4, Price: 500})
	res, err := Apply(o, domain.Modification{Action: domain.ModRemove, OldItem: "Chair", OldQty: 1})
	require.NoError(t, err)
	require.False(t, res.Clamped())
	require.Equal(t, 3, o.Items[0].Quantity)
	require.Equal(t, domain.Money(1500), o.TotalAmount)
}

func TestApply_AddInfersPriceFromLastItem(t *testing.T) {
	o := newOrder(domain.OrderItem{Name: "Table", Quantity: 2, Price: 2000})
	_, err := Apply(o, domain.Modification{Action: domain.ModAdd, NewItem: "Chair", NewQty: 3})
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	require.Equal(t, "Chair", o.Items[1].Name)
	require.Equal(t, 3, o.Items[1].Quantity)
	require.Equal(t, domain.Money(2000), o.Items[1].Price)
	require.Equal(t, domain.Money(10000), o.TotalAmount)
	require.True(t, o.Consistent())
}

func TestApply_AddIncrementsExistingLine(t *testing.T) {
	o := newOrder(domain.OrderItem{Name: "Chair", Quantity: 1, Price: 500})
	_, err := Apply(o, domain.Modification{Action: domain.ModAdd, NewItem: "CHAIR", NewQty: 2})
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	require.Equal(t, 3, o.Items[0].Quantity)
}

func TestApply_AddToEmptyOrderUsesZeroPrice(t *testing.T) {
	o := newOrder()
	_, err := Apply(o, domain.Modification{Action: domain.ModAdd, NewItem: "Lamp", NewQty: 1})
	require.NoError(t, err)
	require.Equal(t, domain.Money(0), o.Items[0].Price)
}

func TestApply_ReplaceSetsExactQuantity(t *testing.T) {
	o := newOrder(
		domain.OrderItem{Name: "Table", Quantity: 3, Price: 2000},
		domain.OrderItem{Name: "Desk", Quantity: 1, Price: 3000},
	)
	_, err := Apply(o, domain.Modification{Action: domain.ModReplace, OldItem: "Table", NewItem: "Desk", NewQty: 2})
	require.NoError(t, err)
	require.Equal(t, -1, o.FindItem("Table"))
	require.Equal(t, []domain.OrderItem{{Name: "Desk", Quantity: 2, Price: 3000}}, o.Items)
	require.True(t, o.Consistent())
}

func TestApply_ReplaceOnlyLineKeepsItsPrice(t *testing.T) {
	o := newOrder(domain.OrderItem{Name: "Lasagna", Quantity: 1, Price: 1200})
	_, err := Apply(o, domain.Modification{Action: domain.ModReplace, OldItem: "Lasagna", NewItem: "Pizza", NewQty: 1})
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	require.Equal(t, "Pizza", o.Items[0].Name)
	require.Equal(t, domain.Money(1200), o.Items[0].Price)
}

func TestApply_ModifyAbsolute(t *testing.T) {
	o := newOrder(domain.OrderItem{Name: "Chair", Quantity: 4, Price: 500}, domain.OrderItem{Name: "Table", Quantity: 1, Price: 2000})
	_, err := Apply(o, domain.Modification{Action: domain.ModModify, OldItem: "Chair", NewQty: 2})
	require.NoError(t, err)
	require.Equal(t, 2, o.Items[0].Quantity)

	_, err = Apply(o, domain.Modification{Action: domain.ModModify, OldItem: "Chair", NewQty: 0})
	require.NoError(t, err)
	require.Equal(t, -1, o.FindItem("Chair"))
	require.True(t, o.Consistent())
}

func TestApply_NotApplicableLeavesOrderUntouched(t *testing.T) {
	cases := []domain.Modification{
		{Action: domain.ModRemove, OldItem: "Sofa", OldQty: 1},
		{Action: domain.ModModify, OldItem: "Sofa", NewQty: 1},
		{Action: domain.ModAdd},
		{Action: domain.ModReplace, OldItem: "Chair"},
		{Action: domain.ModCancel},
		{},
	}
	for _, m := range cases {
		o := newOrder(domain.OrderItem{Name: "Chair", Quantity: 4, Price: 500})
		before := o.Clone()
		_, err := Apply(o, m)
		require.ErrorIs(t, err, ErrNotApplicable, m.String())
		require.Equal(t, before, o)
	}
}

func TestApply_RejectsOversizedQuantities(t *testing.T) {
	cases := []struct {
		name  string
		items []domain.OrderItem
		m     domain.Modification
	}{
		{
			name:  "add above the line limit",
			items: []domain.OrderItem{{Name: "Chair", Quantity: 4, Price: 500}},
			m:     domain.Modification{Action: domain.ModAdd, NewItem: "Chair", NewQty: domain.MaxQuantity},
		},
		{
			name:  "modify above the line limit",
			items: []domain.OrderItem{{Name: "Chair", Quantity: 4, Price: 500}},
			m:     domain.Modification{Action: domain.ModModify, OldItem: "Chair", NewQty: domain.MaxQuantity + 1},
		},
		{
			name:  "replace with saturated quantity",
			items: []domain.OrderItem{{Name: "Chair", Quantity: 4, Price: 500}},
			m:     domain.Modification{Action: domain.ModReplace, OldItem: "Chair", NewItem: "Stool", NewQty: quantityLimit},
		},
		{
			name:  "total overflow",
			items: []domain.OrderItem{{Name: "Yacht", Quantity: 1, Price: math.MaxInt64 / 2}},
			m:     domain.Modification{Action: domain.ModAdd, NewItem: "Yacht", NewQty: 2},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := newOrder(tc.items...)
			before := o.Clone()
			_, err := Apply(o, tc.m)
			require.ErrorIs(t, err, ErrNotApplicable)
			require.Equal(t, before, o)
		})
	}

	o := newOrder(domain.OrderItem{Name: "Chair", Quantity: 4, Price: 500})
	_, err := Apply(o, domain.Modification{Action: domain.ModModify, OldItem: "Chair", NewQty: domain.MaxQuantity})
	require.NoError(t, err)
	require.True(t, o.Consistent())
}

func TestApply_NeverLeavesNonPositiveLines(t *testing.T) {
	mods := []domain.Modification{
		{Action: domain.ModAdd, NewItem: "Lamp", NewQty: 1},
		{Action: domain.ModRemove, OldItem: "Chair", OldQty: 10},
		{Action: domain.ModModify, OldItem: "Table", NewQty: -3},
		{Action: domain.ModReplace, OldItem: "Lamp", NewItem: "Desk", NewQty: 0},
	}
	o := newOrder(domain.OrderItem{Name: "Chair", Quantity: 4, Price: 500}, domain.OrderItem{Name: "Table", Quantity: 1, Price: 2000})
	for _, m := range mods {
		_, err := Apply(o, m)
		require.NoError(t, err, m.String())
		require.True(t, o.Consistent(), m.String())
	}
	require.Equal(t, []domain.OrderItem{{Name: "Desk", Quantity: 1, Price: 2000, Notes: "added by assistant (replace)"}}, o.Items)
}

func TestIsolate(t *testing.T) {
	o := newOrder(domain.OrderItem{Name: "Chair", Quantity: 4, Price: 500}, domain.OrderItem{Name: "Table", Quantity: 2, Price: 2000})
	require.NoError(t, Isolate(o, "table", 1))
	require.Equal(t, []domain.OrderItem{{Name: "Table", Quantity: 1, Price: 2000}}, o.Items)
	require.Equal(t, domain.Money(2000), o.TotalAmount)

	require.ErrorIs(t, Isolate(o, "Sofa", 0), ErrNotApplicable)
	require.ErrorIs(t, Isolate(o, "Table", domain.MaxQuantity+1), ErrNotApplicable)
	require.Equal(t, 1, o.Items[0].Quantity)
}
