package order

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/comanda/internal/domain/apperr"
)

func TestReconcileItems(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ten := decimal.NewFromInt(10)
	existing := []Item{
		{ID: "a", OrderID: "o", MenuItemID: "soup", Name: "Soup", UnitPrice: ten, Quantity: 2, Status: ItemReady, Position: 0},
		{ID: "b", OrderID: "o", MenuItemID: "soup", Name: "Soup", UnitPrice: ten, Quantity: 1, Notes: "spicy", Position: 1},
		{ID: "c", OrderID: "o", MenuItemID: "juice", Name: "Juice", UnitPrice: decimal.NewFromInt(5), Quantity: 1, Position: 2},
	}
	n := 0
	newID := func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}

	d, err := reconcileItems("o", existing, []ItemInput{
		{MenuItemID: "soup", Name: "Soup", UnitPrice: ten, Quantity: 1, Notes: "spicy"},
		{MenuItemID: "soup", Name: "Soup", UnitPrice: decimal.NewFromInt(99), Quantity: 4},
		{MenuItemID: "tea", Name: "Tea", UnitPrice: decimal.NewFromInt(3), Quantity: 1},
	}, now, newID)
	require.NoError(t, err)

	assert.Equal(t, []string{"c"}, d.Removed)
	require.Len(t, d.Updated, 1)
	assert.Equal(t, "a", d.Updated[0].ID)
	assert.Equal(t, 4, d.Updated[0].Quantity)
	assert.True(t, d.Updated[0].UnitPrice.Equal(ten), "price stays frozen")
	assert.Equal(t, ItemReady, d.Updated[0].Status)

	require.Len(t, d.Inserted, 1)
	assert.Equal(t, "new-1", d.Inserted[0].ID)
	assert.Equal(t, ItemPending, d.Inserted[0].Status)
	assert.Equal(t, 3, d.Inserted[0].Position)
	assert.Equal(t, now, d.Inserted[0].CreatedAt)

	var ids []string
	for _, it := range d.Items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"a", "b", "new-1"}, ids)
}

func TestReconcileItems_Unchanged(t *testing.T) {
	existing := []Item{
		{ID: "a", OrderID: "o", MenuItemID: "soup", Name: "Soup", UnitPrice: decimal.NewFromInt(10), Quantity: 2},
	}
	d, err := reconcileItems("o", existing, []ItemInput{
		{ID: "a", MenuItemID: "soup", Name: "Soup", UnitPrice: decimal.NewFromInt(10), Quantity: 2},
	}, time.Now(), func() string { return "x" })
	require.NoError(t, err)
	assert.True(t, d.empty())
	assert.Equal(t, existing, d.Items)
}

func TestReconcileItems_Errors(t *testing.T) {
	existing := []Item{
		{ID: "a", OrderID: "o", MenuItemID: "soup", Quantity: 2},
	}
	tests := []struct {
		name   string
		inputs []ItemInput
		field  string
	}{
		{
			name:   "UnknownID",
			inputs: []ItemInput{{ID: "zzz", MenuItemID: "soup", Quantity: 1}},
			field:  "items[0].id",
		},
		{
			name: "DuplicateID",
			inputs: []ItemInput{
				{ID: "a", MenuItemID: "soup", Quantity: 1},
				{ID: "a", MenuItemID: "soup", Quantity: 1},
			},
			field: "items[1].id",
		},
		{
			name:   "MenuItemMismatch",
			inputs: []ItemInput{{ID: "a", MenuItemID: "juice", Quantity: 1}},
			field:  "items[0].menuItemId",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reconcileItems("o", existing, tt.inputs, time.Now(), func() string { return "x" })
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
