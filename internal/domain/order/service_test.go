package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/event"
	"github.com/xenking/comanda/internal/domain/menu"
	"github.com/xenking/comanda/internal/domain/order"
	"github.com/xenking/comanda/internal/storage/memory"
)

var testNow = time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)

func newService(t *testing.T) (*order.Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	st.Menu().Put(
		menu.Item{ID: "soup", Name: "Soup", Price: decimal.NewFromInt(10), Available: true},
		menu.Item{ID: "juice", Name: "Juice", Price: decimal.NewFromInt(5), Available: true},
		menu.Item{ID: "flan", Name: "Flan", Price: decimal.NewFromInt(4), Available: false},
	)
	svc := order.NewService(st, st.Orders(), st.Outbox(), st.Menu(),
		order.WithClock(func() time.Time { return testNow }),
	)
	return svc, st
}

func soupAndJuice() []order.ItemInput {
	return []order.ItemInput{
		{MenuItemID: "soup", Name: "Soup", UnitPrice: decimal.NewFromInt(10), Quantity: 2},
		{MenuItemID: "juice", Name: "Juice", UnitPrice: decimal.NewFromInt(5), Quantity: 1},
	}
}

func createTable5(t *testing.T, svc *order.Service) *order.Order {
	t.Helper()
	o, err := svc.Create(context.Background(), order.CreateRequest{
		Items:       soupAndJuice(),
		Type:        order.TypeDineIn,
		TableNumber: "5",
	})
	require.NoError(t, err)
	return o
}

func TestCreate(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	o := createTable5(t, svc)
	assert.Equal(t, "ORD_20260314_001", o.ID)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "5", o.TableNumber)
	assert.True(t, o.Total().Equal(decimal.NewFromInt(25)))
	require.Len(t, o.Items, 2)
	for i, it := range o.Items {
		assert.NotEmpty(t, it.ID)
		assert.Equal(t, o.ID, it.OrderID)
		assert.Equal(t, order.ItemPending, it.Status)
		assert.Equal(t, i, it.Position)
	}

	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Items, got.Items)

	second := createTable5(t, svc)
	assert.Equal(t, "ORD_20260314_002", second.ID)

	events := st.Outbox().Events()
	require.Len(t, events, 2)
	assert.Equal(t, event.OrderCreated, events[0].Type)
	assert.Equal(t, o.ID, events[0].AggregateID)
	assert.Equal(t, "25.00", events[0].Attrs["total"])
}

func TestCreate_Takeaway(t *testing.T) {
	svc, _ := newService(t)

	o, err := svc.Create(context.Background(), order.CreateRequest{
		Items:        soupAndJuice(),
		Type:         order.TypeTakeaway,
		TableNumber:  "9",
		CustomerName: " Ana ",
	})
	require.NoError(t, err)
	assert.Empty(t, o.TableNumber)
	assert.Equal(t, "Ana", o.CustomerName)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   order.CreateRequest
		field string
	}{
		{
			name:  "NoItems",
			req:   order.CreateRequest{Type: order.TypeTakeaway},
			field: "items",
		},
		{
			name:  "DineInWithoutTable",
			req:   order.CreateRequest{Type: order.TypeDineIn, Items: soupAndJuice()},
			field: "tableNumber",
		},
		{
			name:  "UnknownType",
			req:   order.CreateRequest{Type: "Delivery", Items: soupAndJuice()},
			field: "orderType",
		},
		{
			name: "ZeroQuantity",
			req: order.CreateRequest{Type: order.TypeTakeaway, Items: []order.ItemInput{
				{MenuItemID: "soup", Name: "Soup", UnitPrice: decimal.NewFromInt(10), Quantity: 0},
			}},
			field: "items[0].quantity",
		},
		{
			name: "NegativePrice",
			req: order.CreateRequest{Type: order.TypeTakeaway, Items: []order.ItemInput{
				soupAndJuice()[0],
				{MenuItemID: "juice", Name: "Juice", UnitPrice: decimal.NewFromInt(-5), Quantity: 1},
			}},
			field: "items[1].unitPrice",
		},
		{
			name: "MissingName",
			req: order.CreateRequest{Type: order.TypeTakeaway, Items: []order.ItemInput{
				{MenuItemID: "soup", UnitPrice: decimal.NewFromInt(10), Quantity: 1},
			}},
			field: "items[0].menuItemName",
		},
		{
			name: "UnknownMenuItem",
			req: order.CreateRequest{Type: order.TypeTakeaway, Items: []order.ItemInput{
				{MenuItemID: "pizza", Name: "Pizza", UnitPrice: decimal.NewFromInt(10), Quantity: 1},
			}},
			field: "items[0].menuItemId",
		},
		{
			name: "UnavailableMenuItem",
			req: order.CreateRequest{Type: order.TypeTakeaway, Items: []order.ItemInput{
				{MenuItemID: "flan", Name: "Flan", UnitPrice: decimal.NewFromInt(4), Quantity: 1},
			}},
			field: "items[0].menuItemId",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newService(t)
			_, err := svc.Create(context.Background(), tt.req)
			require.ErrorIs(t, err, apperr.ErrValidation)

			var verr *apperr.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, st.Outbox().Events())
		})
	}
}

func TestCreate_RollsBackOnFailure(t *testing.T) {
	svc, st := newService(t)
	st.FailOn("outbox.record", errors.New("disk full"))

	_, err := svc.Create(context.Background(), order.CreateRequest{
		Items: soupAndJuice(), Type: order.TypeDineIn, TableNumber: "5",
	})
	require.Error(t, err)

	st.ClearFaults()
	page, err := svc.List(context.Background(), order.ListRequest{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	// The sequence increment was rolled back too.
	o := createTable5(t, svc)
	assert.Equal(t, "ORD_20260314_001", o.ID)
}

func TestUpdateItemStatus_AutoPromotes(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	o := createTable5(t, svc)

	got, err := svc.UpdateItemStatus(ctx, o.ID, o.Items[0].ID, order.ItemReady)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)

	got, err = svc.UpdateItemStatus(ctx, o.ID, o.Items[1].ID, order.ItemReady)
	require.NoError(t, err)
	assert.Equal(t, order.StatusReady, got.Status)
	assert.True(t, got.AllItemsReady())

	stored, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusReady, stored.Status)

	var types []event.Type
	for _, e := range st.Outbox().Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []event.Type{
		event.OrderCreated,
		event.ItemUpdated,
		event.ItemUpdated,
		event.OrderUpdated,
	}, types)
}

func TestUpdateItemStatus_Idempotent(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	o := createTable5(t, svc)

	_, err := svc.UpdateItemStatus(ctx, o.ID, o.Items[0].ID, order.ItemReady)
	require.NoError(t, err)
	before := len(st.Outbox().Events())

	got, err := svc.UpdateItemStatus(ctx, o.ID, o.Items[0].ID, order.ItemReady)
	require.NoError(t, err)
	assert.Equal(t, order.ItemReady, got.Items[0].Status)
	assert.Len(t, st.Outbox().Events(), before)
}

func TestUpdateItemStatus_Errors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	o := createTable5(t, svc)

	_, err := svc.UpdateItemStatus(ctx, o.ID, o.Items[0].ID, order.ItemPending)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.UpdateItemStatus(ctx, o.ID, o.Items[0].ID, order.ItemDelivered)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.UpdateItemStatus(ctx, o.ID, "no-such-item", order.ItemReady)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.UpdateItemStatus(ctx, "ORD_19990101_001", o.Items[0].ID, order.ItemReady)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateItemStatus_Concurrent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	items := make([]order.ItemInput, 8)
	for i := range items {
		items[i] = order.ItemInput{MenuItemID: "soup", Name: "Soup", UnitPrice: decimal.NewFromInt(10), Quantity: 1, Notes: string(rune('a' + i))}
	}
	o, err := svc.Create(ctx, order.CreateRequest{Items: items, Type: order.TypeTakeaway})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, it := range o.Items {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.UpdateItemStatus(ctx, o.ID, id, order.ItemReady)
			assert.NoError(t, err)
		}(it.ID)
	}
	wg.Wait()

	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusReady, got.Status)
}

func TestUpdateStatus(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	o := createTable5(t, svc)

	got, err := svc.UpdateStatus(ctx, o.ID, order.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, got.Status)

	_, err = svc.UpdateStatus(ctx, o.ID, order.StatusPaid)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.UpdateStatus(ctx, o.ID, "Cancelado")
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.UpdateStatus(ctx, "ORD_19990101_001", order.StatusReady)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateItems(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	o := createTable5(t, svc)
	soupID := o.Items[0].ID

	_, err := svc.UpdateItemStatus(ctx, o.ID, soupID, order.ItemReady)
	require.NoError(t, err)

	got, err := svc.UpdateItems(ctx, o.ID, []order.ItemInput{
		{ID: soupID, MenuItemID: "soup", Name: "Soup", UnitPrice: decimal.NewFromInt(10), Quantity: 3},
		{MenuItemID: "juice", Name: "Juice", UnitPrice: decimal.NewFromInt(5), Quantity: 2, Notes: "no ice"},
	})
	require.NoError(t, err)
	require.Len(t, got.Items, 2)

	assert.Equal(t, soupID, got.Items[0].ID, "matched item keeps its id")
	assert.Equal(t, 3, got.Items[0].Quantity)
	assert.Equal(t, order.ItemReady, got.Items[0].Status, "matched item keeps its readiness")
	assert.Equal(t, o.Items[1].ID, got.Items[1].ID, "matched by menu item")
	assert.Equal(t, "no ice", got.Items[1].Notes)
	assert.True(t, got.Total().Equal(decimal.NewFromInt(40)))

	stored, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Items, stored.Items)
}

func TestUpdateItems_Reconciles(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	o := createTable5(t, svc)

	for _, it := range o.Items {
		_, err := svc.UpdateItemStatus(ctx, o.ID, it.ID, order.ItemReady)
		require.NoError(t, err)
	}

	// Adding a fresh dish to a Listo order sends it back to the kitchen.
	got, err := svc.UpdateItems(ctx, o.ID, append(soupAndJuice(), order.ItemInput{
		MenuItemID: "juice", Name: "Juice", UnitPrice: decimal.NewFromInt(5), Quantity: 1, Notes: "large",
	}))
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Equal(t, order.ItemPending, got.Items[2].Status)

	// Removing the pending dish makes it Listo again.
	got, err = svc.UpdateItems(ctx, o.ID, soupAndJuice())
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, order.StatusReady, got.Status)
}

func TestUpdateItems_Errors(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	o := createTable5(t, svc)

	_, err := svc.UpdateItems(ctx, o.ID, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.UpdateItems(ctx, o.ID, []order.ItemInput{
		{ID: "foreign", MenuItemID: "soup", Name: "Soup", UnitPrice: decimal.NewFromInt(10), Quantity: 1},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.UpdateItems(ctx, "ORD_19990101_001", soupAndJuice())
	require.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, st.Orders().SetStatus(ctx, o.ID, order.StatusPaid, testNow))
	_, err = svc.UpdateItems(ctx, o.ID, soupAndJuice())
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.UpdateStatus(ctx, o.ID, order.StatusPending)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDelete(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	o := createTable5(t, svc)
	require.NoError(t, svc.Delete(ctx, o.ID))
	_, err := svc.Get(ctx, o.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	events := st.Outbox().Events()
	assert.Equal(t, event.OrderDeleted, events[len(events)-1].Type)

	require.ErrorIs(t, svc.Delete(ctx, o.ID), apperr.ErrNotFound)
}

func TestDelete_Delivered(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	o := createTable5(t, svc)

	_, err := svc.UpdateStatus(ctx, o.ID, order.StatusDelivered)
	require.NoError(t, err)

	err = svc.Delete(ctx, o.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	var cerr *apperr.ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, o.ID, cerr.ID)

	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, got.Status)
	assert.Len(t, got.Items, 2)
}

func TestList(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	yesterday := order.Order{
		ID:        "ORD_20260313_001",
		Status:    order.StatusPending,
		Type:      order.TypeTakeaway,
		CreatedAt: testNow.AddDate(0, 0, -1),
		UpdatedAt: testNow.AddDate(0, 0, -1),
	}
	require.NoError(t, st.Orders().Create(ctx, &yesterday))
	first := createTable5(t, svc)
	second := createTable5(t, svc)
	_, err := svc.UpdateStatus(ctx, first.ID, order.StatusDelivered)
	require.NoError(t, err)

	page, err := svc.List(ctx, order.ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)

	page, err = svc.List(ctx, order.ListRequest{Status: order.StatusPending, Today: true})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, second.ID, page.Orders[0].ID)

	page, err = svc.List(ctx, order.ListRequest{Status: order.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = svc.List(ctx, order.ListRequest{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Orders, 1)

	_, err = svc.List(ctx, order.ListRequest{Status: "Cancelado"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.List(ctx, order.ListRequest{Limit: 1000})
	require.ErrorIs(t, err, apperr.ErrValidation)
}
