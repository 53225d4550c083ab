//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/auth"
	"github.com/xenking/comanda/internal/domain/menu"
	"github.com/xenking/comanda/internal/domain/order"
	"github.com/xenking/comanda/internal/domain/receipt"
	"github.com/xenking/comanda/internal/domain/report"
	"github.com/xenking/comanda/internal/domain/settlement"
	"github.com/xenking/comanda/internal/storage/postgres"
)

func startPostgres(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "comanda",
				"POSTGRES_PASSWORD": "comanda",
				"POSTGRES_DB":       "comanda",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(c) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, fmt.Sprintf("postgres://comanda:comanda@%s:%s/comanda?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.RunMigrations(ctx, pool))
	// The schema is idempotent.
	require.NoError(t, postgres.RunMigrations(ctx, pool))

	st := postgres.NewStore(pool)
	require.NoError(t, st.Menu.Upsert(ctx, []menu.Item{
		{ID: "lomo", Name: "Lomo Saltado", Price: decimal.RequireFromString("30.00"), Category: "Fondos", Available: true},
		{ID: "chicha", Name: "Chicha Morada", Price: decimal.RequireFromString("8.50"), Category: "Bebidas", Available: true},
		{ID: "ceviche", Name: "Ceviche", Price: decimal.RequireFromString("35.00"), Category: "Entradas", Available: false},
	}))
	return st
}

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	st := startPostgres(t)
	ctx := context.Background()
	loc := time.UTC

	orders := order.NewService(st, st.Orders, st.Outbox, st.Menu, order.WithLocation(loc))
	receipts := receipt.NewService(st, st.Sales, st.Orders, st.Receipts, st.Outbox, loc)
	settler := settlement.NewService(st, st.Orders, st.Sales, st.Outbox, receipts, settlement.WithLocation(loc))

	create := func() (*order.Order, error) {
		return orders.Create(ctx, order.CreateRequest{
			Type:        order.TypeDineIn,
			TableNumber: "5",
			Items: []order.ItemInput{
				{MenuItemID: "lomo", Name: "Lomo Saltado", UnitPrice: decimal.RequireFromString("30.00"), Quantity: 2},
				{MenuItemID: "chicha", Name: "Chicha Morada", UnitPrice: decimal.RequireFromString("8.50"), Quantity: 3, Notes: "sin hielo"},
			},
		})
	}
	newOrder := func(t *testing.T) *order.Order {
		t.Helper()
		o, err := create()
		require.NoError(t, err)
		return o
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		o := newOrder(t)
		assert.Regexp(t, `^ORD_\d{8}_\d{3}$`, o.ID)

		got, err := orders.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPending, got.Status)
		require.Len(t, got.Items, 2)
		assert.Equal(t, "lomo", got.Items[0].MenuItemID)
		assert.True(t, decimal.RequireFromString("85.50").Equal(got.Total()))
	})

	t.Run("CatalogValidation", func(t *testing.T) {
		_, err := orders.Create(ctx, order.CreateRequest{
			Type:         order.TypeTakeaway,
			CustomerName: "Ana",
			Items: []order.ItemInput{
				{MenuItemID: "ceviche", Name: "Ceviche", UnitPrice: decimal.RequireFromString("35.00"), Quantity: 1},
			},
		})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := orders.Get(ctx, "ORD_19990101_001")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = receipts.GetOrCreate(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("ConcurrentCreateNumbersUniquely", func(t *testing.T) {
		const n = 10
		ids := make(chan string, n)
		errs := make(chan error, n)
		var wg sync.WaitGroup
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o, err := create()
				if err != nil {
					errs <- err
					return
				}
				ids <- o.ID
			}()
		}
		wg.Wait()
		close(ids)
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		seen := map[string]bool{}
		for id := range ids {
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
		assert.Len(t, seen, n)
	})

	t.Run("ReconcileItems", func(t *testing.T) {
		o := newOrder(t)
		updated, err := orders.UpdateItems(ctx, o.ID, []order.ItemInput{
			{ID: o.Items[0].ID, MenuItemID: "lomo", Name: "Lomo Saltado", UnitPrice: decimal.RequireFromString("30.00"), Quantity: 1},
			{MenuItemID: "chicha", Name: "Chicha Morada", UnitPrice: decimal.RequireFromString("8.50"), Quantity: 1},
		})
		require.NoError(t, err)
		require.Len(t, updated.Items, 2)
		assert.Equal(t, o.Items[0].ID, updated.Items[0].ID)
		assert.Equal(t, 1, updated.Items[0].Quantity)
		assert.Equal(t, o.Items[1].ID, updated.Items[1].ID)
		assert.Empty(t, updated.Items[1].Notes)
	})

	t.Run("PartialThenFullSettlement", func(t *testing.T) {
		o := newOrder(t)

		res, err := settler.SettlePartial(ctx, settlement.PartialRequest{
			OrderID:       o.ID,
			PaymentMethod: settlement.Cash,
			Items:         []settlement.Selection{{MenuItemID: "chicha", Quantity: 2}},
			IssueReceipt:  true,
		})
		require.NoError(t, err)
		assert.True(t, res.IsPartialPayment)
		assert.True(t, decimal.RequireFromString("17.00").Equal(res.Sale.TotalAmount))
		assert.True(t, res.Sale.IsReceiptIssued)
		assert.Equal(t, o.ID, res.SettlementOrder.SettlementOf)

		rc, err := receipts.GetOrCreate(ctx, res.Sale.ID)
		require.NoError(t, err)
		assert.True(t, rc.Subtotal.Add(rc.Tax).Equal(rc.Total))
		require.Len(t, rc.Items, 1)
		assert.Equal(t, 2, rc.Items[0].Quantity)

		again, err := receipts.GetOrCreate(ctx, res.Sale.ID)
		require.NoError(t, err)
		assert.Equal(t, rc.Number, again.Number)

		err = orders.Delete(ctx, o.ID)
		assert.ErrorIs(t, err, apperr.ErrConflict)

		sale, err := settler.Settle(ctx, settlement.Request{OrderID: o.ID, PaymentMethod: settlement.MobileWallet})
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("68.50").Equal(sale.TotalAmount))
		assert.Greater(t, sale.Number, res.Sale.Number)

		_, err = settler.Settle(ctx, settlement.Request{OrderID: o.ID, PaymentMethod: settlement.Cash})
		assert.ErrorIs(t, err, apperr.ErrConflict)

		page, err := orders.List(ctx, order.ListRequest{Status: order.StatusPaid, IncludeSettlements: true, Limit: 100})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, page.Total, 2)
	})

	t.Run("ConcurrentSettleOnce", func(t *testing.T) {
		o := newOrder(t)
		const n = 5
		errs := make(chan error, n)
		var wg sync.WaitGroup
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := settler.Settle(ctx, settlement.Request{OrderID: o.ID, PaymentMethod: settlement.Cash})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		ok := 0
		for err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, apperr.ErrConflict)
		}
		assert.Equal(t, 1, ok)
	})

	t.Run("Report", func(t *testing.T) {
		sum, err := report.NewService(st.Reports, loc).Summary(ctx, time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Positive(t, sum.Sales)
		assert.Positive(t, sum.Orders())
		assert.True(t, sum.Revenue.IsPositive())
	})

	t.Run("MenuLookup", func(t *testing.T) {
		items, err := st.Menu.Lookup(ctx, []string{"lomo", "ceviche", "missing"})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.True(t, items["lomo"].Available)
		assert.False(t, items["ceviche"].Available)
	})

	t.Run("SalesListRange", func(t *testing.T) {
		sales, err := st.Sales.ListRange(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.NotEmpty(t, sales)
		for i := 1; i < len(sales); i++ {
			assert.Less(t, sales[i-1].Number, sales[i].Number)
		}

		none, err := st.Sales.ListRange(ctx, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("OutboxLease", func(t *testing.T) {
		now := time.Now()
		first, err := st.Outbox.Claim(ctx, 3, now, time.Minute)
		require.NoError(t, err)
		require.Len(t, first, 3)
		assert.Less(t, first[0].Seq, first[1].Seq)

		// Another dispatcher sees other rows while the lease holds.
		second, err := st.Outbox.Claim(ctx, 1000, now, time.Minute)
		require.NoError(t, err)
		for _, e := range second {
			assert.NotContains(t, []int64{first[0].Seq, first[1].Seq, first[2].Seq}, e.Seq)
		}
		var rest []int64
		for _, e := range second {
			rest = append(rest, e.Seq)
		}
		require.NoError(t, st.Outbox.Release(ctx, rest))

		before, err := st.Outbox.Pending(ctx)
		require.NoError(t, err)

		require.NoError(t, st.Outbox.MarkPublished(ctx, []int64{first[0].Seq}, now))
		require.NoError(t, st.Outbox.MarkFailed(ctx, first[1].Seq, "broker down", true))
		require.NoError(t, st.Outbox.MarkFailed(ctx, first[2].Seq, "broker down", false))

		after, err := st.Outbox.Pending(ctx)
		require.NoError(t, err)
		assert.Equal(t, before-2, after)

		again, err := st.Outbox.Claim(ctx, 1000, now, time.Minute)
		require.NoError(t, err)
		var claimed []int64
		for _, e := range again {
			claimed = append(claimed, e.Seq)
			if e.Seq == first[2].Seq {
				assert.Equal(t, 1, e.Attempts)
			}
		}
		assert.Contains(t, claimed, first[2].Seq)
		assert.NotContains(t, claimed, first[0].Seq)
		assert.NotContains(t, claimed, first[1].Seq)
	})

	t.Run("Terminals", func(t *testing.T) {
		hash := auth.HashKey([]byte("pepper"), "kitchen-key")
		id, err := st.Terminals.Register(ctx, "kitchen", hash, []string{"kitchen"})
		require.NoError(t, err)

		term, err := st.Terminals.FindByHash(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, id, term.ID)
		assert.True(t, term.HasScope("kitchen"))
		assert.False(t, term.HasScope("cashier"))

		_, err = st.Terminals.FindByHash(ctx, "nope")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}
