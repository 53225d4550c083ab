package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the order-level lifecycle state.
type Status string

const (
	StatusPending   Status = "Pendiente"
	StatusReady     Status = "Listo"
	StatusDelivered Status = "Entregado"
	StatusPaid      Status = "Pagado"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusDelivered, StatusPaid:
		return true
	}
	return false
}

// ItemStatus is the kitchen-readiness state of a single order item.
type ItemStatus string

const (
	ItemPending ItemStatus = "Pendiente"
	ItemReady   ItemStatus = "Listo"
	// ItemDelivered is reserved. No operation moves an item into it.
	ItemDelivered ItemStatus = "Entregado"
)

// Type distinguishes dine-in from takeaway orders.
type Type string

const (
	TypeDineIn   Type = "DineIn"
	TypeTakeaway Type = "Takeaway"
)

// Valid reports whether t is a known order type.
func (t Type) Valid() bool {
	return t == TypeDineIn || t == TypeTakeaway
}

// Order is a customer's dine-in or takeaway request and the items it owns.
type Order struct {
	ID           string
	Status       Status
	Type         Type
	TableNumber  string
	CustomerName string
	// SettlementOf is set on audit orders created by a partial settlement and
	// references the order the sold items were taken from.
	SettlementOf string
	CreatedAt    time.Time
	// UpdatedAt is the last-mutation instant.
	UpdatedAt time.Time
	Items     []Item
}

// Item is a line on an order. Price and name are frozen at creation.
type Item struct {
	ID         string
	OrderID    string
	MenuItemID string
	Name       string
	UnitPrice  decimal.Decimal
	Quantity   int
	Notes      string
	Status     ItemStatus
	// Position keeps items in the order they were added.
	Position  int
	CreatedAt time.Time
}

// LineTotal returns UnitPrice * Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total returns the sum of all line totals.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Item returns the item with the given id.
func (o *Order) Item(id string) (Item, bool) {
	for _, it := range o.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// IsSettlement reports whether o is an audit order created by a partial settlement.
func (o *Order) IsSettlement() bool {
	return o.SettlementOf != ""
}

// FormatID renders the human-legible order id for the seq-th order of day.
func FormatID(day time.Time, seq int) string {
	return fmt.Sprintf("ORD_%s_%03d", day.Format("20060102"), seq)
}

// Filter selects orders for listing. Zero values mean "no constraint".
type Filter struct {
	Status Status
	// From and To bound CreatedAt as [From, To).
	From time.Time
	To   time.Time
	// IncludeSettlements also returns audit orders created by partial settlements.
	IncludeSettlements bool
	Page               int
	Limit              int
}

// Page is one page of orders, most recently updated first.
type Page struct {
	Orders []Order
	Total  int
	Page   int
	Limit  int
}

// Repository persists orders and their items. Methods called with a ctx
// produced by a consistency.Coordinator run inside that transaction.
type Repository interface {
	// NextSequence increments and returns the order counter for day.
	NextSequence(ctx context.Context, day time.Time) (int, error)
	// Create inserts the order and all of its items.
	Create(ctx context.Context, o *Order) error
	// Get returns the order with its items or an apperr.NotFoundError.
	Get(ctx context.Context, id string) (*Order, error)
	// Lock is like Get but holds a row lock on the order until the
	// surrounding transaction ends.
	Lock(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f Filter) (*Page, error)
	// SetStatus updates the order status and its last-mutation instant.
	SetStatus(ctx context.Context, id string, s Status, at time.Time) error
	InsertItems(ctx context.Context, orderID string, items []Item) error
	// UpdateItem writes quantity, notes and status of an existing item.
	UpdateItem(ctx context.Context, it Item) error
	DeleteItems(ctx context.Context, orderID string, ids []string) error
	Delete(ctx context.Context, id string) error
	// CountSettlements returns how many audit orders reference id.
	CountSettlements(ctx context.Context, id string) (int, error)
}
