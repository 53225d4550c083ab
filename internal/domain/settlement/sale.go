// Package settlement turns orders into sales. A full settlement pays every
// item of an order. A partial settlement moves the selected items onto a new
// audit order, records the sale against it, and leaves the remainder open on
// the original order.
package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/comanda/internal/domain/order"
)

// PaymentMethod is how a sale was paid.
type PaymentMethod string

const (
	Cash         PaymentMethod = "Cash"
	MobileWallet PaymentMethod = "MobileWallet"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == Cash || m == MobileWallet
}

// Sale is the financial record of one settlement action.
type Sale struct {
	ID string
	// Number is a monotonically increasing sale counter assigned on insert.
	Number          int64
	OrderID         string
	PaymentMethod   PaymentMethod
	TotalAmount     decimal.Decimal
	IsReceiptIssued bool
	CreatedAt       time.Time
}

// SaleRepository persists sales.
type SaleRepository interface {
	// Create inserts s and assigns s.Number.
	Create(ctx context.Context, s *Sale) error
	// Get returns the sale or an apperr.NotFoundError.
	Get(ctx context.Context, id string) (*Sale, error)
	// Lock is like Get but holds a row lock until the transaction ends.
	Lock(ctx context.Context, id string) (*Sale, error)
	MarkReceiptIssued(ctx context.Context, id string) error
	// ListRange returns sales created in [from, to), oldest first.
	ListRange(ctx context.Context, from, to time.Time) ([]Sale, error)
}

// ReceiptIssuer issues the receipt of a committed sale.
type ReceiptIssuer interface {
	Issue(ctx context.Context, saleID string) error
}

// Selection picks a quantity of an order's items for partial settlement.
// Exactly one of ItemID and MenuItemID is set. A MenuItemID selection draws
// across every line of that menu item in order.
type Selection struct {
	ItemID     string
	MenuItemID string
	Quantity   int
}

// Request is the input of Service.Settle.
type Request struct {
	OrderID       string
	PaymentMethod PaymentMethod
	IssueReceipt  bool
}

// PartialRequest is the input of Service.SettlePartial.
type PartialRequest struct {
	OrderID       string
	PaymentMethod PaymentMethod
	Items         []Selection
	IssueReceipt  bool
}

// Result is the outcome of a partial settlement.
type Result struct {
	Sale *Sale
	// IsPartialPayment is true when the original order still has items.
	IsPartialPayment  bool
	OriginalOrderID   string
	SettlementOrderID string
	// Original is the original order after the settlement.
	Original *order.Order
	// SettlementOrder is the audit order holding the sold items.
	SettlementOrder *order.Order
}
