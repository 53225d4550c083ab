// Package receipt derives immutable, tax-broken-down receipts from sales.
package receipt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/comanda/internal/domain/settlement"
)

// TaxRate is the single tax rate included in every sale total.
var TaxRate = decimal.RequireFromString("0.18")

// Receipt is issued at most once per sale and never changes afterwards.
type Receipt struct {
	ID            string
	SaleID        string
	OrderID       string
	Number        string
	PaymentMethod settlement.PaymentMethod
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	Items         []Line
	IssuedAt      time.Time
}

// Line is a frozen copy of a settled order item.
type Line struct {
	MenuItemID string
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
	Total      decimal.Decimal
	Notes      string
}

// Repository persists receipts.
type Repository interface {
	// GetBySale returns the receipt of saleID or an apperr.NotFoundError.
	GetBySale(ctx context.Context, saleID string) (*Receipt, error)
	Create(ctx context.Context, r *Receipt) error
}

// Breakdown splits a tax-inclusive total into subtotal and tax. The subtotal
// is rounded to cents and the tax absorbs the remainder, so subtotal + tax is
// exactly total.
func Breakdown(total decimal.Decimal) (subtotal, tax decimal.Decimal) {
	subtotal = total.DivRound(decimal.NewFromInt(1).Add(TaxRate), 2)
	return subtotal, total.Sub(subtotal)
}

// Number derives the receipt number from the issue date and the sale number.
func Number(issued time.Time, saleNumber int64) string {
	return fmt.Sprintf("B%s-%06d", issued.Format("20060102"), saleNumber)
}

const width = 40

// Format renders r as fixed-width printable text.
func Format(r *Receipt, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	rule := strings.Repeat("=", width)

	b.WriteString(rule + "\n")
	b.WriteString(center("RECEIPT") + "\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "No: %s\n", r.Number)
	fmt.Fprintf(&b, "Order: %s\n", r.OrderID)
	fmt.Fprintf(&b, "Date: %s\n", r.IssuedAt.In(loc).Format("2006-01-02 15:04"))
	b.WriteString(strings.Repeat("-", width) + "\n")
	for _, l := range r.Items {
		b.WriteString(columns(fmt.Sprintf("%d x %s", l.Quantity, l.Name), l.Total.StringFixed(2)) + "\n")
		fmt.Fprintf(&b, "    @ %s\n", l.UnitPrice.StringFixed(2))
		if l.Notes != "" {
			fmt.Fprintf(&b, "    * %s\n", l.Notes)
		}
	}
	b.WriteString(strings.Repeat("-", width) + "\n")
	b.WriteString(columns("Subtotal:", r.Subtotal.StringFixed(2)) + "\n")
	b.WriteString(columns(fmt.Sprintf("Tax (%s%%):", TaxRate.Shift(2).String()), r.Tax.StringFixed(2)) + "\n")
	b.WriteString(columns("TOTAL:", r.Total.StringFixed(2)) + "\n")
	fmt.Fprintf(&b, "Payment: %s\n", r.PaymentMethod)
	b.WriteString(rule + "\n")
	return b.String()
}

func columns(left, right string) string {
	pad := width - len(left) - len(right)
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}

func center(s string) string {
	pad := (width - len(s)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + s
}
