// Package menu is the boundary to the menu catalog, which lives outside this
// service. Orders consult it only to validate identifying fields; prices and
// names are frozen onto order items by the caller.
package menu

import (
	"context"

	"github.com/shopspring/decimal"
)

// Item is a catalog entry.
type Item struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Category  string
	Available bool
}

// Catalog resolves menu item ids. Unknown ids are absent from the result.
type Catalog interface {
	Lookup(ctx context.Context, ids []string) (map[string]Item, error)
}
