package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/order"
)

// split describes how a selection divides an order's items.
type split struct {
	Total decimal.Decimal
	// Sold holds one entry per consumed source line, with the sold quantity.
	Sold []order.Item
	// Removed lists fully consumed lines.
	Removed []string
	// Reduced holds partially consumed lines with their new quantity.
	Reduced []order.Item
	// Remaining is the original order's item set after the split.
	Remaining []order.Item
}

// planSplit validates selections against items and computes the split.
// Repeated selections of the same line or menu item accumulate.
func planSplit(items []order.Item, selections []Selection) (split, error) {
	if len(selections) == 0 {
		return split{}, apperr.Validation("items", "at least one item must be selected")
	}

	avail := make(map[string]int, len(items))
	for _, it := range items {
		avail[it.ID] = it.Quantity
	}
	sold := make(map[string]int, len(items))

	for i, sel := range selections {
		field := fmt.Sprintf("items[%d]", i)
		if sel.Quantity <= 0 {
			return split{}, apperr.Validation(field+".quantity", "must be greater than 0")
		}
		switch {
		case sel.ItemID != "" && sel.MenuItemID != "":
			return split{}, apperr.Validation(field, "set either itemId or menuItemId, not both")
		case sel.ItemID != "":
			it, ok := findItem(items, sel.ItemID)
			if !ok {
				return split{}, apperr.Validation(field+".itemId", "item %s is not on the order", sel.ItemID)
			}
			if sel.Quantity > avail[it.ID] {
				return split{}, apperr.Validation(field+".quantity",
					"requested %d of %s (%s) but only %d available", sel.Quantity, it.Name, it.ID, avail[it.ID])
			}
			avail[it.ID] -= sel.Quantity
			sold[it.ID] += sel.Quantity
		case sel.MenuItemID != "":
			total, name := 0, ""
			for _, it := range items {
				if it.MenuItemID == sel.MenuItemID {
					total += avail[it.ID]
					name = it.Name
				}
			}
			if name == "" {
				return split{}, apperr.Validation(field+".menuItemId", "menu item %s is not on the order", sel.MenuItemID)
			}
			if sel.Quantity > total {
				return split{}, apperr.Validation(field+".quantity",
					"requested %d of %s (%s) but only %d available", sel.Quantity, name, sel.MenuItemID, total)
			}
			need := sel.Quantity
			for _, it := range items {
				if need == 0 {
					break
				}
				if it.MenuItemID != sel.MenuItemID || avail[it.ID] == 0 {
					continue
				}
				n := min(need, avail[it.ID])
				avail[it.ID] -= n
				sold[it.ID] += n
				need -= n
			}
		default:
			return split{}, apperr.Validation(field, "itemId or menuItemId is required")
		}
	}

	s := split{Total: decimal.Zero}
	for _, it := range items {
		n := sold[it.ID]
		if n == 0 {
			s.Remaining = append(s.Remaining, it)
			continue
		}
		part := it
		part.Quantity = n
		s.Sold = append(s.Sold, part)
		s.Total = s.Total.Add(part.LineTotal())

		if n == it.Quantity {
			s.Removed = append(s.Removed, it.ID)
			continue
		}
		it.Quantity -= n
		s.Reduced = append(s.Reduced, it)
		s.Remaining = append(s.Remaining, it)
	}
	return s, nil
}

func findItem(items []order.Item, id string) (order.Item, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return order.Item{}, false
}
