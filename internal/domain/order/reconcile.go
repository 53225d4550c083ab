package order

import (
	"fmt"
	"time"

	"github.com/xenking/comanda/internal/domain/apperr"
)

// itemDiff is the outcome of replacing an order's item set.
type itemDiff struct {
	Updated  []Item
	Inserted []Item
	Removed  []string
	// Items is the resulting item set in position order.
	Items []Item
}

func (d itemDiff) empty() bool {
	return len(d.Updated) == 0 && len(d.Inserted) == 0 && len(d.Removed) == 0
}

// reconcileItems matches inputs against the existing lines. An input carrying
// an ID must name an existing line. Inputs without one claim an unclaimed line
// with the same menu item and notes, then one with the same menu item.
// Matched lines keep status, price and name. Unmatched inputs become new
// Pendiente lines and unclaimed existing lines are removed.
func reconcileItems(orderID string, existing []Item, inputs []ItemInput, now time.Time, newID func() string) (itemDiff, error) {
	claimed := make([]bool, len(existing))
	match := make([]int, len(inputs))
	for i := range match {
		match[i] = -1
	}

	index := make(map[string]int, len(existing))
	for i, it := range existing {
		index[it.ID] = i
	}
	for i, in := range inputs {
		if in.ID == "" {
			continue
		}
		j, ok := index[in.ID]
		if !ok {
			return itemDiff{}, apperr.Validation(fmt.Sprintf("items[%d].id", i), "item %s does not belong to order %s", in.ID, orderID)
		}
		if claimed[j] {
			return itemDiff{}, apperr.Validation(fmt.Sprintf("items[%d].id", i), "item %s listed more than once", in.ID)
		}
		if existing[j].MenuItemID != in.MenuItemID {
			return itemDiff{}, apperr.Validation(fmt.Sprintf("items[%d].menuItemId", i), "item %s is %s, not %s", in.ID, existing[j].MenuItemID, in.MenuItemID)
		}
		claimed[j] = true
		match[i] = j
	}

	claim := func(i int, same func(Item, ItemInput) bool) {
		for j, it := range existing {
			if !claimed[j] && same(it, inputs[i]) {
				claimed[j] = true
				match[i] = j
				return
			}
		}
	}
	for i, in := range inputs {
		if in.ID == "" && match[i] < 0 {
			claim(i, func(it Item, in ItemInput) bool {
				return it.MenuItemID == in.MenuItemID && it.Notes == in.Notes
			})
		}
	}
	for i, in := range inputs {
		if in.ID == "" && match[i] < 0 {
			claim(i, func(it Item, in ItemInput) bool {
				return it.MenuItemID == in.MenuItemID
			})
		}
	}

	var d itemDiff
	next := 0
	for _, it := range existing {
		if it.Position >= next {
			next = it.Position + 1
		}
	}

	kept := make(map[int]Item, len(inputs))
	for i, in := range inputs {
		j := match[i]
		if j < 0 {
			it := Item{
				ID:         newID(),
				OrderID:    orderID,
				MenuItemID: in.MenuItemID,
				Name:       in.Name,
				UnitPrice:  in.UnitPrice,
				Quantity:   in.Quantity,
				Notes:      in.Notes,
				Status:     ItemPending,
				Position:   next,
				CreatedAt:  now,
			}
			next++
			d.Inserted = append(d.Inserted, it)
			continue
		}
		it := existing[j]
		if it.Quantity != in.Quantity || it.Notes != in.Notes {
			it.Quantity = in.Quantity
			it.Notes = in.Notes
			d.Updated = append(d.Updated, it)
		}
		kept[j] = it
	}

	for j, it := range existing {
		if !claimed[j] {
			d.Removed = append(d.Removed, it.ID)
			continue
		}
		d.Items = append(d.Items, kept[j])
	}
	d.Items = append(d.Items, d.Inserted...)
	return d, nil
}
