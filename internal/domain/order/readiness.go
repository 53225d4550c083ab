package order

import (
	"github.com/xenking/comanda/internal/domain/apperr"
)

// AllItemsReady reports whether the order has items and every one is Listo.
func (o *Order) AllItemsReady() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, it := range o.Items {
		if it.Status != ItemReady {
			return false
		}
	}
	return true
}

// advanceItem validates a readiness transition for it. changed is false when
// the item already is in the target state.
func advanceItem(it Item, target ItemStatus) (next Item, changed bool, err error) {
	if target != ItemReady {
		return it, false, apperr.Validation("status", "item status can only be set to %s", ItemReady)
	}
	if it.Status == target {
		return it, false, nil
	}
	if it.Status != ItemPending {
		return it, false, apperr.Validation("status", "item %s cannot move from %s to %s", it.ID, it.Status, target)
	}
	it.Status = target
	return it, true, nil
}

// readinessStatus returns the order status implied by item readiness, given
// the current status. Only Pendiente and Listo react to item readiness.
func readinessStatus(o *Order) Status {
	switch o.Status {
	case StatusPending:
		if o.AllItemsReady() {
			return StatusReady
		}
	case StatusReady:
		if !o.AllItemsReady() {
			return StatusPending
		}
	}
	return o.Status
}
