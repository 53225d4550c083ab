package order

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/consistency"
	"github.com/xenking/comanda/internal/domain/event"
	"github.com/xenking/comanda/internal/domain/menu"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Service encapsulates the order lifecycle: creation, edits, kitchen
// readiness and manual status changes.
type Service struct {
	coord    consistency.Coordinator
	orders   Repository
	events   event.Recorder
	catalog  menu.Catalog
	validate *validator.Validate
	now      func() time.Time
	loc      *time.Location
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the business timezone used for order ids and the
// "today" listing filter.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService creates an order Service. catalog may be nil, in which case menu
// item ids are not checked against the catalog.
func NewService(
	coord consistency.Coordinator,
	orders Repository,
	events event.Recorder,
	catalog menu.Catalog,
	opts ...Option,
) *Service {
	s := &Service{
		coord:    coord,
		orders:   orders,
		events:   events,
		catalog:  catalog,
		validate: newValidator(),
		now:      time.Now,
		loc:      time.UTC,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Location returns the business timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Create validates req and persists a new Pendiente order.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if err := s.validateCreate(ctx, &req); err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		Status:       StatusPending,
		Type:         req.Type,
		TableNumber:  req.TableNumber,
		CustomerName: req.CustomerName,
		CreatedAt:    now,
		UpdatedAt:    now,
		Items:        make([]Item, 0, len(req.Items)),
	}
	for i, in := range req.Items {
		o.Items = append(o.Items, Item{
			ID:         uuid.NewString(),
			MenuItemID: in.MenuItemID,
			Name:       in.Name,
			UnitPrice:  in.UnitPrice,
			Quantity:   in.Quantity,
			Notes:      in.Notes,
			Status:     ItemPending,
			Position:   i,
			CreatedAt:  now,
		})
	}

	err := s.coord.Atomic(ctx, "order.create", func(ctx context.Context) error {
		day := now.In(s.loc)
		seq, err := s.orders.NextSequence(ctx, day)
		if err != nil {
			return errors.Wrap(err, "next order sequence")
		}
		o.ID = FormatID(day, seq)
		for i := range o.Items {
			o.Items[i].OrderID = o.ID
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		return s.events.Record(ctx, event.New(event.OrderCreated, o.ID, now, Attrs(o)))
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Get returns the order with its items.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// ListRequest is the input of Service.List.
type ListRequest struct {
	Status Status
	// Today restricts the result to orders created since local midnight.
	Today              bool
	From               time.Time
	To                 time.Time
	IncludeSettlements bool
	Page               int
	Limit              int
}

// List returns a page of orders, most recently updated first.
func (s *Service) List(ctx context.Context, req ListRequest) (*Page, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, apperr.Validation("status", "unknown status %q", req.Status)
	}
	if req.Page < 0 {
		return nil, apperr.Validation("page", "must be positive")
	}
	if req.Limit < 0 || req.Limit > maxPageLimit {
		return nil, apperr.Validation("limit", "must be between 1 and %d", maxPageLimit)
	}
	if !req.From.IsZero() && !req.To.IsZero() && !req.From.Before(req.To) {
		return nil, apperr.Validation("from", "must be before to")
	}

	f := Filter{
		Status:             req.Status,
		From:               req.From,
		To:                 req.To,
		IncludeSettlements: req.IncludeSettlements,
		Page:               req.Page,
		Limit:              req.Limit,
	}
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = defaultPageLimit
	}
	if req.Today {
		local := s.now().In(s.loc)
		f.From = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
		f.To = f.From.AddDate(0, 0, 1)
	}
	return s.orders.List(ctx, f)
}

// UpdateStatus manually moves an order between Pendiente, Listo and
// Entregado. Pagado is reachable only through settlement.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, apperr.Validation("status", "unknown status %q", status)
	}
	if status == StatusPaid {
		return nil, apperr.Validation("status", "orders become %s only through settlement", StatusPaid)
	}

	var o *Order
	err := s.coord.Atomic(ctx, "order.update_status", func(ctx context.Context) error {
		var err error
		o, err = s.orders.Lock(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == StatusPaid {
			return apperr.Conflict("order", id, "order is already %s", StatusPaid)
		}
		if o.Status == status {
			return nil
		}
		from := o.Status
		now := s.now()
		if err := s.orders.SetStatus(ctx, id, status, now); err != nil {
			return errors.Wrap(err, "set status")
		}
		o.Status = status
		o.UpdatedAt = now
		attrs := Attrs(o)
		attrs["previousStatus"] = string(from)
		return s.events.Record(ctx, event.New(event.OrderUpdated, id, now, attrs))
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateItems replaces the order's item set. Existing lines are matched by ID
// or by menu item and keep their readiness; new lines start Pendiente. The
// order status is then reconciled with item readiness.
func (s *Service) UpdateItems(ctx context.Context, id string, items []ItemInput) (*Order, error) {
	if err := s.validateItems(ctx, items); err != nil {
		return nil, err
	}

	var o *Order
	err := s.coord.Atomic(ctx, "order.update_items", func(ctx context.Context) error {
		var err error
		o, err = s.orders.Lock(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == StatusPaid {
			return apperr.Conflict("order", id, "cannot edit a %s order", StatusPaid)
		}

		now := s.now()
		diff, err := reconcileItems(id, o.Items, items, now, uuid.NewString)
		if err != nil {
			return err
		}
		if diff.empty() {
			return nil
		}
		if len(diff.Removed) > 0 {
			if err := s.orders.DeleteItems(ctx, id, diff.Removed); err != nil {
				return errors.Wrap(err, "delete items")
			}
		}
		for _, it := range diff.Updated {
			if err := s.orders.UpdateItem(ctx, it); err != nil {
				return errors.Wrap(err, "update item")
			}
		}
		if len(diff.Inserted) > 0 {
			if err := s.orders.InsertItems(ctx, id, diff.Inserted); err != nil {
				return errors.Wrap(err, "insert items")
			}
		}

		o.Items = diff.Items
		o.Status = readinessStatus(o)
		o.UpdatedAt = now
		if err := s.orders.SetStatus(ctx, id, o.Status, now); err != nil {
			return errors.Wrap(err, "set status")
		}

		attrs := Attrs(o)
		attrs["added"] = strconv.Itoa(len(diff.Inserted))
		attrs["updated"] = strconv.Itoa(len(diff.Updated))
		attrs["removed"] = strconv.Itoa(len(diff.Removed))
		return s.events.Record(ctx, event.New(event.OrderUpdated, id, now, attrs))
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateItemStatus marks a single item Listo. When every item of a Pendiente
// order is Listo the order becomes Listo too. Marking an item that already is
// Listo changes nothing.
func (s *Service) UpdateItemStatus(ctx context.Context, orderID, itemID string, status ItemStatus) (*Order, error) {
	if status != ItemReady {
		return nil, apperr.Validation("status", "item status can only be set to %s", ItemReady)
	}

	var o *Order
	err := s.coord.Atomic(ctx, "order.update_item_status", func(ctx context.Context) error {
		var err error
		o, err = s.orders.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		it, ok := o.Item(itemID)
		if !ok {
			return apperr.NotFound("order item", itemID)
		}
		next, changed, err := advanceItem(it, status)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if o.Status == StatusPaid {
			return apperr.Conflict("order", orderID, "order is already %s", StatusPaid)
		}

		now := s.now()
		if err := s.orders.UpdateItem(ctx, next); err != nil {
			return errors.Wrap(err, "update item")
		}
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				o.Items[i] = next
			}
		}

		events := []event.Event{
			event.New(event.ItemUpdated, orderID, now, map[string]string{
				"itemId":     itemID,
				"menuItemId": next.MenuItemID,
				"status":     string(next.Status),
			}),
		}
		prev := o.Status
		o.Status = readinessStatus(o)
		o.UpdatedAt = now
		if err := s.orders.SetStatus(ctx, orderID, o.Status, now); err != nil {
			return errors.Wrap(err, "set status")
		}
		if o.Status != prev {
			attrs := Attrs(o)
			attrs["previousStatus"] = string(prev)
			events = append(events, event.New(event.OrderUpdated, orderID, now, attrs))
		}
		return s.events.Record(ctx, events...)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Delete removes an order that was neither delivered, paid, nor partially
// settled.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.coord.Atomic(ctx, "order.delete", func(ctx context.Context) error {
		o, err := s.orders.Lock(ctx, id)
		if err != nil {
			return err
		}
		switch o.Status {
		case StatusDelivered, StatusPaid:
			return apperr.Conflict("order", id, "cannot delete a %s order", o.Status)
		}
		n, err := s.orders.CountSettlements(ctx, id)
		if err != nil {
			return errors.Wrap(err, "count settlements")
		}
		if n > 0 {
			return apperr.Conflict("order", id, "order has %d partial settlements", n)
		}
		if err := s.orders.Delete(ctx, id); err != nil {
			return errors.Wrap(err, "delete order")
		}
		return s.events.Record(ctx, event.New(event.OrderDeleted, id, s.now(), Attrs(o)))
	})
}

// Attrs returns the event attributes describing o.
func Attrs(o *Order) map[string]string {
	attrs := map[string]string{
		"status":    string(o.Status),
		"orderType": string(o.Type),
		"total":     o.Total().StringFixed(2),
		"items":     strconv.Itoa(len(o.Items)),
	}
	if o.TableNumber != "" {
		attrs["tableNumber"] = o.TableNumber
	}
	if o.SettlementOf != "" {
		attrs["settlementOf"] = o.SettlementOf
	}
	return attrs
}
