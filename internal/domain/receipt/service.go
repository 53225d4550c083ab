package receipt

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/consistency"
	"github.com/xenking/comanda/internal/domain/event"
	"github.com/xenking/comanda/internal/domain/order"
	"github.com/xenking/comanda/internal/domain/settlement"
)

// Service issues receipts.
type Service struct {
	coord    consistency.Coordinator
	sales    settlement.SaleRepository
	orders   order.Repository
	receipts Repository
	events   event.Recorder
	now      func() time.Time
	loc      *time.Location
}

// NewService creates a receipt Service. Receipt numbers use the issue date in
// loc.
func NewService(
	coord consistency.Coordinator,
	sales settlement.SaleRepository,
	orders order.Repository,
	receipts Repository,
	events event.Recorder,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		coord:    coord,
		sales:    sales,
		orders:   orders,
		receipts: receipts,
		events:   events,
		now:      time.Now,
		loc:      loc,
	}
}

// Get returns the issued receipt of saleID. It never issues one: both an
// unknown sale and a sale without a receipt yield an apperr.NotFoundError.
func (s *Service) Get(ctx context.Context, saleID string) (*Receipt, error) {
	if _, err := s.sales.Get(ctx, saleID); err != nil {
		return nil, err
	}
	r, err := s.receipts.GetBySale(ctx, saleID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("receipt", saleID)
		}
		return nil, errors.Wrap(err, "get receipt")
	}
	return r, nil
}

// GetOrCreate returns the receipt of saleID, issuing it on first call.
func (s *Service) GetOrCreate(ctx context.Context, saleID string) (*Receipt, error) {
	var r *Receipt
	err := s.coord.Atomic(ctx, "receipt.get_or_create", func(ctx context.Context) error {
		sale, err := s.sales.Lock(ctx, saleID)
		if err != nil {
			return err
		}

		existing, err := s.receipts.GetBySale(ctx, saleID)
		switch {
		case err == nil:
			r = existing
			return nil
		case !errors.Is(err, apperr.ErrNotFound):
			return errors.Wrap(err, "get receipt")
		}

		o, err := s.orders.Get(ctx, sale.OrderID)
		if err != nil {
			return errors.Wrapf(err, "get settled order %s", sale.OrderID)
		}

		now := s.now()
		subtotal, tax := Breakdown(sale.TotalAmount)
		r = &Receipt{
			ID:            uuid.NewString(),
			SaleID:        sale.ID,
			OrderID:       sale.OrderID,
			Number:        Number(now.In(s.loc), sale.Number),
			PaymentMethod: sale.PaymentMethod,
			Subtotal:      subtotal,
			Tax:           tax,
			Total:         sale.TotalAmount,
			Items:         make([]Line, 0, len(o.Items)),
			IssuedAt:      now,
		}
		for _, it := range o.Items {
			r.Items = append(r.Items, Line{
				MenuItemID: it.MenuItemID,
				Name:       it.Name,
				Quantity:   it.Quantity,
				UnitPrice:  it.UnitPrice,
				Total:      it.LineTotal(),
				Notes:      it.Notes,
			})
		}
		if err := s.receipts.Create(ctx, r); err != nil {
			return errors.Wrap(err, "create receipt")
		}
		if !sale.IsReceiptIssued {
			if err := s.sales.MarkReceiptIssued(ctx, sale.ID); err != nil {
				return errors.Wrap(err, "mark receipt issued")
			}
		}
		return s.events.Record(ctx, event.New(event.ReceiptIssued, sale.ID, now, map[string]string{
			"receiptId":     r.ID,
			"receiptNumber": r.Number,
			"total":         r.Total.StringFixed(2),
		}))
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Issue implements settlement.ReceiptIssuer.
func (s *Service) Issue(ctx context.Context, saleID string) error {
	_, err := s.GetOrCreate(ctx, saleID)
	return err
}

// Location returns the timezone receipts are dated in.
func (s *Service) Location() *time.Location { return s.loc }
