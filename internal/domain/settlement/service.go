package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/consistency"
	"github.com/xenking/comanda/internal/domain/event"
	"github.com/xenking/comanda/internal/domain/order"
)

const instrumentationName = "github.com/xenking/comanda/internal/domain/settlement"

// Service settles orders.
type Service struct {
	coord  consistency.Coordinator
	orders order.Repository
	sales  SaleRepository
	events event.Recorder
	issuer ReceiptIssuer
	now    func() time.Time
	loc    *time.Location

	tracer  trace.Tracer
	settled metric.Int64Counter
	amount  metric.Float64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the business timezone used for settlement order ids.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithTelemetry sets the tracer and meter providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(instrumentationName)
		s.initMetrics(mp)
	}
}

// NewService creates a settlement Service. issuer may be nil, in which case
// receipts are only issued on demand.
func NewService(
	coord consistency.Coordinator,
	orders order.Repository,
	sales SaleRepository,
	events event.Recorder,
	issuer ReceiptIssuer,
	opts ...Option,
) *Service {
	s := &Service{
		coord:  coord,
		orders: orders,
		sales:  sales,
		events: events,
		issuer: issuer,
		now:    time.Now,
		loc:    time.UTC,
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}
	s.initMetrics(metricnoop.NewMeterProvider())
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) initMetrics(mp metric.MeterProvider) {
	meter := mp.Meter(instrumentationName)
	settled, err := meter.Int64Counter("comanda.settlements",
		metric.WithDescription("Committed settlements"),
	)
	if err != nil {
		settled, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("comanda.settlements")
	}
	amount, err := meter.Float64Counter("comanda.settled_amount",
		metric.WithDescription("Total amount of committed settlements"),
	)
	if err != nil {
		amount, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Float64Counter("comanda.settled_amount")
	}
	s.settled = settled
	s.amount = amount
}

// Settle pays every item of the order and marks it Pagado.
func (s *Service) Settle(ctx context.Context, req Request) (_ *Sale, rerr error) {
	ctx, span := s.tracer.Start(ctx, "settlement.Settle",
		trace.WithAttributes(
			attribute.String("order.id", req.OrderID),
			attribute.String("payment.method", string(req.PaymentMethod)),
		),
	)
	defer func() { endSpan(span, rerr) }()

	if !req.PaymentMethod.Valid() {
		return nil, apperr.Validation("paymentMethod", "must be %s or %s", Cash, MobileWallet)
	}

	var sale *Sale
	err := s.coord.Atomic(ctx, "settlement.settle", func(ctx context.Context) error {
		o, err := s.orders.Lock(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if o.Status == order.StatusPaid {
			return apperr.Conflict("order", o.ID, "order is already %s", order.StatusPaid)
		}
		total := o.Total()
		if !total.IsPositive() {
			return apperr.Validation("totalAmount", "order %s has nothing to settle", o.ID)
		}

		now := s.now()
		sale = &Sale{
			ID:            uuid.NewString(),
			OrderID:       o.ID,
			PaymentMethod: req.PaymentMethod,
			TotalAmount:   total,
			CreatedAt:     now,
		}
		if err := s.sales.Create(ctx, sale); err != nil {
			return errors.Wrap(err, "create sale")
		}

		prev := o.Status
		if err := s.orders.SetStatus(ctx, o.ID, order.StatusPaid, now); err != nil {
			return errors.Wrap(err, "set status")
		}
		o.Status = order.StatusPaid
		o.UpdatedAt = now

		attrs := order.Attrs(o)
		attrs["previousStatus"] = string(prev)
		return s.events.Record(ctx,
			event.New(event.SaleCreated, sale.ID, now, saleAttrs(sale)),
			event.New(event.OrderUpdated, o.ID, now, attrs),
		)
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, "full", sale)
	if req.IssueReceipt {
		s.issue(ctx, sale)
	}
	return sale, nil
}

// SettlePartial pays the selected items. They move onto a new Pagado audit
// order that references the original; the original keeps the remainder and
// becomes Pagado only when nothing is left.
func (s *Service) SettlePartial(ctx context.Context, req PartialRequest) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "settlement.SettlePartial",
		trace.WithAttributes(
			attribute.String("order.id", req.OrderID),
			attribute.String("payment.method", string(req.PaymentMethod)),
			attribute.Int("selections", len(req.Items)),
		),
	)
	defer func() { endSpan(span, rerr) }()

	if !req.PaymentMethod.Valid() {
		return nil, apperr.Validation("paymentMethod", "must be %s or %s", Cash, MobileWallet)
	}

	var res *Result
	err := s.coord.Atomic(ctx, "settlement.settle_partial", func(ctx context.Context) error {
		o, err := s.orders.Lock(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if o.Status == order.StatusPaid {
			return apperr.Conflict("order", o.ID, "order is already %s", order.StatusPaid)
		}

		plan, err := planSplit(o.Items, req.Items)
		if err != nil {
			return err
		}

		n, err := s.orders.CountSettlements(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "count settlements")
		}
		now := s.now()
		so := &order.Order{
			ID:           settlementOrderID(o.ID, n+1, now.In(s.loc)),
			Status:       order.StatusPaid,
			Type:         o.Type,
			TableNumber:  o.TableNumber,
			CustomerName: o.CustomerName,
			SettlementOf: o.ID,
			CreatedAt:    now,
			UpdatedAt:    now,
			Items:        make([]order.Item, 0, len(plan.Sold)),
		}
		for i, it := range plan.Sold {
			it.ID = uuid.NewString()
			it.OrderID = so.ID
			it.Position = i
			it.CreatedAt = now
			so.Items = append(so.Items, it)
		}
		if err := s.orders.Create(ctx, so); err != nil {
			return errors.Wrap(err, "create settlement order")
		}

		sale := &Sale{
			ID:            uuid.NewString(),
			OrderID:       so.ID,
			PaymentMethod: req.PaymentMethod,
			TotalAmount:   plan.Total,
			CreatedAt:     now,
		}
		if err := s.sales.Create(ctx, sale); err != nil {
			return errors.Wrap(err, "create sale")
		}

		if len(plan.Removed) > 0 {
			if err := s.orders.DeleteItems(ctx, o.ID, plan.Removed); err != nil {
				return errors.Wrap(err, "remove settled items")
			}
		}
		for _, it := range plan.Reduced {
			if err := s.orders.UpdateItem(ctx, it); err != nil {
				return errors.Wrap(err, "reduce settled item")
			}
		}

		prev := o.Status
		o.Items = plan.Remaining
		if len(o.Items) == 0 {
			o.Status = order.StatusPaid
		}
		o.UpdatedAt = now
		if err := s.orders.SetStatus(ctx, o.ID, o.Status, now); err != nil {
			return errors.Wrap(err, "set status")
		}

		attrs := order.Attrs(o)
		attrs["previousStatus"] = string(prev)
		attrs["settlementOrderId"] = so.ID
		if err := s.events.Record(ctx,
			event.New(event.OrderCreated, so.ID, now, order.Attrs(so)),
			event.New(event.SaleCreated, sale.ID, now, saleAttrs(sale)),
			event.New(event.OrderUpdated, o.ID, now, attrs),
		); err != nil {
			return err
		}

		res = &Result{
			Sale:              sale,
			IsPartialPayment:  len(o.Items) > 0,
			OriginalOrderID:   o.ID,
			SettlementOrderID: so.ID,
			Original:          o,
			SettlementOrder:   so,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, "partial", res.Sale)
	if req.IssueReceipt {
		s.issue(ctx, res.Sale)
	}
	return res, nil
}

// issue runs after the settlement committed. Receipts can always be issued
// later, so a failure here does not fail the settlement.
func (s *Service) issue(ctx context.Context, sale *Sale) {
	if s.issuer == nil {
		return
	}
	if err := s.issuer.Issue(ctx, sale.ID); err != nil {
		zctx.From(ctx).Warn("Issue receipt",
			zap.String("sale_id", sale.ID),
			zap.Error(err),
		)
		return
	}
	sale.IsReceiptIssued = true
}

func (s *Service) observe(ctx context.Context, kind string, sale *Sale) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("payment.method", string(sale.PaymentMethod)),
	)
	s.settled.Add(ctx, 1, attrs)
	s.amount.Add(ctx, sale.TotalAmount.InexactFloat64(), attrs)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("sale.id", sale.ID),
		attribute.String("sale.total", sale.TotalAmount.StringFixed(2)),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// settlementOrderID derives the id of the n-th settlement order of orig.
func settlementOrderID(orig string, n int, at time.Time) string {
	return fmt.Sprintf("%s-P%d-%s", orig, n, at.Format("150405"))
}

func saleAttrs(s *Sale) map[string]string {
	return map[string]string{
		"orderId":       s.OrderID,
		"paymentMethod": string(s.PaymentMethod),
		"totalAmount":   s.TotalAmount.StringFixed(2),
	}
}
