package memory

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/comanda/internal/domain/event"
	"github.com/xenking/comanda/internal/domain/order"
	"github.com/xenking/comanda/internal/domain/report"
	"github.com/xenking/comanda/internal/domain/settlement"
	"github.com/xenking/comanda/internal/outbox"
)

var (
	_ outbox.Store      = (*OutboxStore)(nil)
	_ report.Repository = (*ReportRepository)(nil)
)

// OutboxStore implements outbox.Store.
type OutboxStore struct {
	s *Store
}

func (o *OutboxStore) Record(ctx context.Context, events ...event.Event) error {
	return o.s.do(ctx, func(st *state) error {
		if err := o.s.fault("outbox.record"); err != nil {
			return err
		}
		for _, e := range events {
			st.outboxSeq++
			st.outbox = append(st.outbox, outboxRow{entry: outbox.Entry{Seq: st.outboxSeq, Event: e}})
		}
		return nil
	})
}

func (o *OutboxStore) Claim(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]outbox.Entry, error) {
	var entries []outbox.Entry
	err := o.s.do(ctx, func(st *state) error {
		for i := range st.outbox {
			if len(entries) == limit {
				break
			}
			row := &st.outbox[i]
			if !row.pending() || now.Before(row.leasedUntil) {
				continue
			}
			row.leasedUntil = now.Add(lease)
			entries = append(entries, row.entry)
		}
		return nil
	})
	return entries, err
}

func (o *OutboxStore) MarkPublished(ctx context.Context, seqs []int64, _ time.Time) error {
	return o.update(ctx, seqs, func(row *outboxRow) {
		row.published = true
		row.leasedUntil = time.Time{}
	})
}

func (o *OutboxStore) MarkFailed(ctx context.Context, seq int64, reason string, dead bool) error {
	return o.update(ctx, []int64{seq}, func(row *outboxRow) {
		row.entry.Attempts++
		row.lastError = reason
		row.dead = dead
		row.leasedUntil = time.Time{}
	})
}

func (o *OutboxStore) Release(ctx context.Context, seqs []int64) error {
	return o.update(ctx, seqs, func(row *outboxRow) {
		row.leasedUntil = time.Time{}
	})
}

func (o *OutboxStore) update(ctx context.Context, seqs []int64, fn func(row *outboxRow)) error {
	return o.s.do(ctx, func(st *state) error {
		for i := range st.outbox {
			if slices.Contains(seqs, st.outbox[i].entry.Seq) {
				fn(&st.outbox[i])
			}
		}
		return nil
	})
}

// Pending counts entries still awaiting delivery. Dead entries are excluded.
func (o *OutboxStore) Pending(ctx context.Context) (int, error) {
	n := 0
	err := o.s.do(ctx, func(st *state) error {
		for _, row := range st.outbox {
			if row.pending() {
				n++
			}
		}
		return nil
	})
	return n, err
}

// Dead returns the dead-lettered entries in record order.
func (o *OutboxStore) Dead() []outbox.Entry {
	var entries []outbox.Entry
	_ = o.s.do(context.Background(), func(st *state) error {
		for _, row := range st.outbox {
			if row.dead {
				entries = append(entries, row.entry)
			}
		}
		return nil
	})
	return entries
}

// Events returns every recorded event, delivered or not, in record order.
func (o *OutboxStore) Events() []event.Event {
	var events []event.Event
	_ = o.s.do(context.Background(), func(st *state) error {
		for _, row := range st.outbox {
			events = append(events, row.entry.Event)
		}
		return nil
	})
	return events
}

// ReportRepository implements report.Repository.
type ReportRepository struct {
	s *Store
}

func (r *ReportRepository) Summary(ctx context.Context, from, to time.Time) (*report.Summary, error) {
	sum := &report.Summary{
		From:            from,
		To:              to,
		OrdersByStatus:  map[order.Status]int{},
		Revenue:         decimal.Zero,
		ByPaymentMethod: map[settlement.PaymentMethod]decimal.Decimal{},
	}
	err := r.s.do(ctx, func(st *state) error {
		for _, o := range st.orders {
			if o.IsSettlement() || !inRange(o.CreatedAt, from, to) {
				continue
			}
			sum.OrdersByStatus[o.Status]++
		}
		for _, s := range st.sales {
			if !inRange(s.CreatedAt, from, to) {
				continue
			}
			sum.Sales++
			sum.Revenue = sum.Revenue.Add(s.TotalAmount)
			sum.ByPaymentMethod[s.PaymentMethod] = sum.ByPaymentMethod[s.PaymentMethod].Add(s.TotalAmount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}
