// Package report computes sales summaries as pure queries over persisted
// orders and sales.
package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/order"
	"github.com/xenking/comanda/internal/domain/settlement"
)

// Summary aggregates activity in [From, To).
type Summary struct {
	From time.Time
	To   time.Time
	// OrdersByStatus counts orders created in range, excluding settlement
	// audit orders.
	OrdersByStatus  map[order.Status]int
	Sales           int
	Revenue         decimal.Decimal
	ByPaymentMethod map[settlement.PaymentMethod]decimal.Decimal
}

// Orders returns the number of orders in range.
func (s *Summary) Orders() int {
	n := 0
	for _, c := range s.OrdersByStatus {
		n += c
	}
	return n
}

// AverageTicket returns revenue per sale, rounded to cents.
func (s *Summary) AverageTicket() decimal.Decimal {
	if s.Sales == 0 {
		return decimal.Zero
	}
	return s.Revenue.DivRound(decimal.NewFromInt(int64(s.Sales)), 2)
}

// Repository runs the summary query.
type Repository interface {
	Summary(ctx context.Context, from, to time.Time) (*Summary, error)
}

// Service answers summary queries.
type Service struct {
	repo Repository
	now  func() time.Time
	loc  *time.Location
}

// NewService creates a report Service. Default ranges are days in loc.
func NewService(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, now: time.Now, loc: loc}
}

// Summary returns the summary for [from, to). A zero from means the start of
// the current day; a zero to means one day after from.
func (s *Service) Summary(ctx context.Context, from, to time.Time) (*Summary, error) {
	if from.IsZero() {
		local := s.now().In(s.loc)
		from = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		return nil, apperr.Validation("from", "must be before to")
	}
	return s.repo.Summary(ctx, from, to)
}
