package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/comanda/internal/domain/order"
	"github.com/xenking/comanda/internal/domain/report"
	"github.com/xenking/comanda/internal/domain/settlement"
)

var _ report.Repository = (*ReportRepository)(nil)

// ReportRepository implements report.Repository with aggregate queries.
type ReportRepository struct {
	pool *pgxpool.Pool
}

func (r *ReportRepository) Summary(ctx context.Context, from, to time.Time) (*report.Summary, error) {
	q := conn(ctx, r.pool)
	sum := &report.Summary{
		From:            from,
		To:              to,
		OrdersByStatus:  map[order.Status]int{},
		Revenue:         decimal.Zero,
		ByPaymentMethod: map[settlement.PaymentMethod]decimal.Decimal{},
	}

	rows, err := q.Query(ctx, `
		SELECT status, count(*)
		FROM orders
		WHERE settlement_of IS NULL AND created_at >= $1 AND created_at < $2
		GROUP BY status
	`, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "count orders by status")
	}
	for rows.Next() {
		var (
			status order.Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan order count")
		}
		sum.OrdersByStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate order counts")
	}

	rows, err = q.Query(ctx, `
		SELECT payment_method, count(*), COALESCE(sum(total_amount), 0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY payment_method
	`, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "sum sales")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			method settlement.PaymentMethod
			n      int
			amount decimal.Decimal
		)
		if err := rows.Scan(&method, &n, &amount); err != nil {
			return nil, errors.Wrap(err, "scan sales sum")
		}
		sum.Sales += n
		sum.Revenue = sum.Revenue.Add(amount)
		sum.ByPaymentMethod[method] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate sales sums")
	}
	return sum, nil
}
