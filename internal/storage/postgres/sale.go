package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/settlement"
)

var _ settlement.SaleRepository = (*SaleRepository)(nil)

// SaleRepository implements settlement.SaleRepository backed by PostgreSQL.
type SaleRepository struct {
	pool *pgxpool.Pool
}

const saleColumns = `id::text, number, order_id, payment_method, total_amount, is_receipt_issued, created_at`

func (r *SaleRepository) Create(ctx context.Context, s *settlement.Sale) error {
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO sales (id, order_id, payment_method, total_amount, is_receipt_issued, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING number
	`, s.ID, s.OrderID, s.PaymentMethod, s.TotalAmount, s.IsReceiptIssued, s.CreatedAt).Scan(&s.Number)
	if err != nil {
		return errors.Wrapf(err, "insert sale for order %q", s.OrderID)
	}
	return nil
}

func (r *SaleRepository) Get(ctx context.Context, id string) (*settlement.Sale, error) {
	return r.get(ctx, id, "")
}

func (r *SaleRepository) Lock(ctx context.Context, id string) (*settlement.Sale, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *SaleRepository) get(ctx context.Context, id, suffix string) (*settlement.Sale, error) {
	// Sale ids are UUIDs; anything else cannot exist.
	if !isUUID(id) {
		return nil, apperr.NotFound("sale", id)
	}
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`+suffix, id)
	s, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("sale", id)
		}
		return nil, errors.Wrapf(err, "get sale %q", id)
	}
	return s, nil
}

func (r *SaleRepository) MarkReceiptIssued(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `UPDATE sales SET is_receipt_issued = TRUE WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "mark sale %q receipt issued", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("sale", id)
	}
	return nil
}

func (r *SaleRepository) ListRange(ctx context.Context, from, to time.Time) ([]settlement.Sale, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY number
	`, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "list sales")
	}
	defer rows.Close()

	var sales []settlement.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan sale")
		}
		sales = append(sales, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate sales")
	}
	return sales, nil
}

func scanSale(row pgx.Row) (*settlement.Sale, error) {
	var s settlement.Sale
	if err := row.Scan(
		&s.ID, &s.Number, &s.OrderID, &s.PaymentMethod,
		&s.TotalAmount, &s.IsReceiptIssued, &s.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
