package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/receipt"
)

var _ receipt.Repository = (*ReceiptRepository)(nil)

// ReceiptRepository implements receipt.Repository backed by PostgreSQL.
// Receipt lines are stored as a JSONB document next to the header.
type ReceiptRepository struct {
	pool *pgxpool.Pool
}

func (r *ReceiptRepository) GetBySale(ctx context.Context, saleID string) (*receipt.Receipt, error) {
	if !isUUID(saleID) {
		return nil, apperr.NotFound("receipt", saleID)
	}
	var (
		rc    receipt.Receipt
		items []byte
	)
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id::text, sale_id::text, receipt_number, order_id, payment_method, subtotal, tax, total, items, issued_at
		FROM receipts
		WHERE sale_id = $1
	`, saleID).Scan(
		&rc.ID, &rc.SaleID, &rc.Number, &rc.OrderID, &rc.PaymentMethod,
		&rc.Subtotal, &rc.Tax, &rc.Total, &items, &rc.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("receipt", saleID)
		}
		return nil, errors.Wrapf(err, "get receipt of sale %q", saleID)
	}
	if rc.Items, err = decodeLines(items); err != nil {
		return nil, errors.Wrapf(err, "receipt of sale %q", saleID)
	}
	return &rc, nil
}

func (r *ReceiptRepository) Create(ctx context.Context, rc *receipt.Receipt) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO receipts (id, sale_id, receipt_number, order_id, payment_method, subtotal, tax, total, items, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rc.ID, rc.SaleID, rc.Number, rc.OrderID, rc.PaymentMethod,
		rc.Subtotal, rc.Tax, rc.Total, encodeLines(rc.Items), rc.IssuedAt)
	if err != nil {
		return errors.Wrapf(err, "insert receipt %q", rc.Number)
	}
	return nil
}

func encodeLines(lines []receipt.Line) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("menuItemId")
		e.Str(l.MenuItemID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unitPrice")
		e.Str(l.UnitPrice.StringFixed(2))
		e.FieldStart("total")
		e.Str(l.Total.StringFixed(2))
		if l.Notes != "" {
			e.FieldStart("notes")
			e.Str(l.Notes)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeLines(data []byte) ([]receipt.Line, error) {
	var lines []receipt.Line
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var l receipt.Line
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "menuItemId":
				l.MenuItemID, err = d.Str()
			case "name":
				l.Name, err = d.Str()
			case "quantity":
				l.Quantity, err = d.Int()
			case "unitPrice":
				l.UnitPrice, err = decodeDecimal(d)
			case "total":
				l.Total, err = decodeDecimal(d)
			case "notes":
				l.Notes, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
		lines = append(lines, l)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode receipt lines")
	}
	return lines, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(s)
}
