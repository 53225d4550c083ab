package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const orderColumns = `id, status, order_type, table_number, customer_name, COALESCE(settlement_of, ''), created_at, updated_at`

const itemColumns = `id::text, order_id, menu_item_id, menu_item_name, unit_price, quantity, notes, item_status, position, created_at`

func (r *OrderRepository) NextSequence(ctx context.Context, day time.Time) (int, error) {
	var seq int
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO order_sequences (day, last_value)
		VALUES ($1::date, 1)
		ON CONFLICT (day) DO UPDATE SET last_value = order_sequences.last_value + 1
		RETURNING last_value
	`, day.Format("2006-01-02")).Scan(&seq)
	if err != nil {
		return 0, errors.Wrap(err, "next order sequence")
	}
	return seq, nil
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	q := conn(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO orders (id, status, order_type, table_number, customer_name, settlement_of, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`, o.ID, o.Status, o.Type, o.TableNumber, o.CustomerName, o.SettlementOf, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return r.InsertItems(ctx, o.ID, o.Items)
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, id, "")
}

func (r *OrderRepository) Lock(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

// get reads the order row first and its items second, so that after a row
// lock was granted the items reflect the last committed writer.
func (r *OrderRepository) get(ctx context.Context, id, suffix string) (*order.Order, error) {
	q := conn(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+suffix, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("order", id)
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	items, err := r.items(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]
	return o, nil
}

func (r *OrderRepository) items(ctx context.Context, q querier, ids []string) (map[string][]order.Item, error) {
	rows, err := q.Query(ctx, `
		SELECT `+itemColumns+`
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query order items")
	}
	defer rows.Close()

	out := make(map[string][]order.Item, len(ids))
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.UnitPrice,
			&it.Quantity, &it.Notes, &it.Status, &it.Position, &it.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate order items")
	}
	return out, nil
}

func (r *OrderRepository) List(ctx context.Context, f order.Filter) (*order.Page, error) {
	q := conn(ctx, r.pool)
	var from, to *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}
	where := `
		WHERE ($1 = '' OR status = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		  AND ($4 OR settlement_of IS NULL)`
	args := []any{string(f.Status), from, to, f.IncludeSettlements}

	p := &order.Page{Page: f.Page, Limit: f.Limit, Orders: []order.Order{}}
	if err := q.QueryRow(ctx, `SELECT count(*) FROM orders`+where, args...).Scan(&p.Total); err != nil {
		return nil, errors.Wrap(err, "count orders")
	}
	if p.Total == 0 {
		return p, nil
	}

	rows, err := q.Query(ctx, `SELECT `+orderColumns+` FROM orders`+where+`
		ORDER BY updated_at DESC, id DESC
		LIMIT $5 OFFSET $6
	`, append(args, f.Limit, (f.Page-1)*f.Limit)...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		p.Orders = append(p.Orders, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}
	rows.Close()
	if len(ids) == 0 {
		return p, nil
	}

	items, err := r.items(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range p.Orders {
		p.Orders[i].Items = items[p.Orders[i].ID]
	}
	return p, nil
}

func (r *OrderRepository) SetStatus(ctx context.Context, id string, s order.Status, at time.Time) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, id, s, at)
	if err != nil {
		return errors.Wrapf(err, "update order %q status", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order", id)
	}
	return nil
}

func (r *OrderRepository) InsertItems(ctx context.Context, orderID string, items []order.Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO order_items (id, order_id, menu_item_id, menu_item_name, unit_price, quantity, notes, item_status, position, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, it.ID, orderID, it.MenuItemID, it.Name, it.UnitPrice, it.Quantity, it.Notes, it.Status, it.Position, it.CreatedAt)
	}

	br := conn(ctx, r.pool).SendBatch(ctx, batch)
	defer br.Close()
	for range items {
		if _, err := br.Exec(); err != nil {
			return errors.Wrapf(err, "insert items of order %q", orderID)
		}
	}
	return br.Close()
}

func (r *OrderRepository) UpdateItem(ctx context.Context, it order.Item) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE order_items SET quantity = $3, notes = $4, item_status = $5
		WHERE id = $1 AND order_id = $2
	`, it.ID, it.OrderID, it.Quantity, it.Notes, it.Status)
	if err != nil {
		return errors.Wrapf(err, "update item %q", it.ID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order item", it.ID)
	}
	return nil
}

func (r *OrderRepository) DeleteItems(ctx context.Context, orderID string, ids []string) error {
	_, err := conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM order_items WHERE order_id = $1 AND id::text = ANY($2)`, orderID, ids)
	if err != nil {
		return errors.Wrapf(err, "delete items of order %q", orderID)
	}
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "delete order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order", id)
	}
	return nil
}

func (r *OrderRepository) CountSettlements(ctx context.Context, id string) (int, error) {
	var n int
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE settlement_of = $1`, id).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "count settlements of %q", id)
	}
	return n, nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var o order.Order
	if err := row.Scan(
		&o.ID, &o.Status, &o.Type, &o.TableNumber, &o.CustomerName,
		&o.SettlementOf, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &o, nil
}
