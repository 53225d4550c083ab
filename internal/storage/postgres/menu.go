package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/comanda/internal/domain/menu"
)

var _ menu.Catalog = (*MenuCatalog)(nil)

// MenuCatalog implements menu.Catalog on the menu_items table, which is a
// local replica of the external catalog.
type MenuCatalog struct {
	pool *pgxpool.Pool
}

func (c *MenuCatalog) Lookup(ctx context.Context, ids []string) (map[string]menu.Item, error) {
	out := make(map[string]menu.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := conn(ctx, c.pool).Query(ctx, `
		SELECT id, name, price, category, available
		FROM menu_items
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lookup menu items")
	}
	defer rows.Close()
	for rows.Next() {
		var it menu.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.Category, &it.Available); err != nil {
			return nil, errors.Wrap(err, "scan menu item")
		}
		out[it.ID] = it
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate menu items")
	}
	return out, nil
}

// Upsert inserts or replaces items in one batch.
func (c *MenuCatalog) Upsert(ctx context.Context, items []menu.Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`
			INSERT INTO menu_items (id, name, price, category, available)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				price = EXCLUDED.price,
				category = EXCLUDED.category,
				available = EXCLUDED.available
		`, it.ID, it.Name, it.Price, it.Category, it.Available)
	}
	br := conn(ctx, c.pool).SendBatch(ctx, batch)
	defer br.Close()
	for _, it := range items {
		if _, err := br.Exec(); err != nil {
			return errors.Wrapf(err, "upsert menu item %q", it.ID)
		}
	}
	return br.Close()
}
