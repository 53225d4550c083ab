package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository.
type OrderRepository struct {
	s *Store
}

func (r *OrderRepository) NextSequence(ctx context.Context, day time.Time) (int, error) {
	var seq int
	err := r.s.do(ctx, func(st *state) error {
		key := day.Format("20060102")
		st.seqs[key]++
		seq = st.seqs[key]
		return nil
	})
	return seq, err
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.s.do(ctx, func(st *state) error {
		if err := r.s.fault("order.create"); err != nil {
			return err
		}
		if _, ok := st.orders[o.ID]; ok {
			return errors.Errorf("order %s already exists", o.ID)
		}
		st.orders[o.ID] = copyOrder(*o)
		return nil
	})
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	err := r.s.do(ctx, func(st *state) error {
		v, ok := st.orders[id]
		if !ok {
			return apperr.NotFound("order", id)
		}
		o = copyOrder(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortItems(o.Items)
	return &o, nil
}

// Lock is Get: a transaction already has exclusive access.
func (r *OrderRepository) Lock(ctx context.Context, id string) (*order.Order, error) {
	return r.Get(ctx, id)
}

func (r *OrderRepository) List(ctx context.Context, f order.Filter) (*order.Page, error) {
	var matched []order.Order
	err := r.s.do(ctx, func(st *state) error {
		for _, o := range st.orders {
			if f.Status != "" && o.Status != f.Status {
				continue
			}
			if !f.IncludeSettlements && o.IsSettlement() {
				continue
			}
			if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
				continue
			}
			if !f.To.IsZero() && !o.CreatedAt.Before(f.To) {
				continue
			}
			matched = append(matched, copyOrder(o))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matched, func(a, b order.Order) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	p := &order.Page{Total: len(matched), Page: f.Page, Limit: f.Limit, Orders: []order.Order{}}
	start := (f.Page - 1) * f.Limit
	if start < len(matched) {
		end := min(start+f.Limit, len(matched))
		p.Orders = matched[start:end]
	}
	for i := range p.Orders {
		sortItems(p.Orders[i].Items)
	}
	return p, nil
}

func (r *OrderRepository) SetStatus(ctx context.Context, id string, s order.Status, at time.Time) error {
	return r.s.do(ctx, func(st *state) error {
		if err := r.s.fault("order.set_status"); err != nil {
			return err
		}
		o, ok := st.orders[id]
		if !ok {
			return apperr.NotFound("order", id)
		}
		o.Status = s
		o.UpdatedAt = at
		st.orders[id] = o
		return nil
	})
}

func (r *OrderRepository) InsertItems(ctx context.Context, orderID string, items []order.Item) error {
	return r.s.do(ctx, func(st *state) error {
		if err := r.s.fault("order.insert_items"); err != nil {
			return err
		}
		o, ok := st.orders[orderID]
		if !ok {
			return apperr.NotFound("order", orderID)
		}
		o.Items = append(slices.Clone(o.Items), items...)
		st.orders[orderID] = o
		return nil
	})
}

func (r *OrderRepository) UpdateItem(ctx context.Context, it order.Item) error {
	return r.s.do(ctx, func(st *state) error {
		if err := r.s.fault("order.update_item"); err != nil {
			return err
		}
		o, ok := st.orders[it.OrderID]
		if !ok {
			return apperr.NotFound("order", it.OrderID)
		}
		items := slices.Clone(o.Items)
		i := slices.IndexFunc(items, func(v order.Item) bool { return v.ID == it.ID })
		if i < 0 {
			return apperr.NotFound("order item", it.ID)
		}
		items[i].Quantity = it.Quantity
		items[i].Notes = it.Notes
		items[i].Status = it.Status
		o.Items = items
		st.orders[it.OrderID] = o
		return nil
	})
}

func (r *OrderRepository) DeleteItems(ctx context.Context, orderID string, ids []string) error {
	return r.s.do(ctx, func(st *state) error {
		if err := r.s.fault("order.delete_items"); err != nil {
			return err
		}
		o, ok := st.orders[orderID]
		if !ok {
			return apperr.NotFound("order", orderID)
		}
		o.Items = slices.DeleteFunc(slices.Clone(o.Items), func(v order.Item) bool {
			return slices.Contains(ids, v.ID)
		})
		st.orders[orderID] = o
		return nil
	})
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	return r.s.do(ctx, func(st *state) error {
		if err := r.s.fault("order.delete"); err != nil {
			return err
		}
		if _, ok := st.orders[id]; !ok {
			return apperr.NotFound("order", id)
		}
		delete(st.orders, id)
		return nil
	})
}

func (r *OrderRepository) CountSettlements(ctx context.Context, id string) (int, error) {
	n := 0
	err := r.s.do(ctx, func(st *state) error {
		for _, o := range st.orders {
			if o.SettlementOf == id {
				n++
			}
		}
		return nil
	})
	return n, err
}

func sortItems(items []order.Item) {
	slices.SortStableFunc(items, func(a, b order.Item) int {
		return cmp.Compare(a.Position, b.Position)
	})
}
