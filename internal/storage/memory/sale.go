package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/auth"
	"github.com/xenking/comanda/internal/domain/menu"
	"github.com/xenking/comanda/internal/domain/receipt"
	"github.com/xenking/comanda/internal/domain/settlement"
)

var (
	_ settlement.SaleRepository = (*SaleRepository)(nil)
	_ receipt.Repository        = (*ReceiptRepository)(nil)
	_ menu.Catalog              = (*MenuCatalog)(nil)
	_ auth.Repository           = (*TerminalRepository)(nil)
)

// SaleRepository implements settlement.SaleRepository.
type SaleRepository struct {
	s *Store
}

func (r *SaleRepository) Create(ctx context.Context, sale *settlement.Sale) error {
	return r.s.do(ctx, func(st *state) error {
		if err := r.s.fault("sale.create"); err != nil {
			return err
		}
		if _, ok := st.sales[sale.ID]; ok {
			return errors.Errorf("sale %s already exists", sale.ID)
		}
		st.saleSeq++
		sale.Number = st.saleSeq
		st.sales[sale.ID] = *sale
		return nil
	})
}

func (r *SaleRepository) Get(ctx context.Context, id string) (*settlement.Sale, error) {
	var sale settlement.Sale
	err := r.s.do(ctx, func(st *state) error {
		v, ok := st.sales[id]
		if !ok {
			return apperr.NotFound("sale", id)
		}
		sale = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *SaleRepository) Lock(ctx context.Context, id string) (*settlement.Sale, error) {
	return r.Get(ctx, id)
}

func (r *SaleRepository) MarkReceiptIssued(ctx context.Context, id string) error {
	return r.s.do(ctx, func(st *state) error {
		if err := r.s.fault("sale.mark_receipt_issued"); err != nil {
			return err
		}
		v, ok := st.sales[id]
		if !ok {
			return apperr.NotFound("sale", id)
		}
		v.IsReceiptIssued = true
		st.sales[id] = v
		return nil
	})
}

func (r *SaleRepository) ListRange(ctx context.Context, from, to time.Time) ([]settlement.Sale, error) {
	var sales []settlement.Sale
	err := r.s.do(ctx, func(st *state) error {
		for _, v := range st.sales {
			if inRange(v.CreatedAt, from, to) {
				sales = append(sales, v)
			}
		}
		return nil
	})
	slices.SortFunc(sales, func(a, b settlement.Sale) int {
		return cmp.Compare(a.Number, b.Number)
	})
	return sales, err
}

// ReceiptRepository implements receipt.Repository.
type ReceiptRepository struct {
	s *Store
}

func (r *ReceiptRepository) GetBySale(ctx context.Context, saleID string) (*receipt.Receipt, error) {
	var rec receipt.Receipt
	err := r.s.do(ctx, func(st *state) error {
		v, ok := st.receipts[saleID]
		if !ok {
			return apperr.NotFound("receipt for sale", saleID)
		}
		rec = v
		rec.Items = slices.Clone(v.Items)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ReceiptRepository) Create(ctx context.Context, rec *receipt.Receipt) error {
	return r.s.do(ctx, func(st *state) error {
		if err := r.s.fault("receipt.create"); err != nil {
			return err
		}
		if _, ok := st.receipts[rec.SaleID]; ok {
			return errors.Errorf("receipt for sale %s already exists", rec.SaleID)
		}
		v := *rec
		v.Items = slices.Clone(rec.Items)
		st.receipts[rec.SaleID] = v
		return nil
	})
}

// Count returns the number of stored receipts.
func (r *ReceiptRepository) Count() int {
	n := 0
	_ = r.s.do(context.Background(), func(st *state) error {
		n = len(st.receipts)
		return nil
	})
	return n
}

// MenuCatalog implements menu.Catalog.
type MenuCatalog struct {
	s *Store
}

// Put adds or replaces catalog entries.
func (c *MenuCatalog) Put(items ...menu.Item) {
	_ = c.s.do(context.Background(), func(st *state) error {
		for _, it := range items {
			st.menu[it.ID] = it
		}
		return nil
	})
}

func (c *MenuCatalog) Lookup(ctx context.Context, ids []string) (map[string]menu.Item, error) {
	out := make(map[string]menu.Item, len(ids))
	err := c.s.do(ctx, func(st *state) error {
		for _, id := range ids {
			if it, ok := st.menu[id]; ok {
				out[id] = it
			}
		}
		return nil
	})
	return out, err
}

// TerminalRepository implements auth.Repository.
type TerminalRepository struct {
	s *Store
}

// Put registers t.
func (r *TerminalRepository) Put(t auth.Terminal) {
	_ = r.s.do(context.Background(), func(st *state) error {
		st.terminals[t.KeyHash] = t
		return nil
	})
}

func (r *TerminalRepository) FindByHash(ctx context.Context, hash string) (*auth.Terminal, error) {
	var t auth.Terminal
	err := r.s.do(ctx, func(st *state) error {
		v, ok := st.terminals[hash]
		if !ok {
			return apperr.NotFound("terminal", "key")
		}
		t = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
