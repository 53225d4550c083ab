// Package memory is an in-process implementation of every repository and of
// the consistency coordinator. A transaction holds the store mutex for its
// whole duration and restores a snapshot of the state when it fails, so it
// gives the same all-or-nothing guarantees as the PostgreSQL store with
// serializable scheduling.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/xenking/comanda/internal/domain/auth"
	"github.com/xenking/comanda/internal/domain/consistency"
	"github.com/xenking/comanda/internal/domain/menu"
	"github.com/xenking/comanda/internal/domain/order"
	"github.com/xenking/comanda/internal/domain/receipt"
	"github.com/xenking/comanda/internal/domain/settlement"
	"github.com/xenking/comanda/internal/outbox"
)

var _ consistency.Coordinator = (*Store)(nil)

type txKey struct{}

type outboxRow struct {
	entry       outbox.Entry
	published   bool
	dead        bool
	leasedUntil time.Time
	lastError   string
}

func (r outboxRow) pending() bool { return !r.published && !r.dead }

type state struct {
	orders    map[string]order.Order
	seqs      map[string]int
	sales     map[string]settlement.Sale
	saleSeq   int64
	receipts  map[string]receipt.Receipt
	outbox    []outboxRow
	outboxSeq int64
	menu      map[string]menu.Item
	terminals map[string]auth.Terminal
}

func newState() *state {
	return &state{
		orders:    map[string]order.Order{},
		seqs:      map[string]int{},
		sales:     map[string]settlement.Sale{},
		receipts:  map[string]receipt.Receipt{},
		menu:      map[string]menu.Item{},
		terminals: map[string]auth.Terminal{},
	}
}

func (st *state) clone() *state {
	c := &state{
		orders:    make(map[string]order.Order, len(st.orders)),
		seqs:      maps.Clone(st.seqs),
		sales:     maps.Clone(st.sales),
		saleSeq:   st.saleSeq,
		receipts:  make(map[string]receipt.Receipt, len(st.receipts)),
		outbox:    slices.Clone(st.outbox),
		outboxSeq: st.outboxSeq,
		menu:      maps.Clone(st.menu),
		terminals: maps.Clone(st.terminals),
	}
	for id, o := range st.orders {
		c.orders[id] = copyOrder(o)
	}
	for id, r := range st.receipts {
		r.Items = slices.Clone(r.Items)
		c.receipts[id] = r
	}
	return c
}

func copyOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

// Store holds all state in memory.
type Store struct {
	mu     sync.Mutex
	state  *state
	faults map[string]error
}

// New returns an empty Store.
func New() *Store {
	return &Store{state: newState(), faults: map[string]error{}}
}

// Atomic runs fn with exclusive access to the store. Any error, or a panic,
// restores the state as it was before fn started.
func (s *Store) Atomic(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	snapshot := s.state.clone()
	committed := false
	defer func() {
		if !committed {
			s.state = snapshot
		}
		s.mu.Unlock()
	}()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	tx, _ := ctx.Value(txKey{}).(*Store)
	return tx == s
}

// do runs fn against the current state, taking the lock unless ctx already
// belongs to a transaction of this store.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if !s.inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.state)
}

// FailOn makes the named write operation return err until ClearFaults is
// called. Operation names are "<entity>.<method>", such as "sale.create".
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// ClearFaults removes every injected failure.
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.faults)
}

// fault must be called with the lock held.
func (s *Store) fault(op string) error {
	return s.faults[op]
}

// Orders returns the order repository.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// Sales returns the sale repository.
func (s *Store) Sales() *SaleRepository { return &SaleRepository{s: s} }

// Receipts returns the receipt repository.
func (s *Store) Receipts() *ReceiptRepository { return &ReceiptRepository{s: s} }

// Outbox returns the outbox store.
func (s *Store) Outbox() *OutboxStore { return &OutboxStore{s: s} }

// Reports returns the report repository.
func (s *Store) Reports() *ReportRepository { return &ReportRepository{s: s} }

// Menu returns the menu catalog.
func (s *Store) Menu() *MenuCatalog { return &MenuCatalog{s: s} }

// Terminals returns the terminal repository.
func (s *Store) Terminals() *TerminalRepository { return &TerminalRepository{s: s} }
