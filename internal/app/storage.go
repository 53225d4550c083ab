package app

import (
	"context"
	"os"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/comanda/db"
	"github.com/xenking/comanda/internal/domain/auth"
	"github.com/xenking/comanda/internal/domain/consistency"
	"github.com/xenking/comanda/internal/domain/menu"
	"github.com/xenking/comanda/internal/domain/order"
	"github.com/xenking/comanda/internal/domain/receipt"
	"github.com/xenking/comanda/internal/domain/report"
	"github.com/xenking/comanda/internal/domain/settlement"
	"github.com/xenking/comanda/internal/outbox"
	"github.com/xenking/comanda/internal/storage/memory"
	"github.com/xenking/comanda/internal/storage/postgres"
)

type outboxStore interface {
	outbox.Store
	Pending(ctx context.Context) (int, error)
}

// storage is the set of repositories one driver provides.
type storage struct {
	coord     consistency.Coordinator
	orders    order.Repository
	sales     settlement.SaleRepository
	receipts  receipt.Repository
	outbox    outboxStore
	reports   report.Repository
	catalog   menu.Catalog
	terminals auth.Repository

	register func(ctx context.Context, name, hash string, scopes []string) error
	ping     func(ctx context.Context) error
	close    func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	switch cfg.Storage {
	case StorageMemory:
		return openMemory(lg, cfg)
	default:
		return openPostgres(ctx, cfg)
	}
}

func openPostgres(ctx context.Context, cfg *Config) (*storage, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	st := postgres.NewStore(pool)
	return &storage{
		coord:     st.Coordinator,
		orders:    st.Orders,
		sales:     st.Sales,
		receipts:  st.Receipts,
		outbox:    st.Outbox,
		reports:   st.Reports,
		catalog:   st.Menu,
		terminals: st.Terminals,
		register: func(ctx context.Context, name, hash string, scopes []string) error {
			_, err := st.Terminals.Register(ctx, name, hash, scopes)
			return err
		},
		ping:  pool.Ping,
		close: pool.Close,
	}, nil
}

// openMemory returns a store that lives as long as the process, with the
// sample menu unless a menu file is configured.
func openMemory(lg *zap.Logger, cfg *Config) (*storage, error) {
	st := memory.New()
	s := &storage{
		coord:     st,
		orders:    st.Orders(),
		sales:     st.Sales(),
		receipts:  st.Receipts(),
		outbox:    st.Outbox(),
		reports:   st.Reports(),
		terminals: st.Terminals(),
		register: func(_ context.Context, name, hash string, scopes []string) error {
			st.Terminals().Put(auth.Terminal{ID: uuid.NewString(), KeyHash: hash, Name: name, Scopes: scopes})
			return nil
		},
		ping:  func(context.Context) error { return nil },
		close: func() {},
	}
	data := db.SampleMenu
	if cfg.MenuFile != "" {
		var err error
		if data, err = os.ReadFile(cfg.MenuFile); err != nil {
			return nil, errors.Wrap(err, "read menu")
		}
	}
	items, err := menu.Decode(data)
	if err != nil {
		return nil, err
	}
	st.Menu().Put(items...)
	s.catalog = st.Menu()
	lg.Info("Menu loaded", zap.Int("items", len(items)))
	lg.Warn("Using in-memory storage, data is lost on restart")
	return s, nil
}
