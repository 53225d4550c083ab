// Command seed-db loads the menu catalog and registers a terminal key.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/comanda/internal/domain/auth"
	"github.com/xenking/comanda/internal/domain/menu"
	"github.com/xenking/comanda/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		menuFile     string
		apiKey       string
		apiKeyPepper string
		terminalName string
		scopes       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&menuFile, "menu-file", "db/seed/menu.json", "path to menu JSON file")
	flag.StringVar(&apiKey, "api-key", "", "terminal key to register (or COMANDA_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for key hashing (or COMANDA_API_KEY_PEPPER env)")
	flag.StringVar(&terminalName, "terminal", "Caja principal", "terminal name")
	flag.StringVar(&scopes, "scopes", "", "comma-separated scopes (orders,kitchen,cashier,reports); empty grants all")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("COMANDA_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("COMANDA_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, menuFile, apiKey, apiKeyPepper, terminalName, parseScopes(scopes)); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func parseScopes(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func run(ctx context.Context, databaseURL, menuFile, apiKey, pepper, terminal string, scopes []string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	st := postgres.NewStore(pool)

	if err := seedMenu(ctx, st.Menu, menuFile); err != nil {
		return errors.Wrap(err, "seed menu")
	}

	if apiKey == "" {
		slog.Info("no terminal key given, skipping")
		return nil
	}
	id, err := st.Terminals.Register(ctx, terminal, auth.HashKey([]byte(pepper), apiKey), scopes)
	if err != nil {
		return errors.Wrap(err, "seed terminal")
	}
	slog.Info("registered terminal", slog.String("id", id), slog.String("name", terminal), slog.Any("scopes", scopes))

	return nil
}

func seedMenu(ctx context.Context, catalog *postgres.MenuCatalog, menuFile string) error {
	slog.Info("reading menu file", slog.String("path", menuFile))

	data, err := os.ReadFile(menuFile)
	if err != nil {
		return errors.Wrap(err, "read menu file")
	}

	items, err := menu.Decode(data)
	if err != nil {
		return err
	}

	slog.Info("upserting menu items", slog.Int("count", len(items)))

	return catalog.Upsert(ctx, items)
}
