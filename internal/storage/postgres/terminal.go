package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/auth"
)

var _ auth.Repository = (*TerminalRepository)(nil)

// TerminalRepository provides terminal key lookups backed by PostgreSQL.
type TerminalRepository struct {
	pool *pgxpool.Pool
}

// FindByHash looks up an active terminal by its HMAC-SHA256 key hash.
func (r *TerminalRepository) FindByHash(ctx context.Context, hash string) (*auth.Terminal, error) {
	var t auth.Terminal
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id::text, key_hash, name, scopes
		FROM terminal_keys
		WHERE key_hash = $1 AND active
	`, hash).Scan(&t.ID, &t.KeyHash, &t.Name, &t.Scopes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("terminal", "")
		}
		return nil, errors.Wrap(err, "find terminal by hash")
	}
	return &t, nil
}

// Register stores a terminal for the given key hash and returns its id.
// Registering an existing hash renames it and reactivates it.
func (r *TerminalRepository) Register(ctx context.Context, name, hash string, scopes []string) (string, error) {
	if scopes == nil {
		scopes = []string{}
	}
	var id string
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO terminal_keys (id, key_hash, name, scopes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key_hash) DO UPDATE SET name = EXCLUDED.name, scopes = EXCLUDED.scopes, active = TRUE
		RETURNING id::text
	`, uuid.NewString(), hash, name, scopes).Scan(&id)
	if err != nil {
		return "", errors.Wrapf(err, "register terminal %q", name)
	}
	return id, nil
}
