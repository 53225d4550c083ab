package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/comanda/internal/domain/apperr"
	"github.com/xenking/comanda/internal/domain/auth"
)

// KeyHeader carries the terminal API key.
const KeyHeader = "X-Terminal-Key"

type terminalKey struct{}

// TerminalFromContext returns the authenticated terminal, if any.
func TerminalFromContext(ctx context.Context) (*auth.Terminal, bool) {
	t, ok := ctx.Value(terminalKey{}).(*auth.Terminal)
	return t, ok
}

// Authenticator resolves terminal API keys. Keys are stored only as
// HMAC-SHA256 hashes under a server-side pepper.
type Authenticator struct {
	terminals auth.Repository
	pepper    []byte
	disabled  bool
}

// NewAuthenticator creates an Authenticator. A disabled Authenticator admits
// every request with full scope.
func NewAuthenticator(terminals auth.Repository, pepper []byte, disabled bool) *Authenticator {
	return &Authenticator{terminals: terminals, pepper: pepper, disabled: disabled}
}

func (a *Authenticator) authenticate(ctx context.Context, key string) (*auth.Terminal, error) {
	if key == "" {
		return nil, errors.New("missing key")
	}
	hash := auth.HashKey(a.pepper, key)
	t, err := a.terminals.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	want, err := hex.DecodeString(hash)
	if err != nil {
		return nil, errors.Wrap(err, "decode hash")
	}
	got, err := hex.DecodeString(t.KeyHash)
	if err != nil {
		return nil, errors.Wrap(err, "decode stored hash")
	}
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return nil, errors.New("hash mismatch")
	}
	return t, nil
}

// Require admits requests whose terminal holds scope.
func (a *Authenticator) Require(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.disabled {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(KeyHeader)
		if key == "" {
			// Browsers cannot set headers on websocket handshakes.
			key = r.URL.Query().Get("key")
		}
		t, err := a.authenticate(r.Context(), key)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) && key != "" {
				zctx.From(r.Context()).Warn("Authenticate terminal", zap.Error(err))
			}
			writeErrorBody(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		if !t.HasScope(scope) {
			writeErrorBody(w, http.StatusForbidden, "terminal "+t.Name+" lacks scope "+scope, "")
			return
		}
		ctx := context.WithValue(r.Context(), terminalKey{}, t)
		ctx = zctx.With(ctx, zap.String("terminal", t.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
