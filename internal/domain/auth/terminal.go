// Package auth identifies the terminals (kitchen displays, cashier stations)
// calling the service.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Scopes a terminal can be granted.
const (
	ScopeOrders  = "orders"
	ScopeKitchen = "kitchen"
	ScopeCashier = "cashier"
	ScopeReports = "reports"
)

// Terminal is a registered device holding an API key.
type Terminal struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether t was granted scope. A terminal without scopes is
// granted every scope.
func (t *Terminal) HasScope(scope string) bool {
	if len(t.Scopes) == 0 {
		return true
	}
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository looks up terminals by their key hash.
type Repository interface {
	// FindByHash returns the active terminal whose key hashes to hash, or an
	// apperr.NotFoundError.
	FindByHash(ctx context.Context, hash string) (*Terminal, error)
}

// HashKey returns the hex HMAC-SHA256 of key under pepper.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
