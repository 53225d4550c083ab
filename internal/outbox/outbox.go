// Package outbox delivers change events recorded inside domain transactions.
//
// Events are appended to the outbox table by the same transaction as the
// mutation they describe, so an event becomes visible to the dispatcher only
// after that mutation committed. The dispatcher leases pending entries in
// order, hands each to every configured sink outside of any transaction, and
// marks it published. An entry that keeps failing is dead-lettered after
// MaxAttempts so it no longer holds back the entries behind it.
package outbox

import (
	"context"
	"time"

	"github.com/xenking/comanda/internal/domain/event"
)

// Entry is a recorded event awaiting delivery.
type Entry struct {
	Seq      int64
	Event    event.Event
	Attempts int
}

// Store is the persistent side of the outbox.
type Store interface {
	event.Recorder
	// Claim leases up to limit undelivered entries, oldest first, for lease
	// from now. Leased and dead entries are skipped by other claims until the
	// lease expires or is released.
	Claim(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]Entry, error)
	MarkPublished(ctx context.Context, seqs []int64, at time.Time) error
	// MarkFailed records a failed delivery attempt and releases the lease. A
	// dead entry is never claimed again.
	MarkFailed(ctx context.Context, seq int64, reason string, dead bool) error
	// Release returns leased entries to the queue without counting an attempt.
	Release(ctx context.Context, seqs []int64) error
}

// Sink receives delivered events.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e event.Event) error
}
