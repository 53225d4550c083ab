// Package consistency defines the transactional boundary every multi-entity
// operation runs in.
package consistency

import "context"

// Coordinator runs fn as a single all-or-nothing unit of work. Repositories
// called with the ctx passed to fn participate in the same transaction. If fn
// returns an error, every write made through that ctx is discarded.
//
// Nested calls join the outer unit of work.
type Coordinator interface {
	Atomic(ctx context.Context, name string, fn func(ctx context.Context) error) error
}
