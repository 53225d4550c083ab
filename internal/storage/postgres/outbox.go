package postgres

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/comanda/internal/domain/event"
	"github.com/xenking/comanda/internal/outbox"
)

var _ outbox.Store = (*OutboxStore)(nil)

// OutboxStore implements outbox.Store on the outbox table.
type OutboxStore struct {
	pool *pgxpool.Pool
}

func (o *OutboxStore) Record(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO outbox (event_id, event_type, aggregate_id, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, e.ID, e.Type, e.AggregateID, e.Encode(), e.CreatedAt)
	}
	br := conn(ctx, o.pool).SendBatch(ctx, batch)
	defer br.Close()
	for _, e := range events {
		if _, err := br.Exec(); err != nil {
			return errors.Wrapf(err, "record %s event", e.Type)
		}
	}
	return br.Close()
}

// Claim leases entries with a single UPDATE. Rows another claim is updating
// are skipped rather than waited on.
func (o *OutboxStore) Claim(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]outbox.Entry, error) {
	rows, err := conn(ctx, o.pool).Query(ctx, `
		UPDATE outbox SET leased_until = $3
		WHERE seq IN (
			SELECT seq FROM outbox
			WHERE published_at IS NULL AND dead_at IS NULL
			  AND (leased_until IS NULL OR leased_until <= $2)
			ORDER BY seq
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING seq, payload, attempts
	`, limit, now, now.Add(lease))
	if err != nil {
		return nil, errors.Wrap(err, "claim outbox")
	}
	defer rows.Close()

	var entries []outbox.Entry
	for rows.Next() {
		var (
			entry   outbox.Entry
			payload []byte
		)
		if err := rows.Scan(&entry.Seq, &payload, &entry.Attempts); err != nil {
			return nil, errors.Wrap(err, "scan outbox entry")
		}
		if entry.Event, err = event.Decode(payload); err != nil {
			return nil, errors.Wrapf(err, "outbox entry %d", entry.Seq)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate outbox")
	}
	// RETURNING does not keep the subquery order.
	slices.SortFunc(entries, func(a, b outbox.Entry) int { return cmp.Compare(a.Seq, b.Seq) })
	return entries, nil
}

func (o *OutboxStore) MarkPublished(ctx context.Context, seqs []int64, at time.Time) error {
	if len(seqs) == 0 {
		return nil
	}
	if _, err := conn(ctx, o.pool).Exec(ctx,
		`UPDATE outbox SET published_at = $2, leased_until = NULL WHERE seq = ANY($1)`, seqs, at); err != nil {
		return errors.Wrap(err, "mark outbox published")
	}
	return nil
}

func (o *OutboxStore) MarkFailed(ctx context.Context, seq int64, reason string, dead bool) error {
	if _, err := conn(ctx, o.pool).Exec(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2, leased_until = NULL,
		    dead_at = CASE WHEN $3 THEN now() END
		WHERE seq = $1
	`, seq, reason, dead); err != nil {
		return errors.Wrapf(err, "mark outbox entry %d failed", seq)
	}
	return nil
}

func (o *OutboxStore) Release(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	if _, err := conn(ctx, o.pool).Exec(ctx,
		`UPDATE outbox SET leased_until = NULL WHERE seq = ANY($1)`, seqs); err != nil {
		return errors.Wrap(err, "release outbox entries")
	}
	return nil
}

// Pending counts entries still awaiting delivery. Dead entries are excluded.
func (o *OutboxStore) Pending(ctx context.Context) (int, error) {
	var n int
	if err := conn(ctx, o.pool).QueryRow(ctx,
		`SELECT count(*) FROM outbox WHERE published_at IS NULL AND dead_at IS NULL`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count pending outbox")
	}
	return n, nil
}
