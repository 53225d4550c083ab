package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/comanda/internal/domain/event"
	"github.com/xenking/comanda/internal/outbox"
)

func seqs(entries []outbox.Entry) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Seq)
	}
	return out
}

func TestOutboxStore_Lease(t *testing.T) {
	ctx := context.Background()
	ob := New().Outbox()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"o1", "o2", "o3", "o4"} {
		require.NoError(t, ob.Record(ctx, event.New(event.OrderCreated, id, now, nil)))
	}

	first, err := ob.Claim(ctx, 2, now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, seqs(first))

	second, err := ob.Claim(ctx, 10, now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, seqs(second), "leased entries are skipped")

	none, err := ob.Claim(ctx, 10, now.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, ob.MarkPublished(ctx, []int64{1}, now))
	require.NoError(t, ob.Release(ctx, []int64{2}))
	require.NoError(t, ob.MarkFailed(ctx, 3, "broker down", true))

	again, err := ob.Claim(ctx, 10, now.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, seqs(again))

	expired, err := ob.Claim(ctx, 10, now.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4}, seqs(expired), "expired leases are claimable")

	pending, err := ob.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	dead := ob.Dead()
	require.Len(t, dead, 1)
	assert.Equal(t, int64(3), dead[0].Seq)
	assert.Equal(t, 1, dead[0].Attempts)
}
