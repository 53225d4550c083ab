package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/comanda/internal/domain/consistency"
	"github.com/xenking/comanda/internal/domain/event"
)

// Config tunes a Dispatcher.
type Config struct {
	Interval  time.Duration
	BatchSize int
	// Lease is how long claimed entries are hidden from other dispatchers
	// while they are being published.
	Lease time.Duration
	// MaxAttempts dead-letters an entry after that many failed deliveries.
	MaxAttempts int
}

// Dispatcher delivers outbox entries to sinks. Delivery is at least once: an
// entry whose delivery failed on any sink is retried on every sink.
type Dispatcher struct {
	coord       consistency.Coordinator
	store       Store
	sinks       []Sink
	interval    time.Duration
	batch       int
	lease       time.Duration
	maxAttempts int
	lg          *zap.Logger
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(coord consistency.Coordinator, store Store, sinks []Sink, cfg Config, lg *zap.Logger) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Dispatcher{
		coord:       coord,
		store:       store,
		sinks:       sinks,
		interval:    cfg.Interval,
		batch:       cfg.BatchSize,
		lease:       cfg.Lease,
		maxAttempts: cfg.MaxAttempts,
		lg:          lg,
		now:         time.Now,
	}
}

// Run dispatches until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	d.lg.Info("Outbox dispatcher started",
		zap.Strings("sinks", names),
		zap.Duration("interval", d.interval),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		// Drain full batches without waiting for the next tick.
		for {
			n, err := d.DispatchOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.lg.Error("Dispatch outbox", zap.Error(err))
				break
			}
			if n < d.batch {
				break
			}
		}
	}
}

// DispatchOnce delivers one batch and returns how many entries were published.
// It stops at the first entry that fails so entries are delivered in order;
// the rest of the batch goes back to the queue. Sinks are called outside of
// any transaction.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	var entries []Entry
	if err := d.coord.Atomic(ctx, "outbox.claim", func(ctx context.Context) error {
		var err error
		entries, err = d.store.Claim(ctx, d.batch, d.now(), d.lease)
		return err
	}); err != nil {
		return 0, errors.Wrap(err, "claim")
	}
	if len(entries) == 0 {
		return 0, nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, d.lease)
	defer cancel()

	done := make([]int64, 0, len(entries))
	var failed error
	for i, e := range entries {
		if err := d.publish(pubCtx, e.Event); err != nil {
			failed = d.fail(ctx, e, err)
			if failed == nil {
				failed = d.release(ctx, entries[i+1:])
			}
			break
		}
		done = append(done, e.Seq)
	}

	if len(done) > 0 {
		if err := d.store.MarkPublished(ctx, done, d.now()); err != nil {
			return 0, errors.Wrap(err, "mark published")
		}
	}
	if failed != nil {
		return len(done), failed
	}
	return len(done), nil
}

func (d *Dispatcher) fail(ctx context.Context, e Entry, cause error) error {
	attempts := e.Attempts + 1
	dead := attempts >= d.maxAttempts
	fields := []zap.Field{
		zap.Int64("seq", e.Seq),
		zap.String("type", string(e.Event.Type)),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	}
	if dead {
		d.lg.Error("Dead-lettering event", fields...)
	} else {
		d.lg.Warn("Deliver event", fields...)
	}
	if err := d.store.MarkFailed(ctx, e.Seq, cause.Error(), dead); err != nil {
		return errors.Wrap(err, "mark failed")
	}
	return nil
}

func (d *Dispatcher) release(ctx context.Context, rest []Entry) error {
	if len(rest) == 0 {
		return nil
	}
	seqs := make([]int64, 0, len(rest))
	for _, e := range rest {
		seqs = append(seqs, e.Seq)
	}
	if err := d.store.Release(ctx, seqs); err != nil {
		return errors.Wrap(err, "release")
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, e event.Event) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range d.sinks {
		g.Go(func() error {
			if err := s.Publish(ctx, e); err != nil {
				return errors.Wrapf(err, "sink %s", s.Name())
			}
			return nil
		})
	}
	return g.Wait()
}
