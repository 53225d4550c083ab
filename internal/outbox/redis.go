package outbox

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"

	"github.com/xenking/comanda/internal/domain/event"
)

var _ Sink = (*RedisSink)(nil)

// RedisSink publishes every event on "<prefix>:<type>" and "<prefix>:all".
type RedisSink struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSink creates a RedisSink.
func NewRedisSink(client redis.UniversalClient, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "comanda:events"
	}
	return &RedisSink{client: client, prefix: prefix}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, e event.Event) error {
	payload := e.Encode()
	for _, channel := range []string{s.prefix + ":" + string(e.Type), s.prefix + ":all"} {
		if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
			return errors.Wrapf(err, "publish %s", channel)
		}
	}
	return nil
}
