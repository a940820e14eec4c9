package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Aleph-Alpha/vectorcollections/v1/redis"
	"github.com/Aleph-Alpha/vectorcollections/v1/tracer"
)

// DefaultInvalidationChannel is the Redis channel invalidation events travel on.
const DefaultInvalidationChannel = "vc:invalidate"

// Event reasons.
const (
	ReasonCreated      = "created"
	ReasonUpdated      = "updated"
	ReasonDeleted      = "deleted"
	ReasonBlueSwitched = "blue_switched"
	ReasonOptimized    = "optimized"
)

// Event tells other processes that collection metadata changed and their
// cached copy is stale.
type Event struct {
	// Origin is the instance id of the publishing cache.
	Origin       string            `json:"origin"`
	Reason       string            `json:"reason"`
	CollectionID string            `json:"collection_id,omitempty"`
	Trace        map[string]string `json:"trace,omitempty"`
}

// Notifier broadcasts and receives invalidation events.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, handle func(ctx context.Context, event Event)) (io.Closer, error)
}

// NopNotifier is used when a single process owns the metadata.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Event) error { return nil }

func (NopNotifier) Subscribe(context.Context, func(context.Context, Event)) (io.Closer, error) {
	return nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// RedisNotifier sends events over Redis pub/sub. The publisher's trace
// context travels with the event so the reload shows up in the same trace.
type RedisNotifier struct {
	client  redis.Client
	channel string
	tracer  *tracer.Tracer
	logger  Logger
}

// NewRedisNotifier creates a notifier on channel. An empty channel selects
// DefaultInvalidationChannel; a nil tracer disables trace propagation.
func NewRedisNotifier(client redis.Client, channel string, tr *tracer.Tracer, logger Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &RedisNotifier{client: client, channel: channel, tracer: tr, logger: logger}
}

func (n *RedisNotifier) Publish(ctx context.Context, event Event) error {
	if n.tracer != nil {
		event.Trace = n.tracer.GetCarrier(ctx)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode invalidation event: %w", err)
	}
	if _, err := n.client.Publish(ctx, n.channel, payload); err != nil {
		return fmt.Errorf("failed to publish invalidation event: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context, handle func(ctx context.Context, event Event)) (io.Closer, error) {
	sub, err := n.client.Subscribe(ctx, n.channel, func(ctx context.Context, payload []byte) {
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			n.logger.Warn("dropping malformed invalidation event", err, map[string]interface{}{
				"channel": n.channel,
			})
			return
		}
		if n.tracer != nil && len(event.Trace) > 0 {
			ctx = n.tracer.SetCarrierOnContext(ctx, event.Trace)
		}
		handle(ctx, event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}
	return sub, nil
}
