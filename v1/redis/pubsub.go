package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Ping checks that the server answers.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Publish sends payload on channel and returns the number of receivers.
func (r *RedisClient) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	return r.client.Publish(ctx, channel, payload).Result()
}

// Subscribe calls handle for every message on channel until ctx ends or the
// client is closed. The subscription is confirmed before Subscribe returns, so
// messages published afterwards are not lost.
//
// handle runs on the subscription goroutine; a slow handler delays later messages.
func (r *RedisClient) Subscribe(ctx context.Context, channel string, handle func(ctx context.Context, payload []byte)) (*Subscription, error) {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{pubsub: pubsub, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		messages := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				handle(subCtx, []byte(msg.Payload))
			}
		}
	}()
	return sub, nil
}

// Subscription is an active channel subscription.
type Subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops delivery and waits for the handler goroutine to exit.
func (s *Subscription) Close() error {
	s.cancel()
	err := s.pubsub.Close()
	<-s.done
	return err
}
