// Package redis provides the Redis client used to broadcast collection
// metadata invalidations between engine processes.
//
// Only publish/subscribe is exposed; use Client() for anything else.
//
//	client, err := redis.NewClient(redis.Config{Host: "localhost"}, log)
//	sub, err := client.Subscribe(ctx, "vc:invalidate", func(ctx context.Context, payload []byte) {
//		// reload
//	})
//	defer sub.Close()
//	_, err = client.Publish(ctx, "vc:invalidate", []byte(`{"origin":"a"}`))
package redis
