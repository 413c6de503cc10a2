package stats

import (
	"context"

	"github.com/scrutin/api.scrutin.app/redis"
)

// RedisPublisher pushes tally updates through the shared redis client.
// Delivery is at-most-once; a subscriber that misses one update catches up
// on the next.
type RedisPublisher struct{}

func (RedisPublisher) Publish(ctx context.Context, channel string, payload string) error {
	return redis.Client.Publish(ctx, channel, payload).Err()
}
