package feed

import (
	"context"

	"go.uber.org/zap"

	"fidoochat/internal/redis"
)

// NewRedisSource watches a sorted-set collection and its pub/sub change
// channel.
func NewRedisSource(c *redis.Client, channel string, log *zap.Logger) *ChangeSource {
	return &ChangeSource{
		name: "redis",
		load: c.Messages,
		changes: func(ctx context.Context) (<-chan struct{}, error) {
			return c.Changes(ctx, channel)
		},
		log: log.Named("feed.redis"),
	}
}
