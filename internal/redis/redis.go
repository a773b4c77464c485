package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fidoochat/internal/domain"
)

// Client reads a message collection stored as a sorted set scored by
// creation time in unix milliseconds, one JSON member per message.
type Client struct {
	rdb *redis.Client
}

func New(addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Messages returns the whole collection, lowest score first.
func (c *Client) Messages(ctx context.Context, collection string) ([]domain.Message, error) {
	members, err := c.rdb.ZRange(ctx, collection, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return DecodeMessages(members)
}

// Changes subscribes to channel and signals once per published event until
// ctx is done. The subscription is confirmed before Changes returns.
func (c *Client) Changes(ctx context.Context, channel string) (<-chan struct{}, error) {
	pubsub := c.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}

// DecodeMessages parses sorted-set members. Ordering is left to the caller.
func DecodeMessages(members []string) ([]domain.Message, error) {
	msgs := make([]domain.Message, 0, len(members))
	for _, m := range members {
		var msg domain.Message
		if err := json.Unmarshal([]byte(m), &msg); err != nil {
			return nil, fmt.Errorf("decode member: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
