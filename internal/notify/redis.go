package notify

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// RedisSink publishes notifications on Redis pub/sub channels named after the topic.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink wraps an existing client.
func NewRedisSink(client *redis.Client) (*RedisSink, error) {
	if client == nil {
		return nil, errors.New("redis sink: nil client")
	}
	return &RedisSink{client: client}, nil
}

// DialRedis builds a client and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisSink{client: client}, nil
}

// Publish sends payload to the channel named topic.
func (s *RedisSink) Publish(ctx context.Context, topic string, payload []byte) error {
	if s == nil || s.client == nil {
		return errors.New("redis sink: nil client")
	}
	return s.client.Publish(ctx, topic, payload).Err()
}

// Close releases the client.
func (s *RedisSink) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
