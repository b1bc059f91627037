// Package redisdb is the redis side of the server: the state mirror, the whitelist set, the
// oracle queues and the event channel.
package redisdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Lavizord/roulette-server/logger"
)

type RedisClient struct {
	Client        *redis.Client
	Subscriptions map[string]*redis.PubSub // active subscriptions per channel
	mu            sync.Mutex
}

func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// check connection
	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("[RedisClient] - failed to connect to Redis at %s: %w", addr, err)
	}
	return &RedisClient{
		Client:        client,
		Subscriptions: make(map[string]*redis.PubSub),
	}, nil
}

func (r *RedisClient) RPushGeneric(queue string, data []byte) error {
	return r.Client.RPush(context.Background(), queue, string(data)).Err()
}

// BLPopGeneric waits up to timeout for an item. It returns redis.Nil when the wait ran out.
func (r *RedisClient) BLPopGeneric(ctx context.Context, queue string, timeout time.Duration) ([]string, error) {
	result, err := r.Client.BLPop(ctx, timeout, queue).Result()
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *RedisClient) Publish(channel string, message []byte) error {
	err := r.Client.Publish(context.Background(), channel, message).Err()
	if err != nil {
		return fmt.Errorf("[RedisClient] - failed to publish message: %w", err)
	}
	return nil
}

// Subscribe delivers every payload of channel to messageHandler on its own goroutine.
func (r *RedisClient) Subscribe(channel string, messageHandler func(string)) {
	r.mu.Lock()
	if _, exists := r.Subscriptions[channel]; exists {
		r.mu.Unlock()
		logger.Default.Warnf("[RedisClient] - already subscribed to %s", channel)
		return
	}
	pubsub := r.Client.Subscribe(context.Background(), channel)
	r.Subscriptions[channel] = pubsub
	r.mu.Unlock()

	go func() {
		for msg := range pubsub.Channel() {
			messageHandler(msg.Payload)
		}
	}()
}

func (r *RedisClient) Unsubscribe(channel string) {
	r.mu.Lock()
	pubsub, exists := r.Subscriptions[channel]
	if !exists {
		r.mu.Unlock()
		logger.Default.Warnf("[RedisClient] - not subscribed to %s", channel)
		return
	}
	delete(r.Subscriptions, channel)
	r.mu.Unlock()

	if err := pubsub.Close(); err != nil {
		logger.Default.Errorf("[RedisClient] - error unsubscribing from %s: %v", channel, err)
	}
}

// Close drops every subscription and the connection pool.
func (r *RedisClient) Close() error {
	r.mu.Lock()
	for channel, pubsub := range r.Subscriptions {
		_ = pubsub.Close()
		delete(r.Subscriptions, channel)
	}
	r.mu.Unlock()
	return r.Client.Close()
}

// Consume pops queue until ctx is done and hands every item to handle. handle runs on the
// calling goroutine, so items are processed in queue order.
func (r *RedisClient) Consume(ctx context.Context, queue string, timeout time.Duration, handle func([]byte)) {
	for {
		if ctx.Err() != nil {
			return
		}
		result, err := r.BLPopGeneric(ctx, queue, timeout)
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			logger.Default.Errorf("[RedisClient] - failed to pop %s: %v", queue, err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if len(result) < 2 {
			continue
		}
		handle([]byte(result[1]))
	}
}
