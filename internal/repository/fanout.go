package repository

import (
	"context"

	"github.com/redis/go-redis/v9"

	"blinkroom/pkg/logger"
)

// FanoutBus is the shared publish/subscribe channel connecting all server
// processes. Payloads published to a channel reach every subscriber regardless
// of which process published them.
type FanoutBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (BusSubscription, error)
}

// BusSubscription is a live subscription to a single channel. Next blocks until
// an event arrives or the context is cancelled. Close unsubscribes.
type BusSubscription interface {
	Next(ctx context.Context) (channel string, payload []byte, err error)
	Close() error
}

type redisFanoutBus struct {
	redis *redis.Client
	log   logger.Logger
}

func NewRedisFanoutBus(rdb *redis.Client, log logger.Logger) FanoutBus {
	return &redisFanoutBus{redis: rdb, log: log}
}

// Publish is fire-and-forget: no delivery acknowledgment, no retries.
func (b *redisFanoutBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.redis.Publish(ctx, channel, payload).Err(); err != nil {
		b.log.Error("Failed to publish to fanout bus", "channel", channel, "error", err)
		return err
	}
	return nil
}

func (b *redisFanoutBus) Subscribe(ctx context.Context, channel string) (BusSubscription, error) {
	ps := b.redis.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so events published after
	// Subscribe returns are guaranteed to be received.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		b.log.Error("Failed to subscribe to fanout bus", "channel", channel, "error", err)
		return nil, err
	}

	return &redisSubscription{ps: ps}, nil
}

type redisSubscription struct {
	ps *redis.PubSub
}

func (s *redisSubscription) Next(ctx context.Context) (string, []byte, error) {
	m, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		return "", nil, err
	}
	return m.Channel, []byte(m.Payload), nil
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
