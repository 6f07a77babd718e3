package domain

import (
	"context"
	"time"
)

// SnapshotGateway returns the current state of one match.
type SnapshotGateway interface {
	FetchSnapshot(ctx context.Context, matchID string) (FixtureSnapshot, error)
}

// SnapshotCache keeps recently fetched fixture snapshots for a short time.
type SnapshotCache interface {
	Set(ctx context.Context, snap FixtureSnapshot) error
	Get(ctx context.Context, matchID string) (FixtureSnapshot, error)
	Invalidate(ctx context.Context, matchID string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
