package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/predictionbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultSnapshotTTL keeps a fixture snapshot for a little less than one
// resolver interval, so replicas and the status API share one upstream read.
const DefaultSnapshotTTL = 20 * time.Second

// SnapshotCache implements domain.SnapshotCache with one JSON string per
// match.
//
// Key schema:
//
//	fixture:{matchID} - JSON-encoded domain.FixtureSnapshot
type SnapshotCache struct {
	c   *Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache. ttl <= 0 uses DefaultSnapshotTTL.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{c: c, ttl: ttl}
}

func (sc *SnapshotCache) fixtureKey(matchID string) string {
	return sc.c.key("fixture:" + matchID)
}

// Set stores snap under its match id.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.FixtureSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.MatchID, err)
	}
	if err := sc.c.rdb.Set(ctx, sc.fixtureKey(snap.MatchID), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.MatchID, err)
	}
	return nil
}

// Get returns the cached snapshot or domain.ErrNotFound.
func (sc *SnapshotCache) Get(ctx context.Context, matchID string) (domain.FixtureSnapshot, error) {
	data, err := sc.c.rdb.Get(ctx, sc.fixtureKey(matchID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.FixtureSnapshot{}, domain.ErrNotFound
		}
		return domain.FixtureSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", matchID, err)
	}

	var snap domain.FixtureSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.FixtureSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", matchID, err)
	}
	return snap, nil
}

// Invalidate drops the cached snapshot for matchID.
func (sc *SnapshotCache) Invalidate(ctx context.Context, matchID string) error {
	if err := sc.c.rdb.Del(ctx, sc.fixtureKey(matchID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate snapshot %s: %w", matchID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
