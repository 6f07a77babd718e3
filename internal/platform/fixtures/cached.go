package fixtures

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

// CachedGateway puts a SnapshotCache in front of another gateway. Cache
// errors are logged and treated as misses; they never fail a fetch.
type CachedGateway struct {
	next   domain.SnapshotGateway
	cache  domain.SnapshotCache
	logger *slog.Logger
}

// NewCachedGateway wraps next with cache.
func NewCachedGateway(next domain.SnapshotGateway, cache domain.SnapshotCache, logger *slog.Logger) *CachedGateway {
	return &CachedGateway{
		next:   next,
		cache:  cache,
		logger: logger.With(slog.String("component", "fixture_cache")),
	}
}

// FetchSnapshot returns a cached snapshot when one exists, otherwise reads
// through to the wrapped gateway and stores the result.
func (g *CachedGateway) FetchSnapshot(ctx context.Context, matchID string) (domain.FixtureSnapshot, error) {
	snap, err := g.cache.Get(ctx, matchID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		g.logger.WarnContext(ctx, "snapshot cache read failed",
			slog.String("match_id", matchID),
			slog.String("error", err.Error()),
		)
	}

	snap, err = g.next.FetchSnapshot(ctx, matchID)
	if err != nil {
		return domain.FixtureSnapshot{}, err
	}

	if err := g.cache.Set(ctx, snap); err != nil {
		g.logger.WarnContext(ctx, "snapshot cache write failed",
			slog.String("match_id", matchID),
			slog.String("error", err.Error()),
		)
	}
	return snap, nil
}

var _ domain.SnapshotGateway = (*CachedGateway)(nil)
