package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ijatinydv/ParkEase-sub000/domain"
)

const spotCacheTTL = 10 * time.Minute

// SpotRedisCache is a read-through cache in front of the spot catalog.
// Spot data is read on every admission and changes rarely; a short TTL
// keeps tariff or schedule edits from going stale for long.
type SpotRedisCache struct {
	client *redis.Client
	inner  domain.SpotCatalog
	tracer trace.Tracer
	logger *logrus.Logger
}

func NewSpotRedisCache(client *redis.Client, inner domain.SpotCatalog, tracer trace.Tracer, logger *logrus.Logger) *SpotRedisCache {
	return &SpotRedisCache{
		client: client,
		inner:  inner,
		tracer: tracer,
		logger: logger,
	}
}

var _ domain.SpotCatalog = (*SpotRedisCache)(nil)

func (cache *SpotRedisCache) GetSpot(ctx context.Context, spotID string) (*domain.Spot, error) {
	ctx, span := cache.tracer.Start(ctx, "SpotRedisCache.GetSpot")
	defer span.End()

	key := "spot:" + spotID
	cached, err := cache.client.Get(key).Result()
	if err == nil {
		var spot domain.Spot
		if err := json.Unmarshal([]byte(cached), &spot); err == nil {
			return &spot, nil
		}
		// Unparseable entry; fall through to the catalog.
	} else if err != redis.Nil {
		span.SetStatus(codes.Error, err.Error())
		cache.logger.Warnf("redis get %s: %s", key, err)
	}

	spot, err := cache.inner.GetSpot(ctx, spotID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(spot)
	if err == nil {
		if setErr := cache.client.Set(key, payload, spotCacheTTL).Err(); setErr != nil {
			cache.logger.Warnf("redis set %s: %s", key, setErr)
		}
	}
	return spot, nil
}
