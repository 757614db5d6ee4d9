// Package cache keeps authority service areas in Redis so routing does not hit
// MySQL on every recommendation request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"cityzen/logx"
	"cityzen/models"
)

const areaKeyPrefix = "cityzen:authorities:category:"

// AuthoritySource is the uncached loader, normally the authority repository.
type AuthoritySource interface {
	AuthoritiesForCategory(ctx context.Context, categoryID int64) ([]models.AuthorityCompany, error)
}

// AreaCache is a read-through cache in front of an AuthoritySource. Redis
// failures are logged and the source is used directly.
type AreaCache struct {
	rdb    *redis.Client
	source AuthoritySource
	ttl    time.Duration
	log    logx.Logger
}

func NewAreaCache(rdb *redis.Client, source AuthoritySource, ttl time.Duration, log logx.Logger) *AreaCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &AreaCache{rdb: rdb, source: source, ttl: ttl, log: log}
}

func areaKey(categoryID int64) string {
	return fmt.Sprintf("%s%d", areaKeyPrefix, categoryID)
}

func (c *AreaCache) AuthoritiesForCategory(ctx context.Context, categoryID int64) ([]models.AuthorityCompany, error) {
	key := areaKey(categoryID)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var out []models.AuthorityCompany
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		c.log.Warn(ctx, "area_cache_corrupt", "dropping undecodable cache entry", slog.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn(ctx, "area_cache_unavailable", "redis read failed", slog.String("error", err.Error()))
	}

	authorities, err := c.source.AuthoritiesForCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if body, err := json.Marshal(authorities); err == nil {
		if err := c.rdb.Set(ctx, key, body, c.ttl).Err(); err != nil {
			c.log.Warn(ctx, "area_cache_unavailable", "redis write failed", slog.String("error", err.Error()))
		}
	}
	return authorities, nil
}
