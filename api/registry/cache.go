package registry

import (
	"context"
	"errors"
	"time"

	"CollectLedger/api/settlement/model"
	"CollectLedger/api/settlement/reconcile"
	"CollectLedger/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const cacheKeyPrefix = "collectledger:terminal:"

// redisKV is the slice of the go-redis client the cache needs.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedRegistry answers terminal lookups from redis, falling back to the
// backing registry on a miss. Unknown terminals are cached too so a file full
// of unregistered terminals does not hammer postgres. A redis outage only
// costs the cache: lookups still go to the backing registry.
type CachedRegistry struct {
	client  redisKV
	backing reconcile.TerminalRegistry
	ttl     time.Duration
	log     logrus.FieldLogger
}

func NewCachedRegistry(client redisKV, backing reconcile.TerminalRegistry, ttl time.Duration, log logrus.FieldLogger) *CachedRegistry {
	if ttl <= 0 {
		ttl = config.DefaultRegistryCacheTTL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedRegistry{client: client, backing: backing, ttl: ttl, log: log}
}

// NewRedisClient opens the go-redis client described by the REDIS_* settings.
func NewRedisClient(s config.RedisSettings) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     s.Addr,
		Password: s.Password,
		DB:       s.DB,
	})
}

func cacheKey(p model.Provider, externalID string) string {
	return cacheKeyPrefix + string(p) + ":" + model.CleanTerminal(externalID)
}

func (c *CachedRegistry) Exists(ctx context.Context, p model.Provider, externalID string) (bool, error) {
	key := cacheKey(p, externalID)
	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return val == "1", nil
	case !errors.Is(err, redis.Nil):
		c.log.WithError(err).WithField("terminal", externalID).Warn("[REGISTRY] cache read failed")
	}

	ok, err := c.backing.Exists(ctx, p, externalID)
	if err != nil {
		return false, err
	}
	val = "0"
	if ok {
		val = "1"
	}
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("terminal", externalID).Warn("[REGISTRY] cache write failed")
	}
	return ok, nil
}

// Invalidate drops the cached answers for the given terminal ids under
// every provider, since an update may move a terminal between providers.
func (c *CachedRegistry) Invalidate(ctx context.Context, externalIDs ...string) error {
	keys := make([]string, 0, len(externalIDs)*len(model.Providers))
	for _, id := range externalIDs {
		if model.CleanTerminal(id) == "" {
			continue
		}
		for _, p := range model.Providers {
			keys = append(keys, cacheKey(p, id))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

var _ reconcile.TerminalRegistry = (*CachedRegistry)(nil)
