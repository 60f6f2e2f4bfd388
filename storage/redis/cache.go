package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/storage"
	goredis "github.com/redis/go-redis/v9"
)

const defaultSweepBatch = 500

// KEYS[1] time index
// ARGV: cutoff (unix micro), batch size, entry key prefix
// Removes up to batch entries scored at or before cutoff; returns the count.
// A re-set entry carries a newer score and is never selected.
var sweepScript = goredis.NewScript(`
local keys = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, k in ipairs(keys) do
  redis.call('DEL', ARGV[3] .. k)
  redis.call('ZREM', KEYS[1], k)
end
return #keys
`)

type cacheStore Store

var _ storage.CacheStore = (*cacheStore)(nil)

// All cache keys share the {cache} hash tag.
func (c *cacheStore) entryPrefix() string {
	return (*Store)(c).key("{cache}", "entry") + ":"
}

func (c *cacheStore) indexKey() string {
	return (*Store)(c).key("{cache}", "index")
}

// GetCacheEntry retrieves an entry by fingerprint regardless of its age.
func (c *cacheStore) GetCacheEntry(ctx context.Context, key string) (*core.CacheEntry, error) {
	data, err := c.client.Get(ctx, c.entryPrefix()+key).Bytes()
	if err != nil {
		return nil, translate(err)
	}
	return storage.UnmarshalCacheEntry(data)
}

// PutCacheEntry stores an entry and its index score in one transaction.
func (c *cacheStore) PutCacheEntry(ctx context.Context, entry *core.CacheEntry) error {
	if entry == nil || entry.Key == "" {
		return storage.ErrInvalidQuery
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	data := storage.MarshalCacheEntry(entry)
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, c.entryPrefix()+entry.Key, data, 0)
		pipe.ZAdd(ctx, c.indexKey(), goredis.Z{
			Score:  float64(entry.CreatedAt.UnixMicro()),
			Member: entry.Key,
		})
		return nil
	})
	return translate(err)
}

// DeleteCacheEntriesBefore sweeps expired entries in bounded batches.
func (c *cacheStore) DeleteCacheEntriesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	for {
		n, err := sweepScript.Run(ctx, c.client,
			[]string{c.indexKey()},
			strconv.FormatInt(cutoff.UnixMicro(), 10), defaultSweepBatch, c.entryPrefix(),
		).Int()
		if err != nil {
			return removed, translate(err)
		}
		removed += n
		if n < defaultSweepBatch {
			return removed, nil
		}
	}
}
