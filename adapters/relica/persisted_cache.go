package relica

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coregx/realtime"
	"github.com/coregx/realtime/model"
)

// Decoder rebuilds a typed cache value from its persisted JSON form. Each
// persisted cache stores one kind of value, so the decoder is fixed per
// cache instance.
type Decoder func(data []byte) (any, error)

// JSONDecoder returns a Decoder unmarshalling into a fresh T.
func JSONDecoder[T any]() Decoder {
	return func(data []byte) (any, error) {
		var value T
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, err
		}
		return value, nil
	}
}

// PersistedCache is a realtime.Cache layered over an in-memory cache and a
// CacheRepository. Reads hit memory first and fall back to the repository;
// writes go to both unless NoPersist is set.
type PersistedCache struct {
	memory realtime.Cache
	repo   *CacheRepository
	decode Decoder
	logger realtime.Logger
	now    func() time.Time
}

// NewPersistedCache layers memory over repo. The decoder rebuilds typed
// values on repository fallback reads.
func NewPersistedCache(memory realtime.Cache, repo *CacheRepository, decode Decoder, logger realtime.Logger) (*PersistedCache, error) {
	if memory == nil {
		return nil, realtime.NewError(realtime.ErrCodeConfiguration, "memory cache is required")
	}
	if repo == nil {
		return nil, realtime.NewError(realtime.ErrCodeConfiguration, "cache repository is required")
	}
	if decode == nil {
		return nil, realtime.NewError(realtime.ErrCodeConfiguration, "decoder is required")
	}
	if logger == nil {
		logger = &realtime.NoopLogger{}
	}
	return &PersistedCache{
		memory: memory,
		repo:   repo,
		decode: decode,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Get retrieves the value under key, falling back to the repository on a
// memory miss. A repository hit repopulates the memory tier.
func (c *PersistedCache) Get(key string) (any, bool, error) {
	value, found, err := c.memory.Get(key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return value, true, nil
	}

	entry, err := c.repo.Load(context.Background(), key)
	if realtime.IsNoData(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if entry.TTL > 0 && c.now().After(entry.UpdatedAt.Add(entry.TTL)) {
		// stale row: drop it rather than resurrect an expired entry
		if err := c.repo.Delete(context.Background(), key); err != nil {
			c.logger.Warnf("failed to prune expired cache row %q: %v", key, err)
		}
		return nil, false, nil
	}

	decoded, err := c.decode(entry.Value)
	if err != nil {
		return nil, false, realtime.NewErrorWithCause(realtime.ErrCodeCache, "failed to decode persisted cache value", err)
	}

	remaining := realtime.CacheSetOptions{NoPersist: true}
	if entry.TTL > 0 {
		remaining.TTL = entry.UpdatedAt.Add(entry.TTL).Sub(c.now())
	}
	if err := c.memory.Set(key, decoded, remaining); err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

// Set stores the value in memory and, unless opts.NoPersist, in the
// repository as JSON.
func (c *PersistedCache) Set(key string, value any, opts realtime.CacheSetOptions) error {
	if err := c.memory.Set(key, value, opts); err != nil {
		return err
	}
	if opts.NoPersist {
		return nil
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return realtime.NewErrorWithCause(realtime.ErrCodeCache, "failed to encode cache value", err)
	}
	return c.repo.Save(context.Background(), model.CacheEntry{
		Key:       key,
		Value:     encoded,
		TTL:       opts.TTL,
		UpdatedAt: c.now(),
	})
}

// Remove deletes the entry from memory and, unless opts.NoPersist, from
// the repository.
func (c *PersistedCache) Remove(key string, opts realtime.CacheRemoveOptions) error {
	if err := c.memory.Remove(key, opts); err != nil {
		return err
	}
	if opts.NoPersist {
		return nil
	}
	return c.repo.Delete(context.Background(), key)
}

// Keys returns the union of memory and persisted keys.
func (c *PersistedCache) Keys() []string {
	keys := c.memory.Keys()
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		seen[key] = true
	}

	persisted, err := c.repo.Keys(context.Background())
	if err != nil {
		c.logger.Warnf("failed to list persisted cache keys: %v", err)
		return keys
	}
	for _, key := range persisted {
		if !seen[key] {
			keys = append(keys, key)
		}
	}
	return keys
}

// Clear removes all entries from both tiers.
func (c *PersistedCache) Clear() error {
	if err := c.memory.Clear(); err != nil {
		return err
	}
	return c.repo.Clear(context.Background())
}
