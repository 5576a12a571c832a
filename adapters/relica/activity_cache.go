package relica

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/realtime"
	"github.com/coregx/realtime/model"
)

// ActivityStore is the persistence surface an ActivityCache writes through
// to. *ActivityRepository satisfies it.
type ActivityStore interface {
	Save(ctx context.Context, activity model.SessionActivity) error
	Find(ctx context.Context, sessionID string) (model.SessionActivity, error)
	List(ctx context.Context) ([]model.SessionActivity, error)
	Delete(ctx context.Context, sessionID string) error
	Clear(ctx context.Context) error
}

// ActivityCache is a realtime.Cache for session activity records, layered
// over an in-memory cache and an ActivityStore. Values are typed
// model.SessionActivity rows rather than opaque JSON, so staleness is judged
// from the row's own LastActivity against the configured retention.
type ActivityCache struct {
	memory realtime.Cache
	store  ActivityStore
	ttl    time.Duration
	logger realtime.Logger
	now    func() time.Time
}

// NewActivityCache layers memory over store. A ttl below
// realtime.DefaultSessionActivityTTL is raised to the default, matching the
// activity log in front of it.
func NewActivityCache(memory realtime.Cache, store ActivityStore, ttl time.Duration, logger realtime.Logger) (*ActivityCache, error) {
	if memory == nil {
		return nil, realtime.NewError(realtime.ErrCodeConfiguration, "memory cache is required")
	}
	if store == nil {
		return nil, realtime.NewError(realtime.ErrCodeConfiguration, "activity store is required")
	}
	if logger == nil {
		logger = &realtime.NoopLogger{}
	}
	if ttl < realtime.DefaultSessionActivityTTL {
		ttl = realtime.DefaultSessionActivityTTL
	}
	return &ActivityCache{
		memory: memory,
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Get retrieves the activity record under key, falling back to the store on
// a memory miss. A store hit repopulates the memory tier with the remaining
// retention; a stale row counts as a miss.
func (c *ActivityCache) Get(key string) (any, bool, error) {
	value, found, err := c.memory.Get(key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return value, true, nil
	}

	activity, err := c.store.Find(context.Background(), key)
	if realtime.IsNoData(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	expires := activity.LastActivity.Add(c.ttl)
	if c.now().After(expires) {
		if err := c.store.Delete(context.Background(), key); err != nil {
			c.logger.Warnf("failed to prune stale activity row %q: %v", key, err)
		}
		return nil, false, nil
	}

	remaining := realtime.CacheSetOptions{TTL: expires.Sub(c.now()), NoPersist: true}
	if err := c.memory.Set(key, activity, remaining); err != nil {
		return nil, false, err
	}
	return activity, true, nil
}

// Set stores the record in memory and, unless opts.NoPersist, in the store.
// The value must be a model.SessionActivity.
func (c *ActivityCache) Set(key string, value any, opts realtime.CacheSetOptions) error {
	if err := c.memory.Set(key, value, opts); err != nil {
		return err
	}
	if opts.NoPersist {
		return nil
	}

	activity, ok := value.(model.SessionActivity)
	if !ok {
		return realtime.NewError(realtime.ErrCodeCache, fmt.Sprintf("unexpected activity value type %T", value))
	}
	return c.store.Save(context.Background(), activity)
}

// Remove deletes the record from memory and, unless opts.NoPersist, from
// the store.
func (c *ActivityCache) Remove(key string, opts realtime.CacheRemoveOptions) error {
	if err := c.memory.Remove(key, opts); err != nil {
		return err
	}
	if opts.NoPersist {
		return nil
	}
	return c.store.Delete(context.Background(), key)
}

// Keys returns the union of memory keys and unexpired persisted sessions.
func (c *ActivityCache) Keys() []string {
	keys := c.memory.Keys()
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		seen[key] = true
	}

	persisted, err := c.store.List(context.Background())
	if err != nil {
		c.logger.Warnf("failed to list persisted activity: %v", err)
		return keys
	}
	for _, activity := range persisted {
		if seen[activity.SessionID] {
			continue
		}
		if c.now().After(activity.LastActivity.Add(c.ttl)) {
			continue
		}
		keys = append(keys, activity.SessionID)
	}
	return keys
}

// Clear removes all records from both tiers.
func (c *ActivityCache) Clear() error {
	if err := c.memory.Clear(); err != nil {
		return err
	}
	return c.store.Clear(context.Background())
}
