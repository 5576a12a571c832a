package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/realtime"
	"github.com/coregx/realtime/model"
)

// cacheRow is the persisted shape of one cache entry.
type cacheRow struct {
	ID        int64     `db:"id"`
	CacheKey  string    `db:"cache_key"`
	Value     []byte    `db:"value"`
	TTLMillis int64     `db:"ttl_ms"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r cacheRow) toEntry() model.CacheEntry {
	return model.CacheEntry{
		Key:       r.CacheKey,
		Value:     r.Value,
		TTL:       time.Duration(r.TTLMillis) * time.Millisecond,
		UpdatedAt: r.UpdatedAt,
	}
}

// CacheRepository persists cache entries using Relica.
type CacheRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewCacheRepository creates a CacheRepository with the default table prefix.
func NewCacheRepository(sqlDB *sql.DB, driverName string) *CacheRepository {
	return &CacheRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "realtime_"}
}

// NewCacheRepositoryWithPrefix creates a CacheRepository with a custom table prefix.
func NewCacheRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *CacheRepository {
	return &CacheRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *CacheRepository) tableName() string {
	return r.tablePrefix + "cache"
}

// Load retrieves one cache entry by key.
func (r *CacheRepository) Load(ctx context.Context, key string) (model.CacheEntry, error) {
	var row cacheRow

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("cache_key = ?", key).
		WithContext(ctx).
		One(&row)

	if errors.Is(err, sql.ErrNoRows) {
		return model.CacheEntry{}, realtime.ErrNoData
	}
	if err != nil {
		return model.CacheEntry{}, realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to load cache entry", err)
	}

	return row.toEntry(), nil
}

// Save creates or replaces the cache entry stored under its key.
func (r *CacheRepository) Save(ctx context.Context, entry model.CacheEntry) error {
	row := cacheRow{
		CacheKey:  entry.Key,
		Value:     entry.Value,
		TTLMillis: entry.TTL.Milliseconds(),
		UpdatedAt: entry.UpdatedAt,
	}

	var existing cacheRow
	err := r.db.WithContext(ctx).Select("id").
		From(r.tableName()).
		Where("cache_key = ?", entry.Key).
		WithContext(ctx).
		One(&existing)

	if err == nil {
		row.ID = existing.ID
		if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Update(); err != nil {
			return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to update cache entry", err)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to look up cache entry", err)
	}

	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Insert(); err != nil {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to insert cache entry", err)
	}
	return nil
}

// Delete removes the cache entry under key. Deleting an absent key is a no-op.
func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	var row cacheRow
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("cache_key = ?", key).
		WithContext(ctx).
		One(&row)

	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to look up cache entry", err)
	}

	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Delete(); err != nil {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to delete cache entry", err)
	}
	return nil
}

// Keys returns every persisted cache key.
func (r *CacheRepository) Keys(ctx context.Context) ([]string, error) {
	var rows []cacheRow

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to list cache keys", err)
	}

	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.CacheKey)
	}
	return keys, nil
}

// Clear removes every persisted cache entry.
func (r *CacheRepository) Clear(ctx context.Context) error {
	var rows []cacheRow

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to list cache entries", err)
	}

	for i := range rows {
		if err := r.db.WithContext(ctx).Model(&rows[i]).Table(r.tableName()).Delete(); err != nil {
			return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to delete cache entry", err)
		}
	}
	return nil
}
