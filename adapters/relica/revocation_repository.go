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

// revocationRow is the persisted shape of one token revocation.
type revocationRow struct {
	ID        int64     `db:"id"`
	Token     string    `db:"token"`
	Reason    string    `db:"reason"`
	RevokedAt time.Time `db:"revoked_at"`
	TTLMillis int64     `db:"ttl_ms"`
}

// RevocationRepository persists token revocations using Relica. It
// implements realtime.RevocationStore, so revocations survive restarts.
type RevocationRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewRevocationRepository creates a RevocationRepository with the default table prefix.
func NewRevocationRepository(sqlDB *sql.DB, driverName string) *RevocationRepository {
	return &RevocationRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "realtime_"}
}

// NewRevocationRepositoryWithPrefix creates a RevocationRepository with a custom table prefix.
func NewRevocationRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *RevocationRepository {
	return &RevocationRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *RevocationRepository) tableName() string {
	return r.tablePrefix + "revocation"
}

// SaveRevocation creates or replaces the revocation entry for a token.
func (r *RevocationRepository) SaveRevocation(ctx context.Context, token string, entry model.RevokedToken) error {
	row := revocationRow{
		Token:     token,
		Reason:    entry.Reason,
		RevokedAt: entry.Timestamp,
		TTLMillis: entry.TTL.Milliseconds(),
	}

	var existing revocationRow
	err := r.db.WithContext(ctx).Select("id").
		From(r.tableName()).
		Where("token = ?", token).
		WithContext(ctx).
		One(&existing)

	if err == nil {
		row.ID = existing.ID
		if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Update(); err != nil {
			return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to update revocation", err)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to look up revocation", err)
	}

	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Insert(); err != nil {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to insert revocation", err)
	}
	return nil
}

// DeleteRevocation removes a persisted revocation. Deleting an absent token
// is a no-op.
func (r *RevocationRepository) DeleteRevocation(ctx context.Context, token string) error {
	var row revocationRow
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("token = ?", token).
		WithContext(ctx).
		One(&row)

	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to look up revocation", err)
	}

	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Delete(); err != nil {
		return realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to delete revocation", err)
	}
	return nil
}

// LoadRevocations returns all unexpired persisted revocations keyed by
// token, pruning expired rows as it goes.
func (r *RevocationRepository) LoadRevocations(ctx context.Context) (map[string]model.RevokedToken, error) {
	var rows []revocationRow

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to load revocations", err)
	}

	now := time.Now()
	entries := make(map[string]model.RevokedToken, len(rows))
	for i := range rows {
		row := rows[i]
		ttl := time.Duration(row.TTLMillis) * time.Millisecond
		if ttl > 0 && now.After(row.RevokedAt.Add(ttl)) {
			// expired while persisted
			if err := r.db.WithContext(ctx).Model(&rows[i]).Table(r.tableName()).Delete(); err != nil {
				return nil, realtime.NewErrorWithCause(realtime.ErrCodeDatabase, "failed to prune expired revocation", err)
			}
			continue
		}
		entries[row.Token] = model.RevokedToken{
			Reason:    row.Reason,
			Timestamp: row.RevokedAt,
			TTL:       ttl,
		}
	}
	return entries, nil
}
