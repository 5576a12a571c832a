package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coregx/realtime/model"
)

// DefaultRevocationReason is stored when a revocation carries no explicit
// reason.
const DefaultRevocationReason = "token revoked"

// RevokedTokenReason is the rejection reason returned for a revoked token.
const RevokedTokenReason = "token has been revoked"

// RevocationStore persists revocation entries so they survive restarts.
type RevocationStore interface {
	// SaveRevocation persists one revocation entry keyed by token.
	SaveRevocation(ctx context.Context, token string, entry model.RevokedToken) error

	// DeleteRevocation removes a persisted revocation entry.
	DeleteRevocation(ctx context.Context, token string) error

	// LoadRevocations returns all persisted revocation entries keyed by token.
	LoadRevocations(ctx context.Context) (map[string]model.RevokedToken, error)
}

// RevocationPolicy bounds how long revocation entries are retained. A
// revocation only needs to outlive the token it blocks, so the effective
// retention is the shortest bounded lifetime among the session's token TTL
// and the two policy tiers. Zero or negative tiers are unbounded.
type RevocationPolicy struct {
	// StatefulTTL bounds tokens issued to stateful (connected) sessions.
	StatefulTTL time.Duration `yaml:"stateful_ttl"`

	// StatelessTTL bounds tokens issued to stateless (per-request) sessions.
	StatelessTTL time.Duration `yaml:"stateless_ttl"`
}

// TokenRevocation tracks revoked session tokens in a cache, optionally
// persists them, and propagates revocations through a DataChangeQueue so
// affected sessions are disconnected and cluster peers stay coherent.
type TokenRevocation struct {
	cache  Cache
	store  RevocationStore
	queue  *DataChangeQueue
	logger Logger
	policy RevocationPolicy

	mu     sync.Mutex
	active bool
}

// RevocationOption configures a TokenRevocation.
type RevocationOption func(*TokenRevocation) error

// NewTokenRevocation creates a token revocation service with the provided
// options.
//
// Required options:
//   - WithRevocationCache: revoked-token cache
//   - WithRevocationLogger: logger instance
func NewTokenRevocation(opts ...RevocationOption) (*TokenRevocation, error) {
	t := &TokenRevocation{}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply revocation option", err)
		}
	}

	if t.cache == nil {
		return nil, NewError(ErrCodeConfiguration, "revoked-token Cache is required (use WithRevocationCache)")
	}
	if t.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithRevocationLogger)")
	}

	return t, nil
}

// WithRevocationCache sets the revoked-token cache.
func WithRevocationCache(cache Cache) RevocationOption {
	return func(t *TokenRevocation) error {
		if cache == nil {
			return fmt.Errorf("cache cannot be nil")
		}
		t.cache = cache
		return nil
	}
}

// WithRevocationStore sets the persisted backing store. Without one,
// revocations live only as long as the cache.
func WithRevocationStore(store RevocationStore) RevocationOption {
	return func(t *TokenRevocation) error {
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		t.store = store
		return nil
	}
}

// WithRevocationQueue sets the change queue revocations are propagated
// through. Without one, revocations are cache-local.
func WithRevocationQueue(queue *DataChangeQueue) RevocationOption {
	return func(t *TokenRevocation) error {
		if queue == nil {
			return fmt.Errorf("queue cannot be nil")
		}
		t.queue = queue
		return nil
	}
}

// WithRevocationPolicy sets the retention policy tiers.
func WithRevocationPolicy(policy RevocationPolicy) RevocationOption {
	return func(t *TokenRevocation) error {
		t.policy = policy
		return nil
	}
}

// WithRevocationLogger sets the logger instance.
func WithRevocationLogger(logger Logger) RevocationOption {
	return func(t *TokenRevocation) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		t.logger = logger
		return nil
	}
}

// Activate warms the cache from the persisted store and marks the service
// active. Calling Activate on an active service is a no-op.
func (t *TokenRevocation) Activate(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active {
		return nil
	}

	if t.store != nil {
		entries, err := t.store.LoadRevocations(ctx)
		if err != nil {
			return NewErrorWithCause(ErrCodeCache, "failed to load persisted revocations", err)
		}
		for token, entry := range entries {
			if err := t.cache.Set(token, entry, CacheSetOptions{TTL: entry.TTL, NoPersist: true}); err != nil {
				return NewErrorWithCause(ErrCodeCache, "failed to warm revocation cache", err)
			}
		}
		t.logger.Debugf("loaded %d persisted token revocations", len(entries))
	}

	t.active = true
	return nil
}

// Deactivate clears the cache and marks the service inactive. Persisted
// entries are untouched.
func (t *TokenRevocation) Deactivate(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return nil
	}
	if err := t.cache.Clear(); err != nil {
		return NewErrorWithCause(ErrCodeCache, "failed to clear revocation cache", err)
	}
	t.active = false
	return nil
}

// RevokeToken revokes the session's token. The revocation entry is retained
// for the shortest bounded lifetime among the session's token TTL and the
// policy tiers; when every tier is unbounded the entry is stored forever
// and a warning is logged.
//
// When a change queue is configured, the revocation is propagated through
// it, which disconnects the revoked session and replicates the event.
func (t *TokenRevocation) RevokeToken(ctx context.Context, session *model.Session, reason string) error {
	if session == nil {
		return NewError(ErrCodeValidation, "session is required to revoke a token")
	}
	if session.Token == "" {
		return NewError(ErrCodeValidation, "session carries no token to revoke")
	}
	if reason == "" {
		reason = DefaultRevocationReason
	}

	ttl := t.effectiveTTL(session.TokenTTL)
	if ttl == 0 {
		t.logger.Warnf("revoking token for session %s with no bounded ttl, revocation entry will never expire", session.ID)
	}

	entry := model.RevokedToken{
		Reason:    reason,
		Timestamp: time.Now(),
		TTL:       ttl,
	}
	// with a dedicated store the cache is a read tier only; without one the
	// cache's own persistence (if any) keeps the entry
	if err := t.cache.Set(session.Token, entry, CacheSetOptions{TTL: ttl, NoPersist: t.store != nil}); err != nil {
		return NewErrorWithCause(ErrCodeCache, "failed to store revoked token", err)
	}
	if t.store != nil {
		if err := t.store.SaveRevocation(ctx, session.Token, entry); err != nil {
			return NewErrorWithCause(ErrCodeCache, "failed to persist revoked token", err)
		}
	}

	if t.queue != nil {
		_, err := t.queue.DataChanged(ctx, model.SecurityChange{
			Kind:    model.ChangeTokenRevoked,
			Token:   session.Token,
			Session: session,
			Reason:  reason,
			TTL:     ttl,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RestoreToken lifts a revocation, re-admitting the token.
func (t *TokenRevocation) RestoreToken(ctx context.Context, token string) error {
	if token == "" {
		return NewError(ErrCodeValidation, "token is required")
	}

	if err := t.cache.Remove(token, CacheRemoveOptions{NoPersist: t.store != nil}); err != nil {
		return NewErrorWithCause(ErrCodeCache, "failed to remove revoked token", err)
	}
	if t.store != nil {
		if err := t.store.DeleteRevocation(ctx, token); err != nil {
			return NewErrorWithCause(ErrCodeCache, "failed to delete persisted revocation", err)
		}
	}

	if t.queue != nil {
		_, err := t.queue.DataChanged(ctx, model.SecurityChange{
			Kind:  model.ChangeTokenRestored,
			Token: token,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// CheckRevocation reports whether the token is admissible. A revoked token
// yields ok=false together with the rejection reason.
func (t *TokenRevocation) CheckRevocation(ctx context.Context, token string) (bool, string, error) {
	_, found, err := t.cache.Get(token)
	if err != nil {
		return false, "", NewErrorWithCause(ErrCodeCache, "failed to look up token revocation", err)
	}
	if found {
		return false, RevokedTokenReason, nil
	}
	return true, "", nil
}

// effectiveTTL resolves the retention for a revocation entry: the shortest
// bounded duration among the token's own TTL and the policy tiers, or zero
// when every tier is unbounded.
func (t *TokenRevocation) effectiveTTL(tokenTTL time.Duration) time.Duration {
	var effective time.Duration
	for _, candidate := range []time.Duration{tokenTTL, t.policy.StatefulTTL, t.policy.StatelessTTL} {
		if candidate <= 0 {
			continue
		}
		if effective == 0 || candidate < effective {
			effective = candidate
		}
	}
	return effective
}
