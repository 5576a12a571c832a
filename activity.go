package realtime

import (
	"fmt"
	"time"

	"github.com/coregx/realtime/model"
)

// DefaultSessionActivityTTL is the minimum and default retention for
// session activity records.
const DefaultSessionActivityTTL = 60 * time.Second

// SessionActivityLog keeps a rolling record of the most recent action seen
// on each session. Entries expire after the configured TTL, so the log only
// ever describes recently active sessions.
type SessionActivityLog struct {
	cache  Cache
	ttl    time.Duration
	logger Logger
}

// NewSessionActivityLog creates an activity log backed by the given cache.
// A ttl below DefaultSessionActivityTTL is raised to the default.
func NewSessionActivityLog(cache Cache, ttl time.Duration, logger Logger) (*SessionActivityLog, error) {
	if cache == nil {
		return nil, NewError(ErrCodeConfiguration, "activity cache is required")
	}
	if logger == nil {
		logger = &NoopLogger{}
	}
	if ttl < DefaultSessionActivityTTL {
		ttl = DefaultSessionActivityTTL
	}
	return &SessionActivityLog{
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// TTL returns the effective retention for activity records.
func (l *SessionActivityLog) TTL() time.Duration {
	return l.ttl
}

// Update records the given action as the session's most recent activity.
func (l *SessionActivityLog) Update(session *model.Session, path, action string) error {
	if session == nil {
		return NewError(ErrCodeValidation, "session is required")
	}

	entry := model.SessionActivity{
		SessionID:    session.ID,
		Username:     session.Username(),
		Path:         path,
		Action:       action,
		LastActivity: time.Now(),
	}
	if err := l.cache.Set(session.ID, entry, CacheSetOptions{TTL: l.ttl}); err != nil {
		return NewErrorWithCause(ErrCodeCache, "failed to record session activity", err)
	}
	return nil
}

// Get returns the activity record for one session, or ErrNoData when the
// session has no unexpired activity.
func (l *SessionActivityLog) Get(sessionID string) (*model.SessionActivity, error) {
	value, found, err := l.cache.Get(sessionID)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeCache, "failed to read session activity", err)
	}
	if !found {
		return nil, ErrNoData
	}
	entry, ok := value.(model.SessionActivity)
	if !ok {
		return nil, NewError(ErrCodeCache, fmt.Sprintf("unexpected activity entry type %T", value))
	}
	return &entry, nil
}

// List returns a snapshot of all unexpired activity records.
func (l *SessionActivityLog) List() ([]model.SessionActivity, error) {
	keys := l.cache.Keys()
	entries := make([]model.SessionActivity, 0, len(keys))
	for _, key := range keys {
		entry, err := l.Get(key)
		if err != nil {
			if IsNoData(err) {
				// expired between the key snapshot and the read
				continue
			}
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Clear drops all activity records.
func (l *SessionActivityLog) Clear() error {
	if err := l.cache.Clear(); err != nil {
		return NewErrorWithCause(ErrCodeCache, "failed to clear session activity", err)
	}
	return nil
}
