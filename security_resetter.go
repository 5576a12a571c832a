package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/realtime/model"
)

// resetterComponent tags system errors raised by the permission resetter.
const resetterComponent = "SessionPermissionResetter"

// SessionPermissionResetter determines which live sessions a
// security-directory change affects and recomputes or revokes their cached
// permission state.
//
// The result of a reset is an ordered list of affected sessions in
// session-scan order, for downstream subscription invalidation. Sessions
// whose authorization state is untouched by the change are excluded.
//
// Thread safety: safe for concurrent use, but callers wanting cross-event
// ordering must serialize through a DataChangeQueue.
type SessionPermissionResetter struct {
	sessions SessionDirectory
	users    UserStore
	revoked  Cache
	errors   ErrorReporter
	logger   Logger
}

// ResetterOption configures a SessionPermissionResetter.
type ResetterOption func(*SessionPermissionResetter) error

// NewSessionPermissionResetter creates a resetter with the provided options.
//
// Required options:
//   - WithResetterSessions: live session directory
//   - WithResetterUsers: user store for permission recomputation
//   - WithResetterRevokedTokens: revoked-token cache
//   - WithResetterLogger: logger instance
func NewSessionPermissionResetter(opts ...ResetterOption) (*SessionPermissionResetter, error) {
	r := &SessionPermissionResetter{}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply resetter option", err)
		}
	}

	if r.sessions == nil {
		return nil, NewError(ErrCodeConfiguration, "SessionDirectory is required (use WithResetterSessions)")
	}
	if r.users == nil {
		return nil, NewError(ErrCodeConfiguration, "UserStore is required (use WithResetterUsers)")
	}
	if r.revoked == nil {
		return nil, NewError(ErrCodeConfiguration, "revoked-token Cache is required (use WithResetterRevokedTokens)")
	}
	if r.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithResetterLogger)")
	}
	if r.errors == nil {
		r.errors = NewLoggingErrorReporter(r.logger)
	}

	return r, nil
}

// WithResetterSessions sets the live session directory.
func WithResetterSessions(sessions SessionDirectory) ResetterOption {
	return func(r *SessionPermissionResetter) error {
		if sessions == nil {
			return fmt.Errorf("session directory cannot be nil")
		}
		r.sessions = sessions
		return nil
	}
}

// WithResetterUsers sets the user store.
func WithResetterUsers(users UserStore) ResetterOption {
	return func(r *SessionPermissionResetter) error {
		if users == nil {
			return fmt.Errorf("user store cannot be nil")
		}
		r.users = users
		return nil
	}
}

// WithResetterRevokedTokens sets the revoked-token cache.
func WithResetterRevokedTokens(cache Cache) ResetterOption {
	return func(r *SessionPermissionResetter) error {
		if cache == nil {
			return fmt.Errorf("revoked-token cache cannot be nil")
		}
		r.revoked = cache
		return nil
	}
}

// WithResetterErrorReporter sets the system error sink.
func WithResetterErrorReporter(reporter ErrorReporter) ResetterOption {
	return func(r *SessionPermissionResetter) error {
		if reporter == nil {
			return fmt.Errorf("error reporter cannot be nil")
		}
		r.errors = reporter
		return nil
	}
}

// WithResetterLogger sets the logger instance.
func WithResetterLogger(logger Logger) ResetterOption {
	return func(r *SessionPermissionResetter) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// ResetSessionPermissions applies one security-directory change to the live
// session population and returns the affected sessions in scan order.
//
// Token events mutate the revoked-token cache (and disconnect the revoked
// session when the event carries one); a failed cache mutation fails the
// whole operation since it is the event's primary effect. Session-scan
// events are best-effort per session: an individual user lookup failure
// excludes that session without aborting the scan. An unrecognized kind is
// a logged no-op.
func (r *SessionPermissionResetter) ResetSessionPermissions(ctx context.Context, change model.SecurityChange) ([]model.AffectedSession, error) {
	switch change.Kind {
	case model.ChangeTokenRevoked, model.ChangeTokenRestored:
		return r.resetToken(ctx, change)

	case model.ChangeLookupTableChanged,
		model.ChangeLookupPermissionChanged,
		model.ChangeUpsertGroup,
		model.ChangeUnlinkGroup,
		model.ChangeDeleteGroup,
		model.ChangeUpsertUser,
		model.ChangeDeleteUser,
		model.ChangePermissionUpserted,
		model.ChangePermissionRemoved:
		return r.scanSessions(ctx, change)

	default:
		// closed kind set: anything else is a no-op, loudly
		r.logger.Warnf("ignoring unrecognized security directory event %q", change.Kind)
		return nil, nil
	}
}

// resetToken handles token revocation and restoration.
func (r *SessionPermissionResetter) resetToken(ctx context.Context, change model.SecurityChange) ([]model.AffectedSession, error) {
	if change.Kind == model.ChangeTokenRevoked && change.Session != nil {
		session := change.Session
		if err := r.sessions.DisconnectSessions(ctx, session.ID, string(change.Kind)); err != nil {
			r.errors.HandleSystem(err, resetterComponent, SeverityLow)
		}
		return []model.AffectedSession{disconnectedSession(session)}, nil
	}

	// the cache mutation is the event's primary effect: its failure fails
	// the whole reset
	if change.Kind == model.ChangeTokenRevoked {
		entry := model.RevokedToken{
			Reason:    change.Reason,
			Timestamp: time.Now(),
			TTL:       change.TTL,
		}
		if err := r.revoked.Set(change.Token, entry, CacheSetOptions{TTL: change.TTL, NoPersist: true}); err != nil {
			return nil, NewErrorWithCause(ErrCodeCache, "failed to store revoked token", err)
		}
		return []model.AffectedSession{}, nil
	}

	if err := r.revoked.Remove(change.Token, CacheRemoveOptions{NoPersist: true}); err != nil {
		return nil, NewErrorWithCause(ErrCodeCache, "failed to remove restored token", err)
	}
	return []model.AffectedSession{}, nil
}

// scanSessions walks every live session and collects those the change
// affects, preserving scan order.
func (r *SessionPermissionResetter) scanSessions(ctx context.Context, change model.SecurityChange) ([]model.AffectedSession, error) {
	affected := []model.AffectedSession{}

	err := r.sessions.Each(ctx, func(session *model.Session) error {
		entry, ok := r.evaluate(ctx, change, session)
		if ok {
			affected = append(affected, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// evaluate decides whether one session is affected by the change and builds
// its affected-session record.
func (r *SessionPermissionResetter) evaluate(ctx context.Context, change model.SecurityChange, session *model.Session) (model.AffectedSession, bool) {
	user := session.User

	switch change.Kind {
	case model.ChangeLookupTableChanged:
		if !groupsIntersect(user, change.Groups) {
			return model.AffectedSession{}, false
		}
		return affectedSession(session, session.PermissionSetKey(), true), true

	case model.ChangeLookupPermissionChanged:
		if !user.HasGroup(change.GroupName) {
			return model.AffectedSession{}, false
		}
		return affectedSession(session, session.PermissionSetKey(), true), true

	case model.ChangeUpsertGroup:
		if !user.HasGroup(change.GroupName) {
			return model.AffectedSession{}, false
		}
		// only a change to the group's permission set forces downstream
		// subscription recomputation
		refresh := len(change.Permissions) > 0
		return affectedSession(session, session.PermissionSetKey(), refresh), true

	case model.ChangeUnlinkGroup, model.ChangeDeleteGroup:
		if !user.HasGroup(change.GroupName) {
			return model.AffectedSession{}, false
		}
		r.disconnect(ctx, session, change.Kind)
		return disconnectedSession(session), true

	case model.ChangeDeleteUser:
		if session.Username() != change.DeletedUsername() {
			return model.AffectedSession{}, false
		}
		r.disconnect(ctx, session, change.Kind)
		return disconnectedSession(session), true

	case model.ChangeUpsertUser, model.ChangePermissionUpserted, model.ChangePermissionRemoved:
		if user == nil || user.Username != change.Username {
			return model.AffectedSession{}, false
		}
		fresh, err := r.users.GetUser(ctx, change.Username)
		if err != nil {
			// best-effort: the session is excluded, not failed
			r.logger.Debugf("excluding session %s from reset, user lookup failed: %v", session.ID, err)
			return model.AffectedSession{}, false
		}
		previousKey := session.PermissionSetKey()
		freshKey := fresh.PermissionSetKey
		if freshKey == "" {
			freshKey = model.ComputePermissionSetKey(fresh.GroupNames())
		}
		if freshKey == previousKey {
			// no permission-key change, no revocation: not affected
			return model.AffectedSession{}, false
		}
		entry := affectedSession(session, freshKey, true)
		entry.User = fresh
		return entry, true

	default:
		return model.AffectedSession{}, false
	}
}

// disconnect forcibly disconnects a session, surfacing failures without
// dropping the session from the affected list.
func (r *SessionPermissionResetter) disconnect(ctx context.Context, session *model.Session, reason model.ChangeKind) {
	if err := r.sessions.DisconnectSessions(ctx, session.ID, string(reason)); err != nil {
		r.errors.HandleSystem(err, resetterComponent, SeverityLow)
	}
}

// affectedSession builds the record for a session that stays connected,
// carrying both the previous and the freshly computed permission set key.
func affectedSession(session *model.Session, permissionSetKey string, refresh bool) model.AffectedSession {
	return model.AffectedSession{
		ID:                        session.ID,
		Username:                  session.Username(),
		IsToken:                   session.IsToken,
		PreviousPermissionSetKey:  session.PermissionSetKey(),
		PermissionSetKey:          permissionSetKey,
		User:                      session.User,
		Protocol:                  session.Protocol,
		CauseSubscriptionsRefresh: refresh,
	}
}

// disconnectedSession builds the record for a session removed outright; a
// disconnect always invalidates downstream subscription state.
func disconnectedSession(session *model.Session) model.AffectedSession {
	entry := affectedSession(session, "", true)
	return entry
}

// groupsIntersect reports whether the user is linked to any of the named
// groups.
func groupsIntersect(user *model.User, groups []string) bool {
	for _, name := range groups {
		if user.HasGroup(name) {
			return true
		}
	}
	return false
}
