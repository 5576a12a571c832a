package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/realtime/model"
)

func groupedUser(username string, groups ...string) *model.User {
	user := &model.User{Username: username, Groups: make(map[string]model.GroupLink)}
	for _, name := range groups {
		user.Groups[name] = model.GroupLink{}
	}
	user.PermissionSetKey = model.ComputePermissionSetKey(user.GroupNames())
	return user
}

func groupedSession(id string, user *model.User) *model.Session {
	return &model.Session{ID: id, User: user}
}

func newTestResetter(t *testing.T, sessions SessionDirectory, users UserStore, revoked Cache, extra ...ResetterOption) *SessionPermissionResetter {
	t.Helper()
	base := []ResetterOption{
		WithResetterSessions(sessions),
		WithResetterUsers(users),
		WithResetterRevokedTokens(revoked),
		WithResetterLogger(&NoopLogger{}),
	}
	resetter, err := NewSessionPermissionResetter(append(base, extra...)...)
	require.NoError(t, err)
	return resetter
}

func TestNewSessionPermissionResetter_RequiredOptions(t *testing.T) {
	sessions := &stubSessions{}
	users := &stubUsers{}
	revoked := newStubCache()

	tests := []struct {
		name string
		opts []ResetterOption
	}{
		{name: "missing sessions", opts: []ResetterOption{
			WithResetterUsers(users), WithResetterRevokedTokens(revoked), WithResetterLogger(&NoopLogger{}),
		}},
		{name: "missing users", opts: []ResetterOption{
			WithResetterSessions(sessions), WithResetterRevokedTokens(revoked), WithResetterLogger(&NoopLogger{}),
		}},
		{name: "missing revoked cache", opts: []ResetterOption{
			WithResetterSessions(sessions), WithResetterUsers(users), WithResetterLogger(&NoopLogger{}),
		}},
		{name: "missing logger", opts: []ResetterOption{
			WithResetterSessions(sessions), WithResetterUsers(users), WithResetterRevokedTokens(revoked),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSessionPermissionResetter(tt.opts...)
			require.Error(t, err)

			var engineErr *Error
			require.True(t, errors.As(err, &engineErr))
			assert.Equal(t, ErrCodeConfiguration, engineErr.Code)
		})
	}
}

func TestResetter_TokenRevokedWithSessionDisconnects(t *testing.T) {
	sessions := &stubSessions{}
	revoked := newStubCache()
	resetter := newTestResetter(t, sessions, &stubUsers{}, revoked)

	victim := groupedSession("s1", groupedUser("alice", "readers"))
	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:    model.ChangeTokenRevoked,
		Session: victim,
		Token:   "tok-1",
	})
	require.NoError(t, err)

	require.Len(t, affected, 1)
	assert.Equal(t, "s1", affected[0].ID)
	assert.Equal(t, "alice", affected[0].Username)
	assert.Empty(t, affected[0].PermissionSetKey)
	assert.True(t, affected[0].CauseSubscriptionsRefresh)
	assert.Equal(t, []string{"s1:token-revoked"}, sessions.disconnects())

	// session-scoped revocations do not touch the cache here
	_, ok := revoked.entry("tok-1")
	assert.False(t, ok)
}

func TestResetter_TokenRevokedDisconnectFailureIsReported(t *testing.T) {
	sessions := &stubSessions{disconnectErr: errors.New("directory down")}
	reporter := &captureReporter{}
	resetter := newTestResetter(t, sessions, &stubUsers{}, newStubCache(),
		WithResetterErrorReporter(reporter))

	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:    model.ChangeTokenRevoked,
		Session: groupedSession("s1", nil),
	})
	require.NoError(t, err)
	require.Len(t, affected, 1)

	reports := reporter.all()
	require.Len(t, reports, 1)
	assert.Equal(t, "SessionPermissionResetter", reports[0].component)
	assert.Equal(t, SeverityLow, reports[0].severity)
}

func TestResetter_TokenRevokedWithoutSessionCachesToken(t *testing.T) {
	revoked := newStubCache()
	resetter := newTestResetter(t, &stubSessions{}, &stubUsers{}, revoked)

	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:   model.ChangeTokenRevoked,
		Token:  "tok-1",
		Reason: "compromised",
		TTL:    time.Minute,
	})
	require.NoError(t, err)
	assert.Empty(t, affected)

	entry, ok := revoked.entry("tok-1")
	require.True(t, ok)
	stored, ok := entry.value.(model.RevokedToken)
	require.True(t, ok)
	assert.Equal(t, "compromised", stored.Reason)
	assert.Equal(t, time.Minute, stored.TTL)
	assert.False(t, stored.Timestamp.IsZero())

	// replicated revocations stay local to this member's cache
	assert.True(t, entry.opts.NoPersist)
	assert.Equal(t, time.Minute, entry.opts.TTL)
}

func TestResetter_TokenRevokedCacheFailureFailsReset(t *testing.T) {
	revoked := newStubCache()
	revoked.setErr = errors.New("cache broken")
	resetter := newTestResetter(t, &stubSessions{}, &stubUsers{}, revoked)

	_, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:  model.ChangeTokenRevoked,
		Token: "tok-1",
	})
	require.Error(t, err)

	var engineErr *Error
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, ErrCodeCache, engineErr.Code)
}

func TestResetter_TokenRestoredRemovesCachedToken(t *testing.T) {
	revoked := newStubCache()
	require.NoError(t, revoked.Set("tok-1", model.RevokedToken{}, CacheSetOptions{}))
	resetter := newTestResetter(t, &stubSessions{}, &stubUsers{}, revoked)

	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:  model.ChangeTokenRestored,
		Token: "tok-1",
	})
	require.NoError(t, err)
	assert.Empty(t, affected)

	_, ok := revoked.entry("tok-1")
	assert.False(t, ok)
	assert.True(t, revoked.removes["tok-1"].NoPersist)
}

func TestResetter_LookupTableChanged(t *testing.T) {
	alice := groupedSession("s1", groupedUser("alice", "readers", "writers"))
	bob := groupedSession("s2", groupedUser("bob", "auditors"))
	sessions := &stubSessions{sessions: []*model.Session{alice, bob}}
	resetter := newTestResetter(t, sessions, &stubUsers{}, newStubCache())

	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:   model.ChangeLookupTableChanged,
		Groups: []string{"writers", "operators"},
	})
	require.NoError(t, err)

	require.Len(t, affected, 1)
	assert.Equal(t, "s1", affected[0].ID)
	assert.True(t, affected[0].CauseSubscriptionsRefresh)
	assert.Equal(t, alice.PermissionSetKey(), affected[0].PermissionSetKey)
}

func TestResetter_LookupPermissionChanged(t *testing.T) {
	alice := groupedSession("s1", groupedUser("alice", "readers"))
	bob := groupedSession("s2", groupedUser("bob", "auditors"))
	sessions := &stubSessions{sessions: []*model.Session{alice, bob}}
	resetter := newTestResetter(t, sessions, &stubUsers{}, newStubCache())

	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:      model.ChangeLookupPermissionChanged,
		GroupName: "readers",
	})
	require.NoError(t, err)

	require.Len(t, affected, 1)
	assert.Equal(t, "s1", affected[0].ID)
	assert.True(t, affected[0].CauseSubscriptionsRefresh)
}

func TestResetter_UpsertGroupRefreshFollowsPermissions(t *testing.T) {
	alice := groupedSession("s1", groupedUser("alice", "readers"))
	sessions := &stubSessions{sessions: []*model.Session{alice}}
	resetter := newTestResetter(t, sessions, &stubUsers{}, newStubCache())

	// group metadata change only: affected, but no subscription refresh
	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:      model.ChangeUpsertGroup,
		GroupName: "readers",
	})
	require.NoError(t, err)
	require.Len(t, affected, 1)
	assert.False(t, affected[0].CauseSubscriptionsRefresh)

	// permission set change: refresh required
	affected, err = resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:        model.ChangeUpsertGroup,
		GroupName:   "readers",
		Permissions: []string{"/data/*"},
	})
	require.NoError(t, err)
	require.Len(t, affected, 1)
	assert.True(t, affected[0].CauseSubscriptionsRefresh)
}

func TestResetter_UnlinkAndDeleteGroupDisconnect(t *testing.T) {
	for _, kind := range []model.ChangeKind{model.ChangeUnlinkGroup, model.ChangeDeleteGroup} {
		t.Run(string(kind), func(t *testing.T) {
			alice := groupedSession("s1", groupedUser("alice", "readers"))
			bob := groupedSession("s2", groupedUser("bob", "auditors"))
			sessions := &stubSessions{sessions: []*model.Session{alice, bob}}
			resetter := newTestResetter(t, sessions, &stubUsers{}, newStubCache())

			affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
				Kind:      kind,
				GroupName: "readers",
			})
			require.NoError(t, err)

			require.Len(t, affected, 1)
			assert.Equal(t, "s1", affected[0].ID)
			assert.Empty(t, affected[0].PermissionSetKey)
			assert.True(t, affected[0].CauseSubscriptionsRefresh)
			assert.Equal(t, []string{"s1:" + string(kind)}, sessions.disconnects())
		})
	}
}

func TestResetter_DeleteUserDisconnectsByPath(t *testing.T) {
	alice := groupedSession("s1", groupedUser("alice", "readers"))
	bob := groupedSession("s2", groupedUser("bob", "auditors"))
	sessions := &stubSessions{sessions: []*model.Session{alice, bob}}
	resetter := newTestResetter(t, sessions, &stubUsers{}, newStubCache())

	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind: model.ChangeDeleteUser,
		Path: "/_SYSTEM/_SECURITY/_USER/alice",
	})
	require.NoError(t, err)

	require.Len(t, affected, 1)
	assert.Equal(t, "s1", affected[0].ID)
	assert.Equal(t, []string{"s1:delete-user"}, sessions.disconnects())
}

func TestResetter_UpsertUserRecomputesPermissionKey(t *testing.T) {
	staleAlice := groupedUser("alice", "readers")
	session := groupedSession("s1", staleAlice)
	sessions := &stubSessions{sessions: []*model.Session{session}}

	freshAlice := groupedUser("alice", "readers", "writers")
	users := &stubUsers{users: map[string]*model.User{"alice": freshAlice}}
	resetter := newTestResetter(t, sessions, users, newStubCache())

	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:     model.ChangeUpsertUser,
		Username: "alice",
	})
	require.NoError(t, err)

	require.Len(t, affected, 1)
	assert.Equal(t, staleAlice.PermissionSetKey, affected[0].PreviousPermissionSetKey)
	assert.Equal(t, freshAlice.PermissionSetKey, affected[0].PermissionSetKey)
	assert.Same(t, freshAlice, affected[0].User)
	assert.True(t, affected[0].CauseSubscriptionsRefresh)
}

func TestResetter_UpsertUserUnchangedKeyExcluded(t *testing.T) {
	alice := groupedUser("alice", "readers")
	session := groupedSession("s1", alice)
	sessions := &stubSessions{sessions: []*model.Session{session}}

	// same group shape: the recomputed key is identical
	users := &stubUsers{users: map[string]*model.User{"alice": groupedUser("alice", "readers")}}
	resetter := newTestResetter(t, sessions, users, newStubCache())

	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:     model.ChangeUpsertUser,
		Username: "alice",
	})
	require.NoError(t, err)
	assert.Empty(t, affected)
}

func TestResetter_UpsertUserLookupFailureExcludesSession(t *testing.T) {
	alice := groupedSession("s1", groupedUser("alice", "readers"))
	sessions := &stubSessions{sessions: []*model.Session{alice}}
	users := &stubUsers{err: errors.New("store down")}
	logger := &captureLogger{}
	resetter := newTestResetter(t, sessions, users, newStubCache(),
		WithResetterLogger(logger))

	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:     model.ChangeUpsertUser,
		Username: "alice",
	})
	require.NoError(t, err)
	assert.Empty(t, affected)
	require.Len(t, logger.debugs, 1)
	assert.Contains(t, logger.debugs[0], "s1")
}

func TestResetter_PermissionEventsRecomputeKey(t *testing.T) {
	for _, kind := range []model.ChangeKind{model.ChangePermissionUpserted, model.ChangePermissionRemoved} {
		t.Run(string(kind), func(t *testing.T) {
			session := groupedSession("s1", groupedUser("alice", "readers"))
			sessions := &stubSessions{sessions: []*model.Session{session}}

			// fresh record without a precomputed key: derived from group names
			fresh := &model.User{
				Username: "alice",
				Groups:   map[string]model.GroupLink{"readers": {}, "writers": {}},
			}
			users := &stubUsers{users: map[string]*model.User{"alice": fresh}}
			resetter := newTestResetter(t, sessions, users, newStubCache())

			affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
				Kind:     kind,
				Username: "alice",
			})
			require.NoError(t, err)

			require.Len(t, affected, 1)
			expected := model.ComputePermissionSetKey([]string{"readers", "writers"})
			assert.Equal(t, expected, affected[0].PermissionSetKey)
		})
	}
}

func TestResetter_ScanPreservesSessionOrder(t *testing.T) {
	var members []*model.Session
	for _, id := range []string{"s1", "s2", "s3"} {
		members = append(members, groupedSession(id, groupedUser("user-"+id, "readers")))
	}
	sessions := &stubSessions{sessions: members}
	resetter := newTestResetter(t, sessions, &stubUsers{}, newStubCache())

	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:      model.ChangeLookupPermissionChanged,
		GroupName: "readers",
	})
	require.NoError(t, err)

	require.Len(t, affected, 3)
	assert.Equal(t, "s1", affected[0].ID)
	assert.Equal(t, "s2", affected[1].ID)
	assert.Equal(t, "s3", affected[2].ID)
}

func TestResetter_SessionWithoutUserIsUntouched(t *testing.T) {
	anonymous := groupedSession("s1", nil)
	sessions := &stubSessions{sessions: []*model.Session{anonymous}}
	resetter := newTestResetter(t, sessions, &stubUsers{}, newStubCache())

	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind:      model.ChangeLookupPermissionChanged,
		GroupName: "readers",
	})
	require.NoError(t, err)
	assert.Empty(t, affected)
}

func TestResetter_UnknownKindIsLoggedNoOp(t *testing.T) {
	logger := &captureLogger{}
	resetter := newTestResetter(t, &stubSessions{}, &stubUsers{}, newStubCache(),
		WithResetterLogger(logger))

	affected, err := resetter.ResetSessionPermissions(context.Background(), model.SecurityChange{
		Kind: model.ChangeKind("link-anonymous"),
	})
	require.NoError(t, err)
	assert.Nil(t, affected)

	warnings := logger.warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "link-anonymous")
}
