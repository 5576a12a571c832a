package realtime

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/realtime/model"
)

func TestNewSessionActivityLog(t *testing.T) {
	_, err := NewSessionActivityLog(nil, 0, nil)
	require.Error(t, err)

	log, err := NewSessionActivityLog(newStubCache(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionActivityTTL, log.TTL())

	log, err = NewSessionActivityLog(newStubCache(), 10*time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionActivityTTL, log.TTL(), "sub-minimum ttl is raised")

	log, err = NewSessionActivityLog(newStubCache(), 5*time.Minute, nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, log.TTL())
}

func TestSessionActivityLog_UpdateAndGet(t *testing.T) {
	cache := newStubCache()
	log, err := NewSessionActivityLog(cache, 0, nil)
	require.NoError(t, err)

	session := &model.Session{ID: "s1", User: &model.User{Username: "alice"}}
	require.NoError(t, log.Update(session, "/orders/1", "set"))

	entry, err := log.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", entry.SessionID)
	assert.Equal(t, "alice", entry.Username)
	assert.Equal(t, "/orders/1", entry.Path)
	assert.Equal(t, "set", entry.Action)
	assert.False(t, entry.LastActivity.IsZero())

	cached, _ := cache.entry("s1")
	assert.Equal(t, log.TTL(), cached.opts.TTL)
}

func TestSessionActivityLog_UpdateValidation(t *testing.T) {
	log, err := NewSessionActivityLog(newStubCache(), 0, nil)
	require.NoError(t, err)
	require.Error(t, log.Update(nil, "/p", "set"))
}

func TestSessionActivityLog_UnknownUserFallsBack(t *testing.T) {
	log, err := NewSessionActivityLog(newStubCache(), 0, nil)
	require.NoError(t, err)

	require.NoError(t, log.Update(&model.Session{ID: "s1"}, "/p", "get"))
	entry, err := log.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "unknown", entry.Username)
}

func TestSessionActivityLog_GetMissing(t *testing.T) {
	log, err := NewSessionActivityLog(newStubCache(), 0, nil)
	require.NoError(t, err)

	_, err = log.Get("absent")
	require.Error(t, err)
	assert.True(t, IsNoData(err))
}

func TestSessionActivityLog_GetCacheFailure(t *testing.T) {
	cache := newStubCache()
	cache.getErr = errors.New("cache down")
	log, err := NewSessionActivityLog(cache, 0, nil)
	require.NoError(t, err)

	_, err = log.Get("s1")
	require.Error(t, err)
	assert.False(t, IsNoData(err))
}

func TestSessionActivityLog_ListAndClear(t *testing.T) {
	log, err := NewSessionActivityLog(newStubCache(), 0, nil)
	require.NoError(t, err)

	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, log.Update(&model.Session{ID: id}, "/p", "set"))
	}

	entries, err := log.List()
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	require.NoError(t, log.Clear())
	entries, err = log.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
