// Package memory provides in-process implementations of the engine's
// collaborator interfaces: a session directory, a user store, and a
// loopback transport that queues outbound messages per session.
//
// These adapters back the bundled server and the test suites; a production
// embedding replaces them with its own wire and security directory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/coregx/realtime"
	"github.com/coregx/realtime/model"
)

// SessionDirectory is an in-memory realtime.SessionDirectory. Iteration
// order is insertion order, which keeps affected-session lists stable.
type SessionDirectory struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	order    []string

	// OnDisconnect, when set, observes every forced disconnect.
	OnDisconnect func(session *model.Session, reason string)
}

// NewSessionDirectory creates an empty session directory.
func NewSessionDirectory() *SessionDirectory {
	return &SessionDirectory{sessions: make(map[string]*model.Session)}
}

// Connect registers a session, replacing any previous session with the
// same id.
func (d *SessionDirectory) Connect(session *model.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[session.ID]; !ok {
		d.order = append(d.order, session.ID)
	}
	d.sessions[session.ID] = session
}

// GetSession retrieves a live session by id.
func (d *SessionDirectory) GetSession(id string) (*model.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	session, ok := d.sessions[id]
	if !ok {
		return nil, realtime.ErrNoData
	}
	return session, nil
}

// Each iterates live sessions in insertion order.
func (d *SessionDirectory) Each(ctx context.Context, fn func(session *model.Session) error) error {
	d.mu.RLock()
	snapshot := make([]*model.Session, 0, len(d.order))
	for _, id := range d.order {
		if session, ok := d.sessions[id]; ok {
			snapshot = append(snapshot, session)
		}
	}
	d.mu.RUnlock()

	for _, session := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(session); err != nil {
			return err
		}
	}
	return nil
}

// DisconnectSessions removes the session and notifies OnDisconnect.
// Disconnecting an unknown session is a no-op.
func (d *SessionDirectory) DisconnectSessions(ctx context.Context, sessionID string, reason string) error {
	d.mu.Lock()
	session, ok := d.sessions[sessionID]
	if ok {
		delete(d.sessions, sessionID)
		for i, id := range d.order {
			if id == sessionID {
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
	}
	callback := d.OnDisconnect
	d.mu.Unlock()

	if ok && callback != nil {
		callback(session, reason)
	}
	return nil
}

// Len returns the number of live sessions.
func (d *SessionDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// UserStore is an in-memory realtime.UserStore.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*model.User
}

// NewUserStore creates an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*model.User)}
}

// UpsertUser stores a user record keyed by username.
func (s *UserStore) UpsertUser(user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = user
}

// DeleteUser removes a user record.
func (s *UserStore) DeleteUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, username)
}

// GetUser retrieves a user by username.
func (s *UserStore) GetUser(ctx context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return nil, realtime.ErrNoData
	}
	return user, nil
}

// Usernames returns the stored usernames in sorted order.
func (s *UserStore) Usernames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoopbackTransport is a realtime.MessageTransport that queues every
// outbound message in a per-session outbox instead of writing to a wire.
type LoopbackTransport struct {
	mu       sync.Mutex
	outboxes map[string][]model.Outbound
}

// NewLoopbackTransport creates an empty loopback transport.
func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{outboxes: make(map[string][]model.Outbound)}
}

// ProcessMessageOut appends the message to its target session's outbox.
// A message without a target session is rejected.
func (t *LoopbackTransport) ProcessMessageOut(ctx context.Context, out model.Outbound) error {
	session := out.TargetSession()
	if session == nil {
		return realtime.NewError(realtime.ErrCodeDelivery, "outbound message has no target session")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.outboxes[session.ID] = append(t.outboxes[session.ID], out)
	return nil
}

// Drain returns and clears the outbox for one session.
func (t *LoopbackTransport) Drain(sessionID string) []model.Outbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	queued := t.outboxes[sessionID]
	delete(t.outboxes, sessionID)
	return queued
}

// Pending returns the number of queued messages for one session.
func (t *LoopbackTransport) Pending(sessionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.outboxes[sessionID])
}
