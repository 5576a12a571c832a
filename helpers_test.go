package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/coregx/realtime/model"
)

// stubTransport records outbound messages and can fail deliveries for
// selected sessions.
type stubTransport struct {
	mu        sync.Mutex
	sent      []model.Outbound
	failFor   map[string]error
	onDeliver func(out model.Outbound)
}

func newStubTransport() *stubTransport {
	return &stubTransport{failFor: make(map[string]error)}
}

func (t *stubTransport) ProcessMessageOut(_ context.Context, out model.Outbound) error {
	t.mu.Lock()
	var err error
	if session := out.TargetSession(); session != nil {
		err = t.failFor[session.ID]
	}
	if err == nil {
		t.sent = append(t.sent, out)
	}
	callback := t.onDeliver
	t.mu.Unlock()

	if err == nil && callback != nil {
		callback(out)
	}
	return err
}

func (t *stubTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func (t *stubTransport) deliveries() []*model.Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*model.Delivery
	for _, m := range t.sent {
		if d, ok := m.(*model.Delivery); ok {
			out = append(out, d)
		}
	}
	return out
}

func (t *stubTransport) acks() []*model.PublicationAck {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*model.PublicationAck
	for _, m := range t.sent {
		if a, ok := m.(*model.PublicationAck); ok {
			out = append(out, a)
		}
	}
	return out
}

// stubSessions is a fixed-order session directory recording disconnects.
type stubSessions struct {
	mu            sync.Mutex
	sessions      []*model.Session
	disconnected  []string // "{id}:{reason}"
	disconnectErr error
}

func (d *stubSessions) GetSession(id string) (*model.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, ErrNoData
}

func (d *stubSessions) Each(_ context.Context, fn func(session *model.Session) error) error {
	d.mu.Lock()
	snapshot := append([]*model.Session(nil), d.sessions...)
	d.mu.Unlock()
	for _, s := range snapshot {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *stubSessions) DisconnectSessions(_ context.Context, sessionID string, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.disconnectErr != nil {
		return d.disconnectErr
	}
	d.disconnected = append(d.disconnected, fmt.Sprintf("%s:%s", sessionID, reason))
	return nil
}

func (d *stubSessions) disconnects() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.disconnected...)
}

// stubUsers serves canned user records.
type stubUsers struct {
	users map[string]*model.User
	err   error
}

func (s *stubUsers) GetUser(_ context.Context, username string) (*model.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[username]
	if !ok {
		return nil, ErrNoData
	}
	return user, nil
}

// stubCacheEntry remembers the options a value was stored with.
type stubCacheEntry struct {
	value any
	opts  CacheSetOptions
}

// stubCache is an unbounded in-memory Cache recording set/remove options.
type stubCache struct {
	mu        sync.Mutex
	entries   map[string]stubCacheEntry
	removes   map[string]CacheRemoveOptions
	setErr    error
	removeErr error
	getErr    error
}

func newStubCache() *stubCache {
	return &stubCache{
		entries: make(map[string]stubCacheEntry),
		removes: make(map[string]CacheRemoveOptions),
	}
}

func (c *stubCache) Get(key string) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *stubCache) Set(key string, value any, opts CacheSetOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = stubCacheEntry{value: value, opts: opts}
	return nil
}

func (c *stubCache) Remove(key string, opts CacheRemoveOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removeErr != nil {
		return c.removeErr
	}
	delete(c.entries, key)
	c.removes[key] = opts
	return nil
}

func (c *stubCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

func (c *stubCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]stubCacheEntry)
	return nil
}

func (c *stubCache) entry(key string) (stubCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// systemReport is one captured ErrorReporter invocation.
type systemReport struct {
	err       error
	component string
	severity  Severity
}

// captureReporter records system error reports.
type captureReporter struct {
	mu      sync.Mutex
	reports []systemReport
}

func (r *captureReporter) HandleSystem(err error, component string, severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, systemReport{err: err, component: component, severity: severity})
}

func (r *captureReporter) all() []systemReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]systemReport(nil), r.reports...)
}

// captureLogger records formatted log lines per level.
type captureLogger struct {
	mu     sync.Mutex
	debugs []string
	infos  []string
	warns  []string
	errors []string
}

func (l *captureLogger) Debugf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugs = append(l.debugs, fmt.Sprintf(format, args...))
}

func (l *captureLogger) Infof(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *captureLogger) Warnf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func (l *captureLogger) Errorf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *captureLogger) Info(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, message)
}

func (l *captureLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}
