package realtime

import (
	"context"
	"time"

	"github.com/coregx/realtime/model"
)

// MessageTransport delivers one session-targeted message over whatever wire
// the embedding runtime owns. The engine itself owns no wire format: every
// recipient delivery and every publication ack goes through this primitive.
//
// Implementations should return an error when the message could not be
// accepted for delivery; the engine records it as a delivery failure.
type MessageTransport interface {
	// ProcessMessageOut delivers one outbound message to its target session.
	ProcessMessageOut(ctx context.Context, out model.Outbound) error
}

// SessionDirectory is the registry of live sessions the engine consults when
// propagating security-directory changes and disconnecting sessions.
type SessionDirectory interface {
	// GetSession retrieves a live session by id.
	// Returns ErrNoData if the session is not connected.
	GetSession(id string) (*model.Session, error)

	// Each iterates all live sessions, invoking fn for each one. Iteration
	// stops on the first error returned by fn, which Each propagates.
	Each(ctx context.Context, fn func(session *model.Session) error) error

	// DisconnectSessions forcibly disconnects the session with the given id,
	// tagging the disconnect with a reason.
	DisconnectSessions(ctx context.Context, sessionID string, reason string) error
}

// UserStore retrieves current user records from the security directory.
type UserStore interface {
	// GetUser retrieves a user by username.
	// Returns ErrNoData if the user does not exist.
	GetUser(ctx context.Context, username string) (*model.User, error)
}

// CacheSetOptions configure one cache write.
type CacheSetOptions struct {
	// TTL bounds the entry's lifetime. Zero means the entry never expires.
	TTL time.Duration

	// NoPersist keeps the write in memory only, skipping any backing store.
	NoPersist bool
}

// CacheRemoveOptions configure one cache removal.
type CacheRemoveOptions struct {
	// NoPersist removes the entry from memory only, skipping any backing store.
	NoPersist bool
}

// Cache is a process-wide keyed store with last-write-wins semantics per
// key. Callers relying on cross-event ordering serialize through the
// DataChangeQueue rather than per-key locking.
//
// Implementations must be safe for concurrent use. The engine ships a
// bounded in-memory implementation (adapters/lrucache) and a persisted one
// (adapters/relica).
type Cache interface {
	// Get retrieves the value stored under key. The second return value
	// reports whether the key was present and unexpired.
	Get(key string) (any, bool, error)

	// Set stores value under key.
	Set(key string, value any, opts CacheSetOptions) error

	// Remove deletes the entry under key. Removing an absent key is a no-op.
	Remove(key string, opts CacheRemoveOptions) error

	// Keys returns a snapshot of the unexpired keys currently stored.
	Keys() []string

	// Clear removes all entries.
	Clear() error
}

// Severity classifies system errors handed to an ErrorReporter.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

// String returns a human-readable name for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// ErrorReporter receives system errors that must be surfaced without
// failing the operation that encountered them.
type ErrorReporter interface {
	// HandleSystem reports a system error raised by the named component.
	HandleSystem(err error, component string, severity Severity)
}

// LoggingErrorReporter is an ErrorReporter that writes reports to a Logger.
type LoggingErrorReporter struct {
	logger Logger
}

// NewLoggingErrorReporter creates an ErrorReporter backed by the given logger.
func NewLoggingErrorReporter(logger Logger) *LoggingErrorReporter {
	return &LoggingErrorReporter{logger: logger}
}

// HandleSystem logs the reported error at a level matching its severity.
func (r *LoggingErrorReporter) HandleSystem(err error, component string, severity Severity) {
	switch severity {
	case SeverityHigh:
		r.logger.Errorf("system error [%s] severity=%s: %v", component, severity, err)
	default:
		r.logger.Warnf("system error [%s] severity=%s: %v", component, severity, err)
	}
}

// Replicator fans a security-directory change out to other cluster members.
// The DataChangeQueue invokes it for local (non-replicated) events only, so
// replication can never loop.
type Replicator interface {
	// Replicate sends the change to the rest of the cluster.
	Replicate(ctx context.Context, change model.SecurityChange) error
}
