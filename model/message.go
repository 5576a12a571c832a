// Package model contains all domain models and data structures for the realtime engine.
package model

import (
	"fmt"
	"time"
)

// Consistency governs how strongly a publish call waits for delivery confirmation.
//
// The levels form a spectrum from "pass/fail on the publish call itself"
// (Transactional) to "wait until every recipient confirms receipt"
// (Acknowledged).
type Consistency int

const (
	// ConsistencyTransactional blocks the publish call until fan-out completes
	// and reports a simple pass/fail to the caller.
	ConsistencyTransactional Consistency = iota

	// ConsistencyQueued returns as soon as the publication has been queued.
	ConsistencyQueued

	// ConsistencyDeferred is the default level: the caller receives an
	// immediate queued receipt and the publish outcome is relayed
	// asynchronously.
	ConsistencyDeferred

	// ConsistencyAcknowledged blocks publication completion until every
	// recipient acknowledges receipt or the acknowledge timeout elapses.
	ConsistencyAcknowledged
)

// DefaultConsistency is applied when a publish request carries no
// consistency option.
const DefaultConsistency = ConsistencyDeferred

// String returns a human-readable name for the consistency level.
func (c Consistency) String() string {
	switch c {
	case ConsistencyTransactional:
		return "transactional"
	case ConsistencyQueued:
		return "queued"
	case ConsistencyDeferred:
		return "deferred"
	case ConsistencyAcknowledged:
		return "acknowledged"
	default:
		return fmt.Sprintf("consistency(%d)", int(c))
	}
}

// Valid reports whether c is a defined consistency level.
func (c Consistency) Valid() bool {
	return c >= ConsistencyTransactional && c <= ConsistencyAcknowledged
}

// PublishOptions are the caller-supplied options on a publish request.
type PublishOptions struct {
	// Consistency selects the completion policy. Nil means DefaultConsistency.
	Consistency *Consistency `json:"consistency,omitempty"`

	// PublishResults copies the final result snapshot onto the response meta.
	// Forced on for Acknowledged consistency.
	PublishResults bool `json:"publishResults,omitempty"`

	// NoCluster suppresses delivery to recipients on remote cluster members.
	NoCluster bool `json:"noCluster,omitempty"`

	// Meta carries caller metadata merged into the outbound payload meta.
	// Reserved meta keys are never overwritten by caller values.
	Meta map[string]any `json:"meta,omitempty"`
}

// ResolveConsistency returns the effective consistency level, applying the
// default when options or the consistency field are absent.
func (o *PublishOptions) ResolveConsistency() Consistency {
	if o == nil || o.Consistency == nil || !o.Consistency.Valid() {
		return DefaultConsistency
	}
	return *o.Consistency
}

// Request is the originating request half of a message envelope.
type Request struct {
	Path    string          `json:"path"`
	Action  string          `json:"action"`
	EventID int64           `json:"eventId"`
	Data    any             `json:"data,omitempty"`
	Options *PublishOptions `json:"options,omitempty"`

	// SessionID identifies the remote session a request originates from on
	// flows that carry no full session, such as acknowledgements.
	SessionID string `json:"sessionId,omitempty"`
}

// ResponseMeta carries the response metadata of a processed request.
type ResponseMeta struct {
	Created        time.Time          `json:"created,omitempty"`
	Modified       time.Time          `json:"modified,omitempty"`
	Path           string             `json:"path,omitempty"`
	Type           string             `json:"type,omitempty"`
	PublishResults *PublicationResult `json:"publishResults,omitempty"`
}

// Response is the response half of a message envelope.
type Response struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"_meta"`
}

// Message is one request/response envelope flowing through the engine,
// together with the originating session and the resolved recipient list.
type Message struct {
	Request    Request
	Response   Response
	Session    *Session
	Protocol   string
	Recipients []Recipient
}

// PublicationID formats the identifier of the publish attempt this message
// drives: "{sessionID}-{eventID}".
func (m *Message) PublicationID() string {
	var sid string
	if m.Session != nil {
		sid = m.Session.ID
	}
	return fmt.Sprintf("%s-%d", sid, m.Request.EventID)
}
