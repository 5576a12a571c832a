package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsistency_String(t *testing.T) {
	tests := []struct {
		name     string
		level    Consistency
		expected string
	}{
		{"Transactional", ConsistencyTransactional, "transactional"},
		{"Queued", ConsistencyQueued, "queued"},
		{"Deferred", ConsistencyDeferred, "deferred"},
		{"Acknowledged", ConsistencyAcknowledged, "acknowledged"},
		{"Unknown level", Consistency(42), "consistency(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestPublishOptions_ResolveConsistency(t *testing.T) {
	acknowledged := ConsistencyAcknowledged
	invalid := Consistency(99)

	tests := []struct {
		name     string
		options  *PublishOptions
		expected Consistency
	}{
		{"Nil options default to deferred", nil, ConsistencyDeferred},
		{"Unset consistency defaults to deferred", &PublishOptions{}, ConsistencyDeferred},
		{"Explicit consistency is honored", &PublishOptions{Consistency: &acknowledged}, ConsistencyAcknowledged},
		{"Invalid consistency falls back to default", &PublishOptions{Consistency: &invalid}, ConsistencyDeferred},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.options.ResolveConsistency())
		})
	}
}

func TestMessage_PublicationID(t *testing.T) {
	message := &Message{
		Session: &Session{ID: "session-1"},
		Request: Request{EventID: 7},
	}
	assert.Equal(t, "session-1-7", message.PublicationID())

	// no session still yields a stable id
	message.Session = nil
	assert.Equal(t, "-7", message.PublicationID())
}
