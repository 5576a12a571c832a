package model

import (
	"fmt"
	"strings"
	"time"
)

// PayloadType is the meta type stamped on outbound data payloads.
const PayloadTypeData = "data"

// EventOrigin identifies the session that caused a publication, carried on
// the payload meta so recipients can attribute the change.
type EventOrigin struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// PayloadMeta is the metadata attached to every outbound payload.
type PayloadMeta struct {
	Path          string         `json:"path"`
	Action        string         `json:"action"`
	Type          string         `json:"type"`
	SessionID     string         `json:"sessionId"`
	PublicationID string         `json:"publicationId"`
	Consistency   Consistency    `json:"consistency"`
	Created       time.Time      `json:"created,omitempty"`
	Modified      time.Time      `json:"modified,omitempty"`
	EventOrigin   *EventOrigin   `json:"eventOrigin,omitempty"`
	Custom        map[string]any `json:"custom,omitempty"`
}

// Payload is the transformed message body fanned out to every recipient of
// one publication. It is built once per publication and shared read-only by
// all recipient deliveries.
type Payload struct {
	Data     any         `json:"data,omitempty"`
	Protocol string      `json:"protocol,omitempty"`
	Meta     PayloadMeta `json:"_meta"`
	Outbound bool        `json:"__outbound"`
}

// FormatAction renders the meta action of a publication:
// "/{ACTION}@{path}" with the action uppercased.
func FormatAction(action, path string) string {
	return fmt.Sprintf("/%s@%s", strings.ToUpper(action), path)
}

// reservedMetaKeys are the payload meta fields owned by the engine. Caller
// supplied meta entries under these keys are discarded rather than allowed
// to overwrite the computed values.
var reservedMetaKeys = map[string]bool{
	"path":          true,
	"action":        true,
	"type":          true,
	"sessionId":     true,
	"publicationId": true,
	"consistency":   true,
	"created":       true,
	"modified":      true,
	"eventOrigin":   true,
}

// MergeCustomMeta folds caller metadata into the payload meta, skipping
// reserved keys.
func (m *PayloadMeta) MergeCustomMeta(meta map[string]any) {
	for key, value := range meta {
		if reservedMetaKeys[key] {
			continue
		}
		if m.Custom == nil {
			m.Custom = make(map[string]any)
		}
		m.Custom[key] = value
	}
}
