package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAction(t *testing.T) {
	assert.Equal(t, "/SET@/some/path/*", FormatAction("set", "/some/path/*"))
	assert.Equal(t, "/REMOVE@/another", FormatAction("Remove", "/another"))
}

func TestPayloadMeta_MergeCustomMeta(t *testing.T) {
	meta := PayloadMeta{
		Path:   "/some/path",
		Action: "/SET@/some/path",
	}

	meta.MergeCustomMeta(map[string]any{
		"created":   "caller-created", // reserved, must not overwrite
		"path":      "/hijacked",      // reserved, must not overwrite
		"requestId": "abc-123",
		"tag":       42,
	})

	assert.Equal(t, "/some/path", meta.Path)
	assert.True(t, meta.Created.IsZero())
	assert.Equal(t, map[string]any{"requestId": "abc-123", "tag": 42}, meta.Custom)
}

func TestPayloadMeta_MergeCustomMeta_OnlyReservedKeys(t *testing.T) {
	meta := PayloadMeta{}
	meta.MergeCustomMeta(map[string]any{"created": 1, "modified": 2, "eventOrigin": 3})

	assert.Nil(t, meta.Custom)
}

func TestRecipient_ChannelKey(t *testing.T) {
	recipient := Recipient{
		SessionID: "1",
		Action:    "mockAction",
		Path:      "/mockPath/",
	}
	assert.Equal(t, "1/mockAction@/mockPath/", recipient.ChannelKey())
}
