package model

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ChangeKind enumerates the security-directory event kinds the engine
// propagates. The set is closed: code switching on a ChangeKind handles
// every constant below plus an explicit unknown-kind arm.
type ChangeKind string

const (
	ChangeTokenRevoked            ChangeKind = "token-revoked"
	ChangeTokenRestored           ChangeKind = "token-restored"
	ChangePermissionUpserted      ChangeKind = "permission-upserted"
	ChangePermissionRemoved       ChangeKind = "permission-removed"
	ChangeLookupTableChanged      ChangeKind = "lookup-table-changed"
	ChangeLookupPermissionChanged ChangeKind = "lookup-permission-changed"
	ChangeUpsertGroup             ChangeKind = "upsert-group"
	ChangeUnlinkGroup             ChangeKind = "unlink-group"
	ChangeDeleteGroup             ChangeKind = "delete-group"
	ChangeUpsertUser              ChangeKind = "upsert-user"
	ChangeDeleteUser              ChangeKind = "delete-user"
)

// Known reports whether k names a recognized security-directory event kind.
func (k ChangeKind) Known() bool {
	switch k {
	case ChangeTokenRevoked, ChangeTokenRestored,
		ChangePermissionUpserted, ChangePermissionRemoved,
		ChangeLookupTableChanged, ChangeLookupPermissionChanged,
		ChangeUpsertGroup, ChangeUnlinkGroup, ChangeDeleteGroup,
		ChangeUpsertUser, ChangeDeleteUser:
		return true
	default:
		return false
	}
}

// SecurityChange is one security-directory change event. Only the fields
// relevant to its Kind are populated.
type SecurityChange struct {
	Kind ChangeKind `json:"whatHappened"`

	// Token-bearing events.
	Token   string        `json:"token,omitempty"`
	Session *Session      `json:"session,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	TTL     time.Duration `json:"ttl,omitempty"`

	// User and permission events.
	Username string `json:"username,omitempty"`
	Path     string `json:"path,omitempty"`

	// Group and lookup events.
	GroupName   string   `json:"group,omitempty"`
	Groups      []string `json:"groups,omitempty"`
	Permissions []string `json:"permissions,omitempty"`

	// Replicated marks an event received from another cluster member.
	// Replicated events are never fanned out again.
	Replicated bool `json:"replicated,omitempty"`
}

// Validate checks that the change carries the fields its kind requires.
func (c SecurityChange) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Kind, validation.Required),
		validation.Field(&c.Token, validation.Required.When(
			(c.Kind == ChangeTokenRevoked || c.Kind == ChangeTokenRestored) && c.Session == nil)),
		validation.Field(&c.Username, validation.Required.When(
			c.Kind == ChangeUpsertUser || c.Kind == ChangePermissionUpserted || c.Kind == ChangePermissionRemoved)),
		validation.Field(&c.GroupName, validation.Required.When(
			c.Kind == ChangeUpsertGroup || c.Kind == ChangeUnlinkGroup || c.Kind == ChangeDeleteGroup ||
				c.Kind == ChangeLookupPermissionChanged)),
		validation.Field(&c.Path, validation.Required.When(c.Kind == ChangeDeleteUser)),
	)
}

// AsReplicated returns a copy of the change marked as replicated, for
// fan-out to other cluster members.
func (c SecurityChange) AsReplicated() SecurityChange {
	c.Replicated = true
	return c
}

// DeletedUsername derives the username of a user-deletion event from the
// deleted object's storage path, e.g. "/_SYSTEM/_SECURITY/_USER/alice".
func (c SecurityChange) DeletedUsername() string {
	if c.Username != "" {
		return c.Username
	}
	const marker = "/_USER/"
	idx := strings.LastIndex(c.Path, marker)
	if idx < 0 {
		return ""
	}
	name := c.Path[idx+len(marker):]
	// permission paths continue past the username segment
	if slash := strings.IndexByte(name, '/'); slash >= 0 {
		name = name[:slash]
	}
	return name
}

// AffectedSession describes one live session whose cached authorization
// state must be invalidated after a security-directory change.
type AffectedSession struct {
	ID                       string `json:"id"`
	Username                 string `json:"username"`
	IsToken                  bool   `json:"isToken"`
	PreviousPermissionSetKey string `json:"previousPermissionSetKey,omitempty"`
	PermissionSetKey         string `json:"permissionSetKey,omitempty"`
	User                     *User  `json:"user,omitempty"`
	Protocol                 string `json:"protocol,omitempty"`

	// CauseSubscriptionsRefresh signals that downstream subscription state
	// must be recomputed for this session.
	CauseSubscriptionsRefresh bool `json:"causeSubscriptionsRefresh"`
}

// RevokedToken is the cache entry stored for a revoked token, keyed by the
// raw token string. A TTL of zero means the revocation never expires.
type RevokedToken struct {
	Reason    string        `json:"reason"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
}

// SessionActivity records the most recent action observed on a session.
type SessionActivity struct {
	SessionID    string    `json:"sessionId"`
	Username     string    `json:"username"`
	Path         string    `json:"path,omitempty"`
	Action       string    `json:"action,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
}

// CacheEntry is one persisted key-value cache row.
type CacheEntry struct {
	Key       string        `json:"key"`
	Value     []byte        `json:"value"`
	TTL       time.Duration `json:"ttl,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}
