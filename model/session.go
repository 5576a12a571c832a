package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the security principal attached to an authenticated session.
type User struct {
	Username string `json:"username"`

	// Groups maps linked group names to their link metadata.
	Groups map[string]GroupLink `json:"groups,omitempty"`

	// PermissionSetKey summarizes the user's current authorization snapshot.
	PermissionSetKey string `json:"permissionSetKey,omitempty"`
}

// GroupLink is the membership record linking a user to a group.
type GroupLink struct {
	LinkedAt time.Time `json:"linkedAt,omitempty"`
}

// GroupNames returns the user's linked group names in sorted order.
func (u *User) GroupNames() []string {
	if u == nil || len(u.Groups) == 0 {
		return nil
	}
	names := make([]string, 0, len(u.Groups))
	for name := range u.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasGroup reports whether the user is linked to the named group.
func (u *User) HasGroup(name string) bool {
	if u == nil {
		return false
	}
	_, ok := u.Groups[name]
	return ok
}

// ComputePermissionSetKey derives the permission set key for a set of group
// names: a stable digest that changes exactly when the group membership
// changes shape.
func ComputePermissionSetKey(groupNames []string) string {
	sorted := make([]string, len(groupNames))
	copy(sorted, groupNames)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "/")))
	return hex.EncodeToString(sum[:])
}

// Session is one live connection known to the session directory.
type Session struct {
	ID       string `json:"id"`
	User     *User  `json:"user,omitempty"`
	IsToken  bool   `json:"isToken,omitempty"`
	Token    string `json:"token,omitempty"`
	Protocol string `json:"protocol,omitempty"`

	// TokenTTL bounds the lifetime of the session's token. Zero or negative
	// means unbounded.
	TokenTTL time.Duration `json:"tokenTtl,omitempty"`

	// Info carries transport-level session metadata such as the cluster name.
	Info SessionInfo `json:"info,omitempty"`
}

// SessionInfo is transport-level metadata attached to a session.
type SessionInfo struct {
	ClusterName string `json:"clusterName,omitempty"`
}

// NewSession creates a session with a fresh random identifier.
func NewSession(user *User) *Session {
	return &Session{
		ID:   uuid.NewString(),
		User: user,
	}
}

// Username returns the session user's name, or "unknown" when the session
// carries no user.
func (s *Session) Username() string {
	if s == nil || s.User == nil || s.User.Username == "" {
		return "unknown"
	}
	return s.User.Username
}

// PermissionSetKey returns the session user's current permission set key, or
// the empty string when the session carries no user.
func (s *Session) PermissionSetKey() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.PermissionSetKey
}
