package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePermissionSetKey(t *testing.T) {
	key := ComputePermissionSetKey([]string{"admins", "operators"})

	// stable and order-insensitive
	assert.Equal(t, key, ComputePermissionSetKey([]string{"operators", "admins"}))

	// changes when the membership changes shape
	assert.NotEqual(t, key, ComputePermissionSetKey([]string{"admins"}))
	assert.NotEqual(t, key, ComputePermissionSetKey([]string{"admins", "operators", "viewers"}))
}

func TestUser_GroupNames(t *testing.T) {
	user := &User{
		Username: "alice",
		Groups: map[string]GroupLink{
			"operators": {},
			"admins":    {},
		},
	}

	assert.Equal(t, []string{"admins", "operators"}, user.GroupNames())
	assert.True(t, user.HasGroup("admins"))
	assert.False(t, user.HasGroup("viewers"))

	var nilUser *User
	assert.Nil(t, nilUser.GroupNames())
	assert.False(t, nilUser.HasGroup("admins"))
}

func TestNewSession(t *testing.T) {
	one := NewSession(&User{Username: "alice"})
	two := NewSession(nil)

	assert.NotEmpty(t, one.ID)
	assert.NotEqual(t, one.ID, two.ID)
	assert.Equal(t, "alice", one.Username())
}

func TestSession_Username(t *testing.T) {
	tests := []struct {
		name     string
		session  *Session
		expected string
	}{
		{"Authenticated session", &Session{User: &User{Username: "bob"}}, "bob"},
		{"No user attached", &Session{}, "unknown"},
		{"Empty username", &Session{User: &User{}}, "unknown"},
		{"Nil session", nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.session.Username())
		})
	}
}

func TestSession_PermissionSetKey(t *testing.T) {
	session := &Session{User: &User{PermissionSetKey: "abc"}}
	assert.Equal(t, "abc", session.PermissionSetKey())
	assert.Equal(t, "", (&Session{}).PermissionSetKey())
}
