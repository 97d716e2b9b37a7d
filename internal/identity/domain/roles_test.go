package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Owner ")
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, r)

	_, err = ParseRole("superuser")
	assert.Error(t, err)
}

func TestParseRoles_IgnoresUnknown(t *testing.T) {
	roles := ParseRoles([]string{"client", "root", "editor"})
	assert.Equal(t, []string{"client", "editor"}, roles.Strings())
}

func TestActor_IsAdmin(t *testing.T) {
	tests := []struct {
		name  string
		roles []Role
		want  bool
	}{
		{"owner", []Role{RoleOwner}, true},
		{"assistant", []Role{RoleAssistant}, true},
		{"editor", []Role{RoleEditor}, true},
		{"client", []Role{RoleClient}, false},
		{"none", nil, false},
		{"client and editor", []Role{RoleClient, RoleEditor}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := NewActor(uuid.New(), tt.roles...)
			assert.Equal(t, tt.want, actor.IsAdmin())
		})
	}
}

func TestActor_CanActFor(t *testing.T) {
	clientID := uuid.New()

	assert.True(t, NewActor(clientID, RoleClient).CanActFor(clientID))
	assert.False(t, NewActor(uuid.New(), RoleClient).CanActFor(clientID))
	assert.True(t, NewActor(uuid.New(), RoleAssistant).CanActFor(clientID))
	assert.False(t, Actor{}.CanActFor(uuid.Nil))
}

func TestActor_IsAnonymous(t *testing.T) {
	assert.True(t, Actor{}.IsAnonymous())
	assert.False(t, NewActor(uuid.New(), RoleClient).IsAnonymous())
	assert.False(t, SystemActor().IsAnonymous())
	assert.True(t, SystemActor().IsAdmin())
}
