package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/helpdesk/internal/permissions"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		claims Claims
		valid  bool
	}{
		{name: "global admin without tenant", claims: Claims{ActorID: "a1", Role: RoleGlobalAdmin}, valid: true},
		{name: "global admin with home tenant", claims: Claims{ActorID: "a1", Role: RoleGlobalAdmin, TenantID: TenantRef("T1")}, valid: true},
		{name: "tenant admin", claims: Claims{ActorID: "a2", Role: RoleTenantAdmin, TenantID: TenantRef("T1")}, valid: true},
		{name: "agent without tenant", claims: Claims{ActorID: "a3", Role: RoleAgent}},
		{name: "user without tenant", claims: Claims{ActorID: "a4", Role: RoleUser}},
		{name: "blank tenant", claims: Claims{ActorID: "a4", Role: RoleUser, TenantID: TenantRef("  ")}},
		{name: "missing actor", claims: Claims{Role: RoleUser, TenantID: TenantRef("T1")}},
		{name: "unknown role", claims: Claims{ActorID: "a5", Role: "OWNER", TenantID: TenantRef("T1")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.claims.Validate()
			if tc.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidIdentity)
		})
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" agent ")
	require.NoError(t, err)
	assert.Equal(t, RoleAgent, role)

	_, err = ParseRole("superuser")
	require.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestRankIsTotalOrder(t *testing.T) {
	roles := Roles()
	for i := 1; i < len(roles); i++ {
		assert.Greater(t, roles[i-1].Rank(), roles[i].Rank())
	}
	assert.Zero(t, Role("").Rank())
}

func TestCapabilitiesOnlyForAgents(t *testing.T) {
	granted := permissions.Matrix{CanViewAllTickets: true}
	agent := Claims{ActorID: "a", Role: RoleAgent, TenantID: TenantRef("T1"), Permissions: &granted}
	assert.True(t, agent.Capabilities().CanViewAllTickets)

	user := Claims{ActorID: "u", Role: RoleUser, TenantID: TenantRef("T1"), Permissions: &granted}
	assert.Equal(t, permissions.Matrix{}, user.Capabilities())

	bare := Claims{ActorID: "b", Role: RoleAgent, TenantID: TenantRef("T1")}
	assert.Equal(t, permissions.Matrix{}, bare.Capabilities())
}
