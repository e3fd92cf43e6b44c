package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, name := range []string{"customer", "staff", "admin"} {
		role, err := ParseRole(name)
		require.NoError(t, err)
		assert.Equal(t, Role(name), role)
	}

	_, err := ParseRole("superuser")
	require.Error(t, err)

	_, err = ParseRole("Admin")
	require.Error(t, err, "role names are case sensitive")

	_, err = ParseRole("")
	require.Error(t, err)
}

func TestRoleOrdering(t *testing.T) {
	assert.Less(t, RoleCustomer.Level(), RoleStaff.Level())
	assert.Less(t, RoleStaff.Level(), RoleAdmin.Level())
	assert.Zero(t, Role("ghost").Level())
}

func TestRoleMeets(t *testing.T) {
	cases := []struct {
		held     Role
		required Role
		want     bool
	}{
		{RoleCustomer, RoleCustomer, true},
		{RoleCustomer, RoleStaff, false},
		{RoleCustomer, RoleAdmin, false},
		{RoleStaff, RoleCustomer, true},
		{RoleStaff, RoleStaff, true},
		{RoleStaff, RoleAdmin, false},
		{RoleAdmin, RoleCustomer, true},
		{RoleAdmin, RoleStaff, true},
		{RoleAdmin, RoleAdmin, true},
		{Role(""), RoleCustomer, false},
		{Role("ghost"), RoleCustomer, false},
		{RoleAdmin, Role("ghost"), false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.held.Meets(tc.required),
			"%s meets %s", tc.held, tc.required)
	}
}

func TestRoleAuthorizerExact(t *testing.T) {
	exact := RoleAuthorizer{Exact: true}

	assert.True(t, exact.Authorize(RoleStaff, RoleStaff))
	assert.False(t, exact.Authorize(RoleAdmin, RoleStaff), "exact mode has no inheritance")
	assert.False(t, exact.Authorize(RoleStaff, RoleAdmin))
	assert.False(t, exact.Authorize(Role("ghost"), Role("ghost")), "unknown roles never match")
}

func TestRoleAuthorizerHierarchical(t *testing.T) {
	hier := RoleAuthorizer{}

	assert.True(t, hier.Authorize(RoleAdmin, RoleStaff))
	assert.True(t, hier.Authorize(RoleStaff, RoleStaff))
	assert.False(t, hier.Authorize(RoleCustomer, RoleStaff))
}
