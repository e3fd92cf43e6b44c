package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityContextRoundTrip(t *testing.T) {
	identity := Identity{
		Kind:        IdentityKindPrincipal,
		PrincipalID: "p-1",
		Subject:     "u-1",
		Username:    "alice@example.com",
		Role:        RoleStaff,
		Strategy:    "session",
		SessionID:   "s-1",
		Groups:      []string{"staff"},
	}

	ctx := SetIdentityContext(context.Background(), identity)
	got, ok := IdentityFromContext(ctx)

	require.True(t, ok)
	assert.Equal(t, identity.PrincipalID, got.PrincipalID)
	assert.Equal(t, identity.Role, got.Role)
	assert.Equal(t, identity.Groups, got.Groups)
}

func TestIdentityFromContextAbsent(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)
}

func TestIdentityContextCopiesGroups(t *testing.T) {
	groups := []string{"staff"}
	ctx := SetIdentityContext(context.Background(), Identity{Groups: groups})
	groups[0] = "mutated"

	got, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"staff"}, got.Groups)

	got.Groups[0] = "mutated-again"
	again, _ := IdentityFromContext(ctx)
	assert.Equal(t, []string{"staff"}, again.Groups)
}
