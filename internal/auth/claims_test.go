package auth

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeToken(t *testing.T, payload string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + "."
}

func TestDecodeClaims(t *testing.T) {
	token := encodeToken(t, `{
		"sub": "u-123",
		"email": "Alice@Example.com",
		"name": "Alice",
		"preferred_username": "alice",
		"iss": "https://cognito-idp.us-east-1.amazonaws.com/pool",
		"aud": "client-1",
		"exp": 1900000000,
		"iat": 1700000000,
		"cognito:groups": ["staff"]
	}`)

	cs, err := DecodeClaims(token)
	require.NoError(t, err)

	assert.Equal(t, "u-123", cs.Subject)
	assert.Equal(t, "Alice@Example.com", cs.Email)
	assert.Equal(t, "Alice", cs.Name)
	assert.Equal(t, []string{"client-1"}, cs.Audience)
	assert.Equal(t, int64(1900000000), cs.ExpiresAt)
	assert.Contains(t, cs.Raw, "cognito:groups")
}

func TestDecodeClaimsAudienceList(t *testing.T) {
	cs, err := DecodeClaims(encodeToken(t, `{"sub":"u-1","aud":["a","b"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cs.Audience)
}

func TestDecodeClaimsPaddedSegment(t *testing.T) {
	// Some proxies emit padded base64; the codec accepts both forms.
	payload := base64.URLEncoding.EncodeToString([]byte(`{"sub":"u-1"}`))
	cs, err := DecodeClaims("e30." + payload + ".sig")
	require.NoError(t, err)
	assert.Equal(t, "u-1", cs.Subject)
}

func TestDecodeClaimsMalformedStructure(t *testing.T) {
	_, err := DecodeClaims("not-a-token")
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, DecodeMalformedStructure, de.Kind)
}

func TestDecodeClaimsInvalidEncoding(t *testing.T) {
	_, err := DecodeClaims("e30.!!!not-base64url!!!.sig")
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, DecodeInvalidEncoding, de.Kind)
}

func TestDecodeClaimsInvalidPayload(t *testing.T) {
	cases := map[string]string{
		"not json":    encodeToken(t, `this is not json`),
		"missing sub": encodeToken(t, `{"email":"a@b.com"}`),
		"empty sub":   encodeToken(t, `{"sub":""}`),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeClaims(token)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, DecodeInvalidPayload, de.Kind)
		})
	}
}

func TestDecodeClaimsDropsWrongTypedOptionals(t *testing.T) {
	cs, err := DecodeClaims(encodeToken(t, `{"sub":"u-1","email":42,"name":["x"]}`))
	require.NoError(t, err)
	assert.Empty(t, cs.Email)
	assert.Empty(t, cs.Name)
}

func TestEncodeClaimsRoundTrip(t *testing.T) {
	in := &ClaimSet{
		Subject:           "u-9",
		Email:             "bob@example.com",
		PreferredUsername: "bob",
		Issuer:            "https://dex.localtest.me/dex",
		Audience:          []string{"portal"},
		ExpiresAt:         1900000000,
		Raw:               map[string]any{"groups": []any{"staff"}},
	}

	token, err := EncodeClaims(in)
	require.NoError(t, err)

	out, err := DecodeClaims(token)
	require.NoError(t, err)
	assert.Equal(t, in.Subject, out.Subject)
	assert.Equal(t, in.Email, out.Email)
	assert.Equal(t, in.Audience, out.Audience)
	assert.Equal(t, in.ExpiresAt, out.ExpiresAt)
}

func TestUsernamePrecedence(t *testing.T) {
	cs := &ClaimSet{Subject: "U-1", Email: "Alice@Example.com", PreferredUsername: "alice.p"}
	assert.Equal(t, "alice@example.com", cs.Username(), "email wins")

	cs = &ClaimSet{Subject: "U-1", PreferredUsername: "Alice.P"}
	assert.Equal(t, "alice.p", cs.Username(), "preferred_username next")

	cs = &ClaimSet{Subject: "U-1"}
	assert.Equal(t, "u-1", cs.Username(), "sub is the last resort")
}

func TestExtractGroupsFlat(t *testing.T) {
	groups, err := ExtractGroups(map[string]any{"groups": []any{"a", "b"}}, "groups", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, groups)
}

func TestExtractGroupsNested(t *testing.T) {
	claims := map[string]any{
		"groups": []any{
			map[string]any{"name": "dev-team", "type": "team"},
			map[string]any{"name": "contractors"},
		},
	}
	groups, err := ExtractGroups(claims, "groups", "name")
	require.NoError(t, err)
	assert.Equal(t, []string{"dev-team", "contractors"}, groups)
}

func TestExtractGroupsMissingClaim(t *testing.T) {
	groups, err := ExtractGroups(map[string]any{}, "cognito:groups", "")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestExtractGroupsBadFormat(t *testing.T) {
	_, err := ExtractGroups(map[string]any{"groups": "staff"}, "groups", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, nil))
}
