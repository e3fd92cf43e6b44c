package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ClaimSet is the decoded payload of a compact identity token.
// Only the claims the portal reads are modeled; the full payload stays
// available through Raw.
type ClaimSet struct {
	Subject           string
	Email             string
	Name              string
	PreferredUsername string
	Issuer            string
	Audience          []string
	ExpiresAt         int64
	IssuedAt          int64

	// Raw is the complete decoded payload, for claim lookups that are
	// provider specific (group claims in particular).
	Raw map[string]any
}

// DecodeErrorKind distinguishes the ways a compact token can fail to decode.
type DecodeErrorKind string

const (
	// DecodeMalformedStructure: the token does not have the expected
	// dot-separated segment layout.
	DecodeMalformedStructure DecodeErrorKind = "malformed_structure"
	// DecodeInvalidEncoding: a segment is not valid base64url.
	DecodeInvalidEncoding DecodeErrorKind = "invalid_encoding"
	// DecodeInvalidPayload: the payload decoded but is not a usable
	// claim set (bad JSON or missing sub).
	DecodeInvalidPayload DecodeErrorKind = "invalid_payload"
)

// DecodeError reports why DecodeClaims rejected a token.
type DecodeError struct {
	Kind DecodeErrorKind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode claims: %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeClaims decodes the payload segment of a compact token
// (header.payload.signature) into a ClaimSet.
//
// This is a codec, not a validator: the signature segment is ignored and
// never verified here. Callers that need verified tokens go through the
// bearer token parser instead; this path exists for payloads whose integrity
// is guaranteed upstream (the trusted proxy strips and re-injects them).
func DecodeClaims(token string) (*ClaimSet, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) < 2 {
		return nil, &DecodeError{
			Kind: DecodeMalformedStructure,
			Err:  fmt.Errorf("expected at least 2 segments, got %d", len(parts)),
		}
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return nil, &DecodeError{Kind: DecodeInvalidEncoding, Err: err}
	}

	raw := make(map[string]any)
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &DecodeError{Kind: DecodeInvalidPayload, Err: err}
	}

	cs := claimSetFromMap(raw)
	if cs.Subject == "" {
		return nil, &DecodeError{
			Kind: DecodeInvalidPayload,
			Err:  fmt.Errorf("missing sub claim"),
		}
	}

	return cs, nil
}

// EncodeClaims produces an unsigned compact token carrying the given claim
// set, with an "alg":"none" header and an empty signature segment. The output
// round-trips through DecodeClaims.
func EncodeClaims(cs *ClaimSet) (string, error) {
	payload := make(map[string]any, len(cs.Raw)+6)
	for k, v := range cs.Raw {
		payload[k] = v
	}
	payload["sub"] = cs.Subject
	if cs.Email != "" {
		payload["email"] = cs.Email
	}
	if cs.Name != "" {
		payload["name"] = cs.Name
	}
	if cs.PreferredUsername != "" {
		payload["preferred_username"] = cs.PreferredUsername
	}
	if cs.Issuer != "" {
		payload["iss"] = cs.Issuer
	}
	if len(cs.Audience) == 1 {
		payload["aud"] = cs.Audience[0]
	} else if len(cs.Audience) > 1 {
		payload["aud"] = cs.Audience
	}
	if cs.ExpiresAt != 0 {
		payload["exp"] = cs.ExpiresAt
	}
	if cs.IssuedAt != 0 {
		payload["iat"] = cs.IssuedAt
	}

	header, err := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(body) + ".", nil
}

// decodeSegment decodes a base64url segment, tolerating both padded and
// unpadded forms. Proxies are inconsistent about padding.
func decodeSegment(seg string) ([]byte, error) {
	seg = strings.TrimRight(seg, "=")
	return base64.RawURLEncoding.DecodeString(seg)
}

// claimSetFromMap picks the modeled claims out of a decoded payload.
// Wrong-typed optional claims are dropped rather than rejected.
func claimSetFromMap(raw map[string]any) *ClaimSet {
	cs := &ClaimSet{Raw: raw}

	cs.Subject, _ = raw["sub"].(string)
	cs.Email, _ = raw["email"].(string)
	cs.Name, _ = raw["name"].(string)
	cs.PreferredUsername, _ = raw["preferred_username"].(string)
	cs.Issuer, _ = raw["iss"].(string)

	switch aud := raw["aud"].(type) {
	case string:
		if aud != "" {
			cs.Audience = []string{aud}
		}
	case []any:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				cs.Audience = append(cs.Audience, s)
			}
		}
	}

	if exp, ok := raw["exp"].(float64); ok {
		cs.ExpiresAt = int64(exp)
	}
	if iat, ok := raw["iat"].(float64); ok {
		cs.IssuedAt = int64(iat)
	}

	return cs
}

// ClaimSetFromMap builds a ClaimSet from already-parsed claims, such as the
// output of a verifying token parser.
func ClaimSetFromMap(raw map[string]any) *ClaimSet {
	return claimSetFromMap(raw)
}

// Username derives the human-facing identifier from the claim set using the
// fixed precedence email > preferred_username > sub. The result is
// case-folded to match how principals are stored.
func (cs *ClaimSet) Username() string {
	switch {
	case cs.Email != "":
		return strings.ToLower(cs.Email)
	case cs.PreferredUsername != "":
		return strings.ToLower(cs.PreferredUsername)
	default:
		return strings.ToLower(cs.Subject)
	}
}

// ExtractGroups handles both flat and nested group claims.
// Supports:
//   - Flat arrays: ["dev-team", "contractors"]
//   - Nested objects: [{"name": "dev-team", "type": "team"}] with claimPath="name"
func ExtractGroups(claims map[string]any, claimField string, claimPath string) ([]string, error) {
	rawValue, ok := claims[claimField]
	if !ok {
		// Groups claim not present - empty list, not an error
		return []string{}, nil
	}

	// Try flat string array first: ["dev-team", "contractors"]
	if groups, ok := rawValue.([]any); ok {
		result := make([]string, 0, len(groups))
		for _, g := range groups {
			if str, ok := g.(string); ok {
				result = append(result, str)
			}
		}
		if len(result) > 0 {
			return result, nil
		}
	}

	// Try nested extraction if path provided: [{"name": "dev-team"}]
	if claimPath != "" {
		return extractNestedGroups(rawValue, claimPath)
	}

	return nil, fmt.Errorf("groups claim invalid format (expected []string or []object with path)")
}

// extractNestedGroups uses mapstructure to extract from nested objects.
// Only single-level paths like "name", "value", "id" are supported.
func extractNestedGroups(rawValue any, path string) ([]string, error) {
	if path == "name" || path == "value" || path == "id" {
		var objects []map[string]any
		if err := mapstructure.Decode(rawValue, &objects); err != nil {
			return nil, fmt.Errorf("failed to decode nested groups: %w", err)
		}

		result := make([]string, 0, len(objects))
		for _, obj := range objects {
			if val, ok := obj[path].(string); ok {
				result = append(result, val)
			}
		}
		return result, nil
	}

	return nil, fmt.Errorf("complex nested paths not supported (path: %s)", path)
}
