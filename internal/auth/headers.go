package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Header names injected by the trusted load balancer in front of the portal.
// The proxy strips any client-supplied copies before re-injecting its own,
// which is what makes decoding without signature verification safe here.
const (
	HeaderIdentityData = "x-amzn-oidc-data"
	HeaderIdentityID   = "x-amzn-oidc-identity"
	HeaderAccessToken  = "x-amzn-oidc-accesstoken"
)

// HeaderIdentity is the identity extracted from proxy headers, before any
// database lookup.
type HeaderIdentity struct {
	Subject  string
	Email    string
	Name     string
	Username string
	Groups   []string
}

// HeaderResult is the outcome of validating the proxy identity headers.
//
// Exactly one of three shapes comes back:
//   - Public:   no identity headers at all; the request proceeds anonymously.
//   - Valid:    headers present and coherent; Identity is set.
//   - rejected: headers present but broken; Errors says why. Never conflate
//     this with Public: an absent header is fine, a bad one is an attack
//     or a misconfiguration.
type HeaderResult struct {
	Valid    bool
	Public   bool
	Errors   []string
	Warnings []string
	Identity *HeaderIdentity
}

// HeaderValidator validates and extracts proxy-injected identity headers.
type HeaderValidator struct {
	// IssuerFragment, when non-empty, must occur in the iss claim.
	IssuerFragment string

	// GroupsClaimField / GroupsClaimPath configure group extraction.
	GroupsClaimField string
	GroupsClaimPath  string

	// Strict escalates consistency warnings to rejections.
	Strict bool

	// now is overridable for tests.
	now func() time.Time
}

// NewHeaderValidator builds a validator for the configured provider shape.
func NewHeaderValidator(issuerFragment, groupsField, groupsPath string, strict bool) *HeaderValidator {
	return &HeaderValidator{
		IssuerFragment:   issuerFragment,
		GroupsClaimField: groupsField,
		GroupsClaimPath:  groupsPath,
		Strict:           strict,
		now:              time.Now,
	}
}

// Validate inspects the identity headers on h.
func (v *HeaderValidator) Validate(h http.Header) HeaderResult {
	data := strings.TrimSpace(h.Get(HeaderIdentityData))
	if data == "" {
		// No identity headers: public request, zero errors.
		return HeaderResult{Valid: true, Public: true}
	}

	var result HeaderResult

	cs, err := DecodeClaims(data)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("identity data header: %v", err))
		return result
	}

	// email is required here as a business rule: principal lookup and the
	// username derivation both key on it. sub is enforced by the codec.
	if cs.Email == "" {
		result.Errors = append(result.Errors, "email claim is required")
	}

	// The issuer check only applies when the claim is present; some
	// providers omit iss from the data payload entirely.
	if v.IssuerFragment != "" && cs.Issuer != "" && !strings.Contains(cs.Issuer, v.IssuerFragment) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("issuer %q does not match expected provider", cs.Issuer))
	}

	now := time.Now
	if v.now != nil {
		now = v.now
	}
	if cs.ExpiresAt != 0 && time.Unix(cs.ExpiresAt, 0).Before(now()) {
		result.Errors = append(result.Errors, "identity data token expired")
	}

	identity := &HeaderIdentity{
		Subject:  cs.Subject,
		Email:    cs.Email,
		Name:     cs.Name,
		Username: cs.Username(),
	}

	if groups, err := ExtractGroups(cs.Raw, v.GroupsClaimField, v.GroupsClaimPath); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("groups claim: %v", err))
	} else {
		identity.Groups = groups
	}

	// Companion identity header: absence is worth noting, and when present
	// it must agree with the claims.
	if id := strings.TrimSpace(h.Get(HeaderIdentityID)); id == "" {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s header absent", HeaderIdentityID))
	} else {
		folded := strings.ToLower(id)
		if folded != identity.Username && !strings.EqualFold(id, cs.Email) {
			result.Errors = append(result.Errors,
				"identity header does not match identity data claims")
		}
	}

	// Companion access token is advisory: absence or a broken one is
	// suspicious but not fatal unless strict mode says otherwise.
	if at := strings.TrimSpace(h.Get(HeaderAccessToken)); at == "" {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s header absent", HeaderAccessToken))
	} else {
		atClaims, err := DecodeClaims(at)
		switch {
		case err != nil:
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("access token header: %v", err))
		case atClaims.Subject != cs.Subject:
			result.Warnings = append(result.Warnings,
				"access token subject differs from identity data subject")
		}
	}

	if v.Strict && len(result.Warnings) > 0 {
		result.Errors = append(result.Errors, result.Warnings...)
		result.Warnings = nil
	}

	if len(result.Errors) > 0 {
		return result
	}

	result.Valid = true
	result.Identity = identity
	return result
}
