package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Principal represents a human identity known to the portal.
// Principals are provisioned out-of-band (seed migration or the users CLI);
// nothing in the request path ever inserts one.
//
// Username doubles as the primary human-facing identifier and is stored
// case-folded. Subject holds the provider's stable subject identifier once
// known; it starts out null for pre-provisioned principals and is backfilled
// on their first authenticated request.
type Principal struct {
	bun.BaseModel `bun:"table:principals,alias:p"`

	ID           string     `bun:"id,pk,type:uuid"`
	Subject      *string    `bun:"subject,unique"`
	Username     string     `bun:"username,notnull,unique"`
	Email        string     `bun:"email"`
	Name         string     `bun:"name"`
	Role         string     `bun:"role,notnull,default:'customer'"`
	PasswordHash *string    `bun:"password_hash"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	LastLoginAt  *time.Time `bun:"last_login_at"`
}

// HasSubject reports whether the provider subject has been recorded yet.
func (p *Principal) HasSubject() bool {
	return p != nil && p.Subject != nil && *p.Subject != ""
}

// SubjectOrEmpty returns the recorded provider subject, or "" when unset.
func (p *Principal) SubjectOrEmpty() string {
	if p == nil || p.Subject == nil {
		return ""
	}
	return *p.Subject
}

// Session binds an opaque browser session token to a principal and to the
// provider token triple obtained at login. Only the SHA-256 hash of the
// session token is stored; the raw value lives in the cookie.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID           string    `bun:"id,pk,type:uuid"`
	PrincipalID  string    `bun:"principal_id,notnull,type:uuid"`
	TokenHash    string    `bun:"token_hash,notnull,unique"`
	AccessToken  string    `bun:"access_token,type:text"`
	RefreshToken string    `bun:"refresh_token,type:text"`
	IDToken      string    `bun:"id_token,type:text"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
	LastUsedAt   time.Time `bun:"last_used_at,notnull,default:current_timestamp"`
	UserAgent    *string   `bun:"user_agent"`
	IPAddress    *string   `bun:"ip_address,type:inet"`
	Revoked      bool      `bun:"revoked,notnull,default:false"`
}

// ServiceType categorizes pre-shared service tokens. The set is closed;
// route groups pin the category they accept.
const (
	ServiceTypeSlackBot   = "slack_bot"
	ServiceTypeCICD       = "ci_cd"
	ServiceTypeMonitoring = "monitoring"
)

// ValidServiceType reports whether t is one of the known categories.
func ValidServiceType(t string) bool {
	switch t {
	case ServiceTypeSlackBot, ServiceTypeCICD, ServiceTypeMonitoring:
		return true
	}
	return false
}

// ServiceToken is a pre-shared secret for non-interactive callers
// (bots, pipelines, probes). Only the SHA-256 hash of the secret is stored.
type ServiceToken struct {
	bun.BaseModel `bun:"table:service_tokens,alias:st"`

	ID          string     `bun:"id,pk,type:uuid"`
	Name        string     `bun:"name,notnull,unique"`
	TokenHash   string     `bun:"token_hash,notnull,unique"`
	ServiceType string     `bun:"service_type,notnull"`
	IsActive    bool       `bun:"is_active,notnull,default:true"`
	ExpiresAt   *time.Time `bun:"expires_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	LastUsedAt  *time.Time `bun:"last_used_at"`
}

// Expired reports whether the token carries an expiry in the past.
func (t *ServiceToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
