package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/db/models"
	"github.com/canopyops/portal/internal/repository"
)

// ErrPrincipalNotFound is returned when no principal matches the asserted
// identity. Authentication proves who the caller is at the provider; this
// error means the portal has never been told about them. Resolution never
// creates principals: provisioning is an administrative act.
var ErrPrincipalNotFound = errors.New("principal not found")

// Resolver maps an asserted provider identity to a stored principal.
type Resolver struct {
	principals repository.PrincipalRepository
}

// NewResolver creates a resolver over the principal repository.
func NewResolver(principals repository.PrincipalRepository) *Resolver {
	return &Resolver{principals: principals}
}

// Resolve looks up the principal for an asserted identity.
//
// Lookup order is fixed:
//  1. provider subject, when the claims carried one
//  2. username equal to the case-folded email claim
//  3. username equal to the derived username
//
// A hit through email or username on a principal with no recorded subject
// triggers a best-effort subject backfill, linking the provider identity to
// the pre-provisioned row for future subject lookups. Backfill failure never
// fails the request.
func (r *Resolver) Resolve(ctx context.Context, ident *auth.HeaderIdentity) (*models.Principal, error) {
	if ident.Subject != "" {
		p, err := r.principals.GetBySubject(ctx, ident.Subject)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("resolve by subject: %w", err)
		}
	}

	lookups := make([]string, 0, 2)
	if ident.Email != "" {
		lookups = append(lookups, strings.ToLower(ident.Email))
	}
	if ident.Username != "" && !contains(lookups, strings.ToLower(ident.Username)) {
		lookups = append(lookups, strings.ToLower(ident.Username))
	}

	for _, username := range lookups {
		p, err := r.principals.GetByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("resolve by username: %w", err)
		}

		if ident.Subject != "" && !p.HasSubject() {
			bestEffort("subject backfill", func() error {
				return r.principals.SetSubject(ctx, p.ID, ident.Subject)
			})
		}
		return p, nil
	}

	return nil, ErrPrincipalNotFound
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
