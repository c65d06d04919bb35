// Package access resolves the caller's membership in the team that owns a
// resource and enforces per-route role allow-lists.
//
// Memberships carried on the access token are trusted as a cache. A miss
// falls back to a MembershipLookup and the result is remembered on the
// request's Scope, never on the Principal itself.
package access

import (
	"context"
	"fmt"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
)

// MembershipLookup finds the stored membership of a user in a team. It
// returns nil and no error when there is none.
type MembershipLookup interface {
	FindMembership(ctx context.Context, userID, teamID string) (*auth.Membership, error)
}

// Scope is the per-request authorization state: the principal's memberships
// as of authentication plus any resolved during this request.
type Scope struct {
	principal *auth.Principal
	resolved  []auth.Membership
}

// NewScope creates a Scope for p. p is not modified by the Scope.
func NewScope(p *auth.Principal) *Scope {
	return &Scope{principal: p}
}

// Principal returns the authenticated caller.
func (s *Scope) Principal() *auth.Principal { return s.principal }

// Membership returns the known membership for teamID.
func (s *Scope) Membership(teamID string) (auth.Membership, bool) {
	for _, m := range s.principal.Memberships {
		if m.TeamID == teamID {
			return m, true
		}
	}
	for _, m := range s.resolved {
		if m.TeamID == teamID {
			return m, true
		}
	}
	return auth.Membership{}, false
}

// Memberships returns every membership known to the scope.
func (s *Scope) Memberships() []auth.Membership {
	out := make([]auth.Membership, 0, len(s.principal.Memberships)+len(s.resolved))
	out = append(out, s.principal.Memberships...)
	return append(out, s.resolved...)
}

func (s *Scope) remember(m auth.Membership) {
	if _, ok := s.Membership(m.TeamID); ok {
		return
	}
	s.resolved = append(s.resolved, m)
}

// Resolver authorizes principals against team memberships.
type Resolver struct {
	lookup MembershipLookup
	onDeny func(reason string)
}

// NewResolver creates a Resolver. onDeny, if set, is called with a short
// reason for every denial.
func NewResolver(lookup MembershipLookup, onDeny func(reason string)) *Resolver {
	return &Resolver{lookup: lookup, onDeny: onDeny}
}

func (r *Resolver) deny(reason string, err *apperr.Error) error {
	if r.onDeny != nil {
		r.onDeny(reason)
	}
	return err
}

// Authorize resolves the scope's membership in teamID and checks its role
// against allowed. An empty allow-list admits any member.
func (r *Resolver) Authorize(ctx context.Context, scope *Scope, teamID string, allowed ...auth.Role) (auth.Membership, error) {
	if teamID == "" {
		return auth.Membership{}, r.deny("missing_team", apperr.BadRequest("Team ID is required"))
	}

	m, ok := scope.Membership(teamID)
	if !ok {
		found, err := r.lookup.FindMembership(ctx, scope.principal.ID, teamID)
		if err != nil {
			return auth.Membership{}, fmt.Errorf("looking up membership: %w", err)
		}
		if found == nil {
			return auth.Membership{}, r.deny("not_member", apperr.Forbidden("You are not a member of this team"))
		}
		m = *found
		scope.remember(m)
	}

	if !m.Role.In(allowed...) {
		return auth.Membership{}, r.deny("role", apperr.Forbidden("You do not have permission to perform this action"))
	}
	return m, nil
}
