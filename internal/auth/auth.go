package auth

import (
	"context"
	"fmt"
	"strings"
)

// Role is a user's privilege level within one team.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleViewer Role = "VIEWER"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleMember: 2,
	RoleAdmin:  3,
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q: must be one of ADMIN, MEMBER, VIEWER", s)
	}
	return r, nil
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank orders roles by privilege. Unknown roles rank 0.
func (r Role) Rank() int { return roleRank[r] }

// In reports whether r is one of allowed. An empty allow-list admits every role.
func (r Role) In(allowed ...Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}

// Membership is a principal's role in a single team.
type Membership struct {
	TeamID string `json:"teamId"`
	Role   Role   `json:"role"`
}

// Principal is the authenticated caller. Memberships are the ones known when
// the access token was issued; they may lag behind the database.
type Principal struct {
	ID          string
	Email       string
	Name        string
	Memberships []Membership
}

// TeamIDs returns the ids of the teams carried on the principal.
func (p *Principal) TeamIDs() []string {
	ids := make([]string, len(p.Memberships))
	for i, m := range p.Memberships {
		ids[i] = m.TeamID
	}
	return ids
}

// Identity is the stored user record the authentication middleware needs.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// IdentityLookup loads the user referenced by a verified token.
type IdentityLookup interface {
	LookupIdentity(ctx context.Context, userID string) (*Identity, error)
}
