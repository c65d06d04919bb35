package activity

import "time"

// Action names recorded by the API layer.
const (
	ActionCreated         = "created"
	ActionUpdated         = "updated"
	ActionDeleted         = "deleted"
	ActionMemberAdded     = "member_added"
	ActionMemberInvited   = "member_invited"
	ActionMemberRemoved   = "member_removed"
	ActionRoleChanged     = "role_changed"
	ActionInviteAccepted  = "invitation_accepted"
	ActionProgressUpdated = "progress_updated"
)

// Entry is one row of a team's activity log.
type Entry struct {
	ID           string         `json:"id"`
	TeamID       string         `json:"teamId"`
	ActorID      string         `json:"actorId"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Query selects a page of a team's activity, newest first.
type Query struct {
	TeamID string
	Cursor string
	Limit  int
}

// Page is a single page of results. NextCursor is empty on the last page.
type Page struct {
	Entries    []*Entry `json:"entries"`
	NextCursor string   `json:"nextCursor,omitempty"`
}
