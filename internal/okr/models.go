package okr

import (
	"time"

	"github.com/alecgard/okrtracker/internal/health"
)

// ObjectiveStatus is the workflow state of an objective.
type ObjectiveStatus string

const (
	StatusNotStarted ObjectiveStatus = "NOT_STARTED"
	StatusInProgress ObjectiveStatus = "IN_PROGRESS"
	StatusCompleted  ObjectiveStatus = "COMPLETED"
	StatusAtRisk     ObjectiveStatus = "AT_RISK"
	StatusBlocked    ObjectiveStatus = "BLOCKED"
)

// Valid reports whether s is a known status.
func (s ObjectiveStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusAtRisk, StatusBlocked:
		return true
	}
	return false
}

// UserRef is the public projection of a user embedded in responses.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TeamRef is the public projection of a team embedded in responses.
type TeamRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Objective is a team goal. Progress is derived from its key results.
type Objective struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	StartDate   time.Time       `json:"startDate"`
	EndDate     time.Time       `json:"endDate"`
	Progress    float64         `json:"progress"`
	Status      ObjectiveStatus `json:"status"`
	IsPersonal  bool            `json:"isPersonal"`
	OwnerID     string          `json:"ownerId"`
	TeamID      string          `json:"teamId"`
	Owner       *UserRef        `json:"owner,omitempty"`
	Team        *TeamRef        `json:"team,omitempty"`
	UpdateCount int             `json:"updateCount"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`

	KeyResults []*KeyResult `json:"keyResults"`
	Updates    []*Update    `json:"updates,omitempty"`
}

// KeyResult is a measurable outcome of an objective.
type KeyResult struct {
	ID          string    `json:"id"`
	ObjectiveID string    `json:"objectiveId"`
	Title       string    `json:"title"`
	Target      float64   `json:"target"`
	Current     float64   `json:"current"`
	Unit        string    `json:"unit"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Updates []*KeyResultUpdate `json:"updates"`
	Health  *health.Verdict    `json:"health,omitempty"`
}

// KeyResultUpdate is an immutable progress snapshot of a key result.
type KeyResultUpdate struct {
	ID          string    `json:"id"`
	KeyResultID string    `json:"keyResultId"`
	Current     float64   `json:"current"`
	Blockers    *string   `json:"blockers"`
	AuthorID    *string   `json:"authorId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Update is a free-text progress narrative attached to an objective.
type Update struct {
	ID          string    `json:"id"`
	ObjectiveID string    `json:"objectiveId"`
	UserID      string    `json:"userId"`
	Author      *UserRef  `json:"user,omitempty"`
	Content     string    `json:"content"`
	Progress    *float64  `json:"progress"`
	Blockers    *string   `json:"blockers"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ObjectiveFilter narrows ListObjectives. UserID restricts results to teams
// the user belongs to and is always required.
type ObjectiveFilter struct {
	UserID  string
	TeamID  string
	Status  ObjectiveStatus
	OwnerID string
}

// CreateObjectiveInput is the request body for creating an objective.
type CreateObjectiveInput struct {
	Title       string  `json:"title" validate:"notblank,min=3,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	TeamID      string  `json:"teamId" validate:"notblank"`
	StartDate   string  `json:"startDate" validate:"notblank"`
	EndDate     string  `json:"endDate" validate:"notblank"`
	Status      *string `json:"status" validate:"omitempty,oneof=NOT_STARTED IN_PROGRESS COMPLETED AT_RISK BLOCKED"`
	IsPersonal  bool    `json:"isPersonal"`
}

// UpdateObjectiveInput is the request body for editing an objective.
// Progress is derived and cannot be set.
type UpdateObjectiveInput struct {
	Title       *string `json:"title" validate:"omitnil,notblank,min=3,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	StartDate   *string `json:"startDate"`
	EndDate     *string `json:"endDate"`
	Status      *string `json:"status" validate:"omitempty,oneof=NOT_STARTED IN_PROGRESS COMPLETED AT_RISK BLOCKED"`
}

// ObjectivePatch is the storage-level partial update of an objective.
type ObjectivePatch struct {
	Title       *string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
	Status      *ObjectiveStatus
}

// CreateKeyResultInput is the request body for creating a key result.
type CreateKeyResultInput struct {
	Title   string   `json:"title" validate:"notblank,min=3,max=200"`
	Target  *float64 `json:"target" validate:"required,gte=0"`
	Current *float64 `json:"current" validate:"omitempty,gte=0"`
	Unit    *string  `json:"unit" validate:"omitempty,max=20"`
}

// UpdateKeyResultInput is the request body for editing a key result.
// Supplying current or blockers also records a KeyResultUpdate.
type UpdateKeyResultInput struct {
	Title    *string  `json:"title" validate:"omitnil,notblank,min=3,max=200"`
	Target   *float64 `json:"target" validate:"omitempty,gte=0"`
	Current  *float64 `json:"current" validate:"omitempty,gte=0"`
	Unit     *string  `json:"unit" validate:"omitempty,max=20"`
	Blockers *string  `json:"blockers" validate:"omitempty,max=500"`
}

// KeyResultPatch is the storage-level partial update of a key result.
type KeyResultPatch struct {
	Title   *string
	Target  *float64
	Current *float64
	Unit    *string
}

// CreateUpdateInput is the request body for posting a narrative update.
type CreateUpdateInput struct {
	ObjectiveID string   `json:"objectiveId" validate:"notblank"`
	Content     string   `json:"content" validate:"notblank,max=5000"`
	Progress    *float64 `json:"progress" validate:"omitempty,gte=0,lte=100"`
	Blockers    *string  `json:"blockers" validate:"omitempty,max=500"`
}

// EditUpdateInput is the request body for editing a narrative update.
type EditUpdateInput struct {
	Content  *string  `json:"content" validate:"omitnil,notblank,max=5000"`
	Progress *float64 `json:"progress" validate:"omitempty,gte=0,lte=100"`
	Blockers *string  `json:"blockers" validate:"omitempty,max=500"`
}

// UpdatePatch is the storage-level partial update of a narrative update.
// ClearBlockers removes the stored blockers.
type UpdatePatch struct {
	Content       *string
	Progress      *float64
	Blockers      *string
	ClearBlockers bool
}
