package api

import (
	"log/slog"
	"net/http"

	"github.com/alecgard/okrtracker/internal/activity"
	"github.com/alecgard/okrtracker/internal/auth"
)

// auditor writes an audit log line for every mutation and, when the
// mutation belongs to a live team, an activity entry.
type auditor struct {
	recorder ActivityRecorder
}

// log emits the audit line and records activity for teamID. An empty
// teamID skips the activity entry, which is what team deletion needs.
func (a auditor) log(r *http.Request, teamID, action, resourceType, resourceID string, metadata map[string]any) {
	attrs := []any{
		"action", action,
		"resource_type", resourceType,
		"resource_id", resourceID,
		"team_id", teamID,
		"ip", clientIP(r),
		"request_id", RequestIDFromContext(r.Context()),
	}

	var actorID string
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		actorID = p.ID
		attrs = append(attrs, "user_id", p.ID, "user_email", p.Email)
	}
	slog.Info("audit", attrs...)

	if a.recorder == nil || teamID == "" {
		return
	}
	a.recorder.Record(activity.Entry{
		TeamID:       teamID,
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
	})
}
