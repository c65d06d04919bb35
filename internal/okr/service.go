package okr

import (
	"context"
	"strings"
	"time"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/health"
	"github.com/alecgard/okrtracker/internal/validation"
)

const (
	listUpdatesPerKeyResult = 3
	getUpdatesPerKeyResult  = 5
	objectiveRecentUpdates  = 10
	defaultUnit             = "%"
)

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// Service orchestrates objectives, key results and narrative updates.
// Authorization against team roles happens before it is called; the one
// rule it owns is who may create which kind of objective.
type Service struct {
	repo     Repository
	now      func() time.Time
	onHealth func(health.Status)
}

// NewService creates a Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// ObserveHealth registers fn to be called with every evaluated health status.
func (s *Service) ObserveHealth(fn func(health.Status)) {
	s.onHealth = fn
}

// CanCreateObjective reports whether a member with role may create an
// objective. Any member may create a personal objective; team objectives
// need ADMIN or MEMBER.
func CanCreateObjective(role auth.Role, personal bool) bool {
	if personal {
		return role.Valid()
	}
	return role.In(auth.RoleAdmin, auth.RoleMember)
}

// --- Objectives ---

// CreateObjective creates an objective owned by ownerID in the team where
// the caller holds role.
func (s *Service) CreateObjective(ctx context.Context, ownerID string, role auth.Role, in CreateObjectiveInput) (*Objective, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if !CanCreateObjective(role, in.IsPersonal) {
		return nil, apperr.Forbidden("Only ADMIN or MEMBER can create team objectives. You can create personal objectives.")
	}

	start, err := parseDate("startDate", in.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("endDate", in.EndDate)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, apperr.BadRequest("End date must be after start date.")
	}

	status := StatusInProgress
	if in.Status != nil {
		status = ObjectiveStatus(*in.Status)
	}

	o, err := s.repo.CreateObjective(ctx, &Objective{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		StartDate:   start,
		EndDate:     end,
		Status:      status,
		IsPersonal:  in.IsPersonal,
		OwnerID:     ownerID,
		TeamID:      in.TeamID,
	})
	if err != nil {
		return nil, err
	}
	o.KeyResults = []*KeyResult{}
	return o, nil
}

// ListObjectives returns objectives in the user's teams, newest first,
// with their key results and health.
func (s *Service) ListObjectives(ctx context.Context, f ObjectiveFilter) ([]*Objective, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.BadRequest("Invalid status filter")
	}
	objectives, err := s.repo.ListObjectives(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, o := range objectives {
		if o.KeyResults, err = s.keyResultsWithHealth(ctx, o.ID, listUpdatesPerKeyResult); err != nil {
			return nil, err
		}
	}
	return objectives, nil
}

// GetObjective returns an objective with key results, health and its most
// recent narrative updates.
func (s *Service) GetObjective(ctx context.Context, id string) (*Objective, error) {
	o, err := s.repo.GetObjective(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.KeyResults, err = s.keyResultsWithHealth(ctx, o.ID, listUpdatesPerKeyResult); err != nil {
		return nil, err
	}
	if o.Updates, err = s.repo.ListUpdates(ctx, o.ID, objectiveRecentUpdates); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateObjective applies a partial edit. The resulting date range must
// still be valid.
func (s *Service) UpdateObjective(ctx context.Context, id string, in UpdateObjectiveInput) (*Objective, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetObjective(ctx, id)
	if err != nil {
		return nil, err
	}

	var patch ObjectivePatch
	start, end := existing.StartDate, existing.EndDate
	if in.StartDate != nil {
		if start, err = parseDate("startDate", *in.StartDate); err != nil {
			return nil, err
		}
		patch.StartDate = &start
	}
	if in.EndDate != nil {
		if end, err = parseDate("endDate", *in.EndDate); err != nil {
			return nil, err
		}
		patch.EndDate = &end
	}
	if !end.After(start) {
		return nil, apperr.BadRequest("End date must be after start date.")
	}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		patch.Title = &t
	}
	patch.Description = in.Description
	if in.Status != nil {
		st := ObjectiveStatus(*in.Status)
		patch.Status = &st
	}

	o, err := s.repo.UpdateObjective(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if o.KeyResults, err = s.keyResultsWithHealth(ctx, o.ID, listUpdatesPerKeyResult); err != nil {
		return nil, err
	}
	return o, nil
}

// DeleteObjective removes an objective and everything it owns.
func (s *Service) DeleteObjective(ctx context.Context, id string) error {
	return s.repo.DeleteObjective(ctx, id)
}

// --- Key results ---

// CreateKeyResult adds a key result and recomputes the objective's progress
// in the same transaction.
func (s *Service) CreateKeyResult(ctx context.Context, objectiveID string, in CreateKeyResultInput) (*KeyResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	kr := &KeyResult{
		ObjectiveID: objectiveID,
		Title:       strings.TrimSpace(in.Title),
		Target:      *in.Target,
		Unit:        defaultUnit,
	}
	if in.Current != nil {
		kr.Current = *in.Current
	}
	if in.Unit != nil && strings.TrimSpace(*in.Unit) != "" {
		kr.Unit = strings.TrimSpace(*in.Unit)
	}

	var created *KeyResult
	err := s.repo.InTx(ctx, func(repo Repository) error {
		if _, err := repo.GetObjective(ctx, objectiveID); err != nil {
			return err
		}
		var err error
		if created, err = repo.CreateKeyResult(ctx, kr); err != nil {
			return err
		}
		_, err = Recompute(ctx, repo, objectiveID)
		return err
	})
	if err != nil {
		return nil, err
	}

	created.Updates = []*KeyResultUpdate{}
	s.attachHealth(created)
	return created, nil
}

// ListKeyResults returns an objective's key results, oldest first, each with
// its latest updates and health.
func (s *Service) ListKeyResults(ctx context.Context, objectiveID string) ([]*KeyResult, error) {
	if _, err := s.repo.GetObjective(ctx, objectiveID); err != nil {
		return nil, err
	}
	return s.keyResultsWithHealth(ctx, objectiveID, listUpdatesPerKeyResult)
}

// GetKeyResult returns one key result with its latest updates and health.
func (s *Service) GetKeyResult(ctx context.Context, id string) (*KeyResult, error) {
	kr, err := s.repo.GetKeyResult(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadUpdates(ctx, []*KeyResult{kr}, getUpdatesPerKeyResult); err != nil {
		return nil, err
	}
	s.attachHealth(kr)
	return kr, nil
}

// UpdateKeyResult edits a key result. When current or blockers is supplied a
// KeyResultUpdate is appended. Objective progress is recomputed in the same
// transaction.
func (s *Service) UpdateKeyResult(ctx context.Context, id, authorID string, in UpdateKeyResultInput) (*KeyResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	patch := KeyResultPatch{Target: in.Target, Current: in.Current}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		patch.Title = &t
	}
	if in.Unit != nil {
		u := strings.TrimSpace(*in.Unit)
		if u == "" {
			u = defaultUnit
		}
		patch.Unit = &u
	}

	var updated *KeyResult
	err := s.repo.InTx(ctx, func(repo Repository) error {
		var err error
		if updated, err = repo.UpdateKeyResult(ctx, id, patch); err != nil {
			return err
		}
		if in.Current != nil || in.Blockers != nil {
			entry := &KeyResultUpdate{
				KeyResultID: updated.ID,
				Current:     updated.Current,
				Blockers:    NormalizeBlockers(in.Blockers),
			}
			if authorID != "" {
				entry.AuthorID = &authorID
			}
			if _, err := repo.AppendKeyResultUpdate(ctx, entry); err != nil {
				return err
			}
		}
		_, err = Recompute(ctx, repo, updated.ObjectiveID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.loadUpdates(ctx, []*KeyResult{updated}, getUpdatesPerKeyResult); err != nil {
		return nil, err
	}
	s.attachHealth(updated)
	return updated, nil
}

// DeleteKeyResult removes a key result and recomputes objective progress.
func (s *Service) DeleteKeyResult(ctx context.Context, id string) error {
	return s.repo.InTx(ctx, func(repo Repository) error {
		kr, err := repo.GetKeyResult(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.DeleteKeyResult(ctx, id); err != nil {
			return err
		}
		_, err = Recompute(ctx, repo, kr.ObjectiveID)
		return err
	})
}

// NormalizeBlockers trims b and maps blank values to nil.
func NormalizeBlockers(b *string) *string {
	if b == nil {
		return nil
	}
	t := strings.TrimSpace(*b)
	if t == "" {
		return nil
	}
	return &t
}

// --- Narrative updates ---

// CreateUpdate posts a narrative update on an objective.
func (s *Service) CreateUpdate(ctx context.Context, userID string, in CreateUpdateInput) (*Update, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetObjective(ctx, in.ObjectiveID); err != nil {
		return nil, err
	}
	return s.repo.CreateUpdate(ctx, &Update{
		ObjectiveID: in.ObjectiveID,
		UserID:      userID,
		Content:     strings.TrimSpace(in.Content),
		Progress:    in.Progress,
		Blockers:    NormalizeBlockers(in.Blockers),
	})
}

// ListUpdates returns every narrative update of an objective, newest first.
func (s *Service) ListUpdates(ctx context.Context, objectiveID string) ([]*Update, error) {
	if _, err := s.repo.GetObjective(ctx, objectiveID); err != nil {
		return nil, err
	}
	return s.repo.ListUpdates(ctx, objectiveID, 0)
}

// GetUpdate returns one narrative update.
func (s *Service) GetUpdate(ctx context.Context, id string) (*Update, error) {
	return s.repo.GetUpdate(ctx, id)
}

// EditUpdate applies a partial edit to a narrative update. A blank blockers
// value clears them.
func (s *Service) EditUpdate(ctx context.Context, id string, in EditUpdateInput) (*Update, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	patch := UpdatePatch{Progress: in.Progress}
	if in.Content != nil {
		c := strings.TrimSpace(*in.Content)
		patch.Content = &c
	}
	if in.Blockers != nil {
		patch.Blockers = NormalizeBlockers(in.Blockers)
		patch.ClearBlockers = patch.Blockers == nil
	}
	return s.repo.EditUpdate(ctx, id, patch)
}

// DeleteUpdate removes a narrative update.
func (s *Service) DeleteUpdate(ctx context.Context, id string) error {
	return s.repo.DeleteUpdate(ctx, id)
}

// Digest returns the objective with key results and all of its narrative
// updates, newest first, as consumed by the summary renderer.
func (s *Service) Digest(ctx context.Context, objectiveID string) (*Objective, []*Update, error) {
	o, err := s.repo.GetObjective(ctx, objectiveID)
	if err != nil {
		return nil, nil, err
	}
	if o.KeyResults, err = s.keyResultsWithHealth(ctx, o.ID, listUpdatesPerKeyResult); err != nil {
		return nil, nil, err
	}
	updates, err := s.repo.ListUpdates(ctx, o.ID, 0)
	if err != nil {
		return nil, nil, err
	}
	return o, updates, nil
}

// --- helpers ---

func (s *Service) keyResultsWithHealth(ctx context.Context, objectiveID string, perKR int) ([]*KeyResult, error) {
	krs, err := s.repo.ListKeyResults(ctx, objectiveID)
	if err != nil {
		return nil, err
	}
	if err := s.loadUpdates(ctx, krs, perKR); err != nil {
		return nil, err
	}
	for _, kr := range krs {
		s.attachHealth(kr)
	}
	if krs == nil {
		krs = []*KeyResult{}
	}
	return krs, nil
}

func (s *Service) loadUpdates(ctx context.Context, krs []*KeyResult, limit int) error {
	if len(krs) == 0 {
		return nil
	}
	ids := make([]string, len(krs))
	for i, kr := range krs {
		ids[i] = kr.ID
	}
	byKR, err := s.repo.RecentKeyResultUpdates(ctx, ids, limit)
	if err != nil {
		return err
	}
	for _, kr := range krs {
		kr.Updates = byKR[kr.ID]
		if kr.Updates == nil {
			kr.Updates = []*KeyResultUpdate{}
		}
	}
	return nil
}

func (s *Service) attachHealth(kr *KeyResult) {
	snap := health.Snapshot{Current: kr.Current, Target: kr.Target}
	for _, u := range kr.Updates {
		hu := health.Update{Current: u.Current, CreatedAt: u.CreatedAt}
		if u.Blockers != nil {
			hu.Blockers = *u.Blockers
		}
		snap.Updates = append(snap.Updates, hu)
	}
	v := health.Evaluate(snap, s.now())
	kr.Health = &v
	if s.onHealth != nil {
		s.onHealth(v.Status)
	}
}

func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.Invalid("Invalid date format. Please use YYYY-MM-DD.",
		apperr.FieldError{Field: field, Message: field + " must be a valid date"})
}
