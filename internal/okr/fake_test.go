package okr

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alecgard/okrtracker/internal/apperr"
)

// memRepo is an in-memory Repository for service tests. Transactions are
// emulated by snapshotting state and restoring it when fn fails.
type memRepo struct {
	seq        int
	clock      time.Time
	objectives map[string]*Objective
	krs        map[string]*KeyResult
	krUpdates  []*KeyResultUpdate
	updates    map[string]*Update

	progressWrites int
	failAppend     bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		clock:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		objectives: map[string]*Objective{},
		krs:        map[string]*KeyResult{},
		updates:    map[string]*Update{},
	}
}

func (m *memRepo) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memRepo) InTx(ctx context.Context, fn func(Repository) error) error {
	objectives := map[string]Objective{}
	for k, v := range m.objectives {
		objectives[k] = *v
	}
	krs := map[string]KeyResult{}
	for k, v := range m.krs {
		krs[k] = *v
	}
	krUpdates := append([]*KeyResultUpdate(nil), m.krUpdates...)

	if err := fn(m); err != nil {
		m.objectives = map[string]*Objective{}
		for k, v := range objectives {
			v := v
			m.objectives[k] = &v
		}
		m.krs = map[string]*KeyResult{}
		for k, v := range krs {
			v := v
			m.krs[k] = &v
		}
		m.krUpdates = krUpdates
		return err
	}
	return nil
}

func (m *memRepo) CreateObjective(_ context.Context, o *Objective) (*Objective, error) {
	c := *o
	c.ID = m.nextID("obj")
	c.CreatedAt = m.tick()
	c.UpdatedAt = c.CreatedAt
	m.objectives[c.ID] = &c
	out := c
	return &out, nil
}

func (m *memRepo) GetObjective(_ context.Context, id string) (*Objective, error) {
	o, ok := m.objectives[id]
	if !ok {
		return nil, apperr.NotFound("Objective not found")
	}
	c := *o
	return &c, nil
}

func (m *memRepo) ListObjectives(_ context.Context, f ObjectiveFilter) ([]*Objective, error) {
	out := []*Objective{}
	for _, o := range m.objectives {
		if f.TeamID != "" && o.TeamID != f.TeamID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		c := *o
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepo) UpdateObjective(_ context.Context, id string, p ObjectivePatch) (*Objective, error) {
	o, ok := m.objectives[id]
	if !ok {
		return nil, apperr.NotFound("Objective not found")
	}
	if p.Title != nil {
		o.Title = *p.Title
	}
	if p.Description != nil {
		o.Description = p.Description
	}
	if p.StartDate != nil {
		o.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		o.EndDate = *p.EndDate
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	c := *o
	return &c, nil
}

func (m *memRepo) DeleteObjective(_ context.Context, id string) error {
	if _, ok := m.objectives[id]; !ok {
		return apperr.NotFound("Objective not found")
	}
	delete(m.objectives, id)
	return nil
}

func (m *memRepo) SetObjectiveProgress(_ context.Context, id string, progress float64) error {
	o, ok := m.objectives[id]
	if !ok {
		return apperr.NotFound("Objective not found")
	}
	m.progressWrites++
	o.Progress = progress
	return nil
}

func (m *memRepo) CreateKeyResult(_ context.Context, kr *KeyResult) (*KeyResult, error) {
	if _, ok := m.objectives[kr.ObjectiveID]; !ok {
		return nil, apperr.BadRequest("Referenced record does not exist")
	}
	c := *kr
	c.ID = m.nextID("kr")
	c.CreatedAt = m.tick()
	c.UpdatedAt = c.CreatedAt
	m.krs[c.ID] = &c
	out := c
	return &out, nil
}

func (m *memRepo) GetKeyResult(_ context.Context, id string) (*KeyResult, error) {
	kr, ok := m.krs[id]
	if !ok {
		return nil, apperr.NotFound("Key result not found")
	}
	c := *kr
	return &c, nil
}

func (m *memRepo) ListKeyResults(_ context.Context, objectiveID string) ([]*KeyResult, error) {
	out := []*KeyResult{}
	for _, kr := range m.krs {
		if kr.ObjectiveID == objectiveID {
			c := *kr
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepo) UpdateKeyResult(_ context.Context, id string, p KeyResultPatch) (*KeyResult, error) {
	kr, ok := m.krs[id]
	if !ok {
		return nil, apperr.NotFound("Key result not found")
	}
	if p.Title != nil {
		kr.Title = *p.Title
	}
	if p.Target != nil {
		kr.Target = *p.Target
	}
	if p.Current != nil {
		kr.Current = *p.Current
	}
	if p.Unit != nil {
		kr.Unit = *p.Unit
	}
	c := *kr
	return &c, nil
}

func (m *memRepo) DeleteKeyResult(_ context.Context, id string) error {
	if _, ok := m.krs[id]; !ok {
		return apperr.NotFound("Key result not found")
	}
	delete(m.krs, id)
	return nil
}

func (m *memRepo) AppendKeyResultUpdate(_ context.Context, u *KeyResultUpdate) (*KeyResultUpdate, error) {
	if m.failAppend {
		return nil, fmt.Errorf("insert failed")
	}
	c := *u
	c.ID = m.nextID("kru")
	c.CreatedAt = m.tick()
	m.krUpdates = append(m.krUpdates, &c)
	return &c, nil
}

func (m *memRepo) RecentKeyResultUpdates(_ context.Context, ids []string, limit int) (map[string][]*KeyResultUpdate, error) {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := map[string][]*KeyResultUpdate{}
	for i := len(m.krUpdates) - 1; i >= 0; i-- {
		u := m.krUpdates[i]
		if want[u.KeyResultID] && len(out[u.KeyResultID]) < limit {
			out[u.KeyResultID] = append(out[u.KeyResultID], u)
		}
	}
	return out, nil
}

func (m *memRepo) CreateUpdate(_ context.Context, u *Update) (*Update, error) {
	c := *u
	c.ID = m.nextID("up")
	c.CreatedAt = m.tick()
	c.UpdatedAt = c.CreatedAt
	m.updates[c.ID] = &c
	out := c
	return &out, nil
}

func (m *memRepo) GetUpdate(_ context.Context, id string) (*Update, error) {
	u, ok := m.updates[id]
	if !ok {
		return nil, apperr.NotFound("Update not found")
	}
	c := *u
	return &c, nil
}

func (m *memRepo) ListUpdates(_ context.Context, objectiveID string, limit int) ([]*Update, error) {
	out := []*Update{}
	for _, u := range m.updates {
		if u.ObjectiveID == objectiveID {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) EditUpdate(_ context.Context, id string, p UpdatePatch) (*Update, error) {
	u, ok := m.updates[id]
	if !ok {
		return nil, apperr.NotFound("Update not found")
	}
	if p.Content != nil {
		u.Content = *p.Content
	}
	if p.Progress != nil {
		u.Progress = p.Progress
	}
	if p.ClearBlockers {
		u.Blockers = nil
	} else if p.Blockers != nil {
		u.Blockers = p.Blockers
	}
	c := *u
	return &c, nil
}

func (m *memRepo) DeleteUpdate(_ context.Context, id string) error {
	if _, ok := m.updates[id]; !ok {
		return apperr.NotFound("Update not found")
	}
	delete(m.updates, id)
	return nil
}
