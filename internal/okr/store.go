package okr

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecgard/okrtracker/internal/access"
	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/database"
	"github.com/jackc/pgx/v5"
)

const (
	msgObjectiveNotFound = "Objective not found"
	msgKeyResultNotFound = "Key result not found"
	msgUpdateNotFound    = "Update not found"
	msgTeamNotFound      = "Team not found"
)

// Store provides Postgres persistence for objectives, key results and
// updates. It implements Repository and access.OwnerLookup.
type Store struct {
	db    database.DBTX
	begin database.TxBeginner
}

// NewStore creates a Store on a pool (or anything that can begin transactions).
func NewStore(db interface {
	database.DBTX
	database.TxBeginner
}) *Store {
	return &Store{db: db, begin: db}
}

// InTx runs fn with a Store bound to one transaction. Nested calls reuse the
// outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(Repository) error) error {
	if s.begin == nil {
		return fn(s)
	}
	return database.WithTx(ctx, s.begin, func(tx pgx.Tx) error {
		return fn(&Store{db: tx})
	})
}

// OwningTeamID returns the team that owns the given resource.
func (s *Store) OwningTeamID(ctx context.Context, kind access.Kind, id string) (string, error) {
	var query, notFound string
	switch kind {
	case access.KindTeam:
		query, notFound = `SELECT id FROM teams WHERE id = $1`, msgTeamNotFound
	case access.KindObjective:
		query, notFound = `SELECT team_id FROM objectives WHERE id = $1`, msgObjectiveNotFound
	case access.KindKeyResult:
		query, notFound = `SELECT o.team_id FROM key_results kr
			JOIN objectives o ON o.id = kr.objective_id WHERE kr.id = $1`, msgKeyResultNotFound
	case access.KindUpdate:
		query, notFound = `SELECT o.team_id FROM updates u
			JOIN objectives o ON o.id = u.objective_id WHERE u.id = $1`, msgUpdateNotFound
	default:
		return "", fmt.Errorf("unknown resource kind %q", kind)
	}

	var teamID string
	if err := s.db.QueryRow(ctx, query, id).Scan(&teamID); err != nil {
		return "", database.WrapError(err, notFound)
	}
	return teamID, nil
}

// --- Objectives ---

const objectiveColumns = `o.id, o.title, o.description, o.start_date, o.end_date, o.progress,
	o.status, o.is_personal, o.owner_id, o.team_id, o.created_at, o.updated_at,
	u.name, u.email, t.name,
	(SELECT count(*) FROM updates up WHERE up.objective_id = o.id)`

const objectiveFrom = `FROM objectives o
	JOIN users u ON u.id = o.owner_id
	JOIN teams t ON t.id = o.team_id`

func scanObjective(row pgx.Row) (*Objective, error) {
	var o Objective
	owner := &UserRef{}
	team := &TeamRef{}
	err := row.Scan(
		&o.ID, &o.Title, &o.Description, &o.StartDate, &o.EndDate, &o.Progress,
		&o.Status, &o.IsPersonal, &o.OwnerID, &o.TeamID, &o.CreatedAt, &o.UpdatedAt,
		&owner.Name, &owner.Email, &team.Name,
		&o.UpdateCount,
	)
	if err != nil {
		return nil, err
	}
	owner.ID = o.OwnerID
	team.ID = o.TeamID
	o.Owner, o.Team = owner, team
	return &o, nil
}

// CreateObjective inserts an objective with zero progress.
func (s *Store) CreateObjective(ctx context.Context, o *Objective) (*Objective, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO objectives (title, description, start_date, end_date, progress, status, is_personal, owner_id, team_id)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8)
		 RETURNING id`,
		o.Title, o.Description, o.StartDate, o.EndDate, o.Status, o.IsPersonal, o.OwnerID, o.TeamID,
	).Scan(&id)
	if err != nil {
		return nil, database.WrapError(err, msgObjectiveNotFound)
	}
	return s.GetObjective(ctx, id)
}

// GetObjective retrieves an objective by id.
func (s *Store) GetObjective(ctx context.Context, id string) (*Objective, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE o.id = $1`, objectiveColumns, objectiveFrom)
	o, err := scanObjective(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, database.WrapError(err, msgObjectiveNotFound)
	}
	return o, nil
}

// ListObjectives returns objectives in the filter user's teams, newest first.
func (s *Store) ListObjectives(ctx context.Context, f ObjectiveFilter) ([]*Objective, error) {
	args := []interface{}{f.UserID}
	argIdx := 2
	whereClauses := []string{"o.team_id IN (SELECT team_id FROM team_members WHERE user_id = $1)"}

	if f.TeamID != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("o.team_id = $%d", argIdx))
		args = append(args, f.TeamID)
		argIdx++
	}
	if f.Status != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("o.status = $%d", argIdx))
		args = append(args, f.Status)
		argIdx++
	}
	if f.OwnerID != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("o.owner_id = $%d", argIdx))
		args = append(args, f.OwnerID)
	}

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY o.created_at DESC, o.id DESC`,
		objectiveColumns, objectiveFrom, strings.Join(whereClauses, " AND "))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing objectives: %w", err)
	}
	defer rows.Close()

	objectives := []*Objective{}
	for rows.Next() {
		o, err := scanObjective(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning objective: %w", err)
		}
		objectives = append(objectives, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating objectives: %w", err)
	}
	return objectives, nil
}

// UpdateObjective applies a partial update and returns the updated row.
func (s *Store) UpdateObjective(ctx context.Context, id string, p ObjectivePatch) (*Objective, error) {
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	add := func(col string, v interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, v)
		argIdx++
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.StartDate != nil {
		add("start_date", *p.StartDate)
	}
	if p.EndDate != nil {
		add("end_date", *p.EndDate)
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if len(setClauses) == 0 {
		return s.GetObjective(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")

	query := fmt.Sprintf(`UPDATE objectives SET %s WHERE id = $%d`, strings.Join(setClauses, ", "), argIdx)
	args = append(args, id)

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, database.WrapError(err, msgObjectiveNotFound)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound(msgObjectiveNotFound)
	}
	return s.GetObjective(ctx, id)
}

// DeleteObjective removes an objective; key results and updates cascade.
func (s *Store) DeleteObjective(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM objectives WHERE id = $1`, id)
	if err != nil {
		return database.WrapError(err, msgObjectiveNotFound)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgObjectiveNotFound)
	}
	return nil
}

// SetObjectiveProgress persists derived progress.
func (s *Store) SetObjectiveProgress(ctx context.Context, objectiveID string, progress float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE objectives SET progress = $1, updated_at = now() WHERE id = $2`, progress, objectiveID)
	if err != nil {
		return database.WrapError(err, msgObjectiveNotFound)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgObjectiveNotFound)
	}
	return nil
}

// --- Key results ---

const keyResultColumns = `id, objective_id, title, target, current, unit, created_at, updated_at`

func scanKeyResult(row pgx.Row) (*KeyResult, error) {
	var kr KeyResult
	err := row.Scan(&kr.ID, &kr.ObjectiveID, &kr.Title, &kr.Target, &kr.Current, &kr.Unit, &kr.CreatedAt, &kr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &kr, nil
}

// CreateKeyResult inserts a key result.
func (s *Store) CreateKeyResult(ctx context.Context, kr *KeyResult) (*KeyResult, error) {
	query := fmt.Sprintf(`INSERT INTO key_results (objective_id, title, target, current, unit)
		VALUES ($1, $2, $3, $4, $5) RETURNING %s`, keyResultColumns)
	created, err := scanKeyResult(s.db.QueryRow(ctx, query, kr.ObjectiveID, kr.Title, kr.Target, kr.Current, kr.Unit))
	if err != nil {
		return nil, database.WrapError(err, msgObjectiveNotFound)
	}
	return created, nil
}

// GetKeyResult retrieves a key result by id.
func (s *Store) GetKeyResult(ctx context.Context, id string) (*KeyResult, error) {
	query := fmt.Sprintf(`SELECT %s FROM key_results WHERE id = $1`, keyResultColumns)
	kr, err := scanKeyResult(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, database.WrapError(err, msgKeyResultNotFound)
	}
	return kr, nil
}

// ListKeyResults returns an objective's key results, oldest first.
func (s *Store) ListKeyResults(ctx context.Context, objectiveID string) ([]*KeyResult, error) {
	query := fmt.Sprintf(`SELECT %s FROM key_results WHERE objective_id = $1 ORDER BY created_at ASC, id ASC`, keyResultColumns)
	rows, err := s.db.Query(ctx, query, objectiveID)
	if err != nil {
		return nil, fmt.Errorf("listing key results: %w", err)
	}
	defer rows.Close()

	krs := []*KeyResult{}
	for rows.Next() {
		kr, err := scanKeyResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning key result: %w", err)
		}
		krs = append(krs, kr)
	}
	return krs, rows.Err()
}

// UpdateKeyResult applies a partial update and returns the updated row.
func (s *Store) UpdateKeyResult(ctx context.Context, id string, p KeyResultPatch) (*KeyResult, error) {
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	add := func(col string, v interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, v)
		argIdx++
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Target != nil {
		add("target", *p.Target)
	}
	if p.Current != nil {
		add("current", *p.Current)
	}
	if p.Unit != nil {
		add("unit", *p.Unit)
	}
	if len(setClauses) == 0 {
		return s.GetKeyResult(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")

	query := fmt.Sprintf(`UPDATE key_results SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, keyResultColumns)
	args = append(args, id)

	kr, err := scanKeyResult(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, database.WrapError(err, msgKeyResultNotFound)
	}
	return kr, nil
}

// DeleteKeyResult removes a key result and its update history.
func (s *Store) DeleteKeyResult(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM key_results WHERE id = $1`, id)
	if err != nil {
		return database.WrapError(err, msgKeyResultNotFound)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgKeyResultNotFound)
	}
	return nil
}

const keyResultUpdateColumns = `id, key_result_id, current, blockers, author_id, created_at`

func scanKeyResultUpdate(row pgx.Row) (*KeyResultUpdate, error) {
	var u KeyResultUpdate
	if err := row.Scan(&u.ID, &u.KeyResultID, &u.Current, &u.Blockers, &u.AuthorID, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// AppendKeyResultUpdate records a progress snapshot.
func (s *Store) AppendKeyResultUpdate(ctx context.Context, u *KeyResultUpdate) (*KeyResultUpdate, error) {
	query := fmt.Sprintf(`INSERT INTO key_result_updates (key_result_id, current, blockers, author_id)
		VALUES ($1, $2, $3, $4) RETURNING %s`, keyResultUpdateColumns)
	created, err := scanKeyResultUpdate(s.db.QueryRow(ctx, query, u.KeyResultID, u.Current, u.Blockers, u.AuthorID))
	if err != nil {
		return nil, database.WrapError(err, msgKeyResultNotFound)
	}
	return created, nil
}

// RecentKeyResultUpdates returns up to limit updates per key result, newest first.
func (s *Store) RecentKeyResultUpdates(ctx context.Context, keyResultIDs []string, limit int) (map[string][]*KeyResultUpdate, error) {
	out := make(map[string][]*KeyResultUpdate, len(keyResultIDs))
	if len(keyResultIDs) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM (
			SELECT %s, row_number() OVER (PARTITION BY key_result_id ORDER BY created_at DESC, id DESC) AS rn
			FROM key_result_updates WHERE key_result_id = ANY($1)
		) ranked
		WHERE rn <= $2
		ORDER BY key_result_id, created_at DESC, id DESC`, keyResultUpdateColumns, keyResultUpdateColumns)

	rows, err := s.db.Query(ctx, query, keyResultIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("listing key result updates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanKeyResultUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning key result update: %w", err)
		}
		out[u.KeyResultID] = append(out[u.KeyResultID], u)
	}
	return out, rows.Err()
}

// --- Narrative updates ---

const updateColumns = `up.id, up.objective_id, up.user_id, up.content, up.progress, up.blockers,
	up.created_at, up.updated_at, u.name, u.email`

const updateFrom = `FROM updates up JOIN users u ON u.id = up.user_id`

func scanUpdate(row pgx.Row) (*Update, error) {
	var up Update
	author := &UserRef{}
	err := row.Scan(&up.ID, &up.ObjectiveID, &up.UserID, &up.Content, &up.Progress, &up.Blockers,
		&up.CreatedAt, &up.UpdatedAt, &author.Name, &author.Email)
	if err != nil {
		return nil, err
	}
	author.ID = up.UserID
	up.Author = author
	return &up, nil
}

// CreateUpdate inserts a narrative update.
func (s *Store) CreateUpdate(ctx context.Context, up *Update) (*Update, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO updates (objective_id, user_id, content, progress, blockers)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		up.ObjectiveID, up.UserID, up.Content, up.Progress, up.Blockers,
	).Scan(&id)
	if err != nil {
		return nil, database.WrapError(err, msgObjectiveNotFound)
	}
	return s.GetUpdate(ctx, id)
}

// GetUpdate retrieves a narrative update by id.
func (s *Store) GetUpdate(ctx context.Context, id string) (*Update, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE up.id = $1`, updateColumns, updateFrom)
	up, err := scanUpdate(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, database.WrapError(err, msgUpdateNotFound)
	}
	return up, nil
}

// ListUpdates returns an objective's narrative updates, newest first.
func (s *Store) ListUpdates(ctx context.Context, objectiveID string, limit int) ([]*Update, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE up.objective_id = $1 ORDER BY up.created_at DESC, up.id DESC`,
		updateColumns, updateFrom)
	args := []interface{}{objectiveID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing updates: %w", err)
	}
	defer rows.Close()

	updates := []*Update{}
	for rows.Next() {
		up, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning update: %w", err)
		}
		updates = append(updates, up)
	}
	return updates, rows.Err()
}

// EditUpdate applies a partial update to a narrative update.
func (s *Store) EditUpdate(ctx context.Context, id string, p UpdatePatch) (*Update, error) {
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	if p.Content != nil {
		setClauses = append(setClauses, fmt.Sprintf("content = $%d", argIdx))
		args = append(args, *p.Content)
		argIdx++
	}
	if p.Progress != nil {
		setClauses = append(setClauses, fmt.Sprintf("progress = $%d", argIdx))
		args = append(args, *p.Progress)
		argIdx++
	}
	if p.ClearBlockers {
		setClauses = append(setClauses, "blockers = NULL")
	} else if p.Blockers != nil {
		setClauses = append(setClauses, fmt.Sprintf("blockers = $%d", argIdx))
		args = append(args, *p.Blockers)
		argIdx++
	}
	if len(setClauses) == 0 {
		return s.GetUpdate(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")

	query := fmt.Sprintf(`UPDATE updates SET %s WHERE id = $%d`, strings.Join(setClauses, ", "), argIdx)
	args = append(args, id)

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, database.WrapError(err, msgUpdateNotFound)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound(msgUpdateNotFound)
	}
	return s.GetUpdate(ctx, id)
}

// DeleteUpdate removes a narrative update.
func (s *Store) DeleteUpdate(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM updates WHERE id = $1`, id)
	if err != nil {
		return database.WrapError(err, msgUpdateNotFound)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgUpdateNotFound)
	}
	return nil
}
