package user

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/database"
	"github.com/jackc/pgx/v5"
)

const msgUserNotFound = "User not found"

// Store provides database operations for users.
type Store struct {
	db database.DBTX
}

// NewStore creates a new user store backed by the given connection pool or
// transaction.
func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

const userColumns = `id, email, password_hash, name, bio, avatar, job_title, department, phone,
	preferences, last_login_at, last_login_ip, created_at, updated_at`

// scanUser scans a user row, handling the JSONB preferences column.
func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	var prefsJSON []byte
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Bio, &u.Avatar, &u.JobTitle,
		&u.Department, &u.Phone, &prefsJSON, &u.LastLoginAt, &u.LastLoginIP, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Preferences = DefaultPreferences()
	if len(prefsJSON) > 0 {
		if err := json.Unmarshal(prefsJSON, &u.Preferences); err != nil {
			return nil, fmt.Errorf("unmarshaling preferences: %w", err)
		}
	}
	u.Teams = []TeamMembership{}
	return u, nil
}

// Create inserts a new user. passwordHash must already be hashed.
func (s *Store) Create(ctx context.Context, email, passwordHash, name string) (*User, error) {
	prefs, err := json.Marshal(DefaultPreferences())
	if err != nil {
		return nil, fmt.Errorf("marshaling preferences: %w", err)
	}
	u, err := scanUser(s.db.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, name, preferences)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+userColumns,
		email, passwordHash, name, prefs,
	))
	if err != nil {
		return nil, database.WrapError(err, msgUserNotFound)
	}
	return u, nil
}

// GetByID retrieves a user by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, database.WrapError(err, msgUserNotFound)
	}
	return u, nil
}

// GetByEmail retrieves a user by email address, compared case-insensitively.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, database.WrapError(err, msgUserNotFound)
	}
	return u, nil
}

// Memberships returns the user's teams in the order they were joined.
func (s *Store) Memberships(ctx context.Context, userID string) ([]TeamMembership, error) {
	rows, err := s.db.Query(ctx,
		`SELECT tm.team_id, tm.role, t.name
		 FROM team_members tm JOIN teams t ON t.id = tm.team_id
		 WHERE tm.user_id = $1
		 ORDER BY tm.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	defer rows.Close()

	out := []TeamMembership{}
	for rows.Next() {
		var tm TeamMembership
		team := &TeamRef{}
		if err := rows.Scan(&tm.TeamID, &tm.Role, &team.Name); err != nil {
			return nil, fmt.Errorf("scanning membership row: %w", err)
		}
		team.ID = tm.TeamID
		tm.Team = team
		out = append(out, tm)
	}
	return out, rows.Err()
}

// RecordLogin stores the time and client address of a successful login.
func (s *Store) RecordLogin(ctx context.Context, id string, at time.Time, ip string) error {
	var addr *string
	if ip != "" {
		addr = &ip
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET last_login_at = $1, last_login_ip = $2 WHERE id = $3`, at, addr, id)
	if err != nil {
		return database.WrapError(err, msgUserNotFound)
	}
	if tag.RowsAffected() == 0 {
		return database.WrapError(pgx.ErrNoRows, msgUserNotFound)
	}
	return nil
}

// Update performs a partial update on the user with the given id.
func (s *Store) Update(ctx context.Context, id string, p Patch) (*User, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	set := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if p.Name != nil {
		set("name", *p.Name)
	}
	if p.Bio != nil {
		set("bio", *p.Bio)
	}
	if p.Avatar != nil {
		set("avatar", *p.Avatar)
	}
	if p.JobTitle != nil {
		set("job_title", *p.JobTitle)
	}
	if p.Department != nil {
		set("department", *p.Department)
	}
	if p.Phone != nil {
		set("phone", *p.Phone)
	}
	if p.Preferences != nil {
		prefs, err := json.Marshal(p.Preferences)
		if err != nil {
			return nil, fmt.Errorf("marshaling preferences: %w", err)
		}
		set("preferences", prefs)
	}
	if p.PasswordHash != nil {
		set("password_hash", *p.PasswordHash)
	}

	if len(setClauses) == 0 {
		return s.GetByID(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, userColumns,
	)

	u, err := scanUser(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, database.WrapError(err, msgUserNotFound)
	}
	return u, nil
}

// LookupIdentity implements auth.IdentityLookup.
func (s *Store) LookupIdentity(ctx context.Context, userID string) (*auth.Identity, error) {
	var id auth.Identity
	err := s.db.QueryRow(ctx, `SELECT id, email, name FROM users WHERE id = $1`, userID).
		Scan(&id.ID, &id.Email, &id.Name)
	if err != nil {
		return nil, database.WrapError(err, msgUserNotFound)
	}
	return &id, nil
}
