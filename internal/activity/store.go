package activity

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/database"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Store provides database operations for the activity log.
type Store struct {
	db database.DBTX
}

// NewStore creates a Store on top of db.
func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

// BatchInsert writes entries in a single multi-row INSERT. Entries whose
// team has been deleted since they were recorded are skipped. It is a no-op
// when entries is empty.
func (s *Store) BatchInsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	const cols = 7
	args := make([]any, 0, len(entries)*cols)
	rows := make([]string, 0, len(entries))

	for i, e := range entries {
		base := i * cols
		rows = append(rows, fmt.Sprintf(
			"($%d::uuid, NULLIF($%d, '')::uuid, $%d::text, $%d::text, $%d::text, $%d::jsonb, $%d::timestamptz)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		metadata := e.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		args = append(args,
			e.TeamID,
			e.ActorID,
			e.Action,
			e.ResourceType,
			e.ResourceID,
			metadata,
			e.CreatedAt,
		)
	}

	query := `INSERT INTO activity_log
		(team_id, actor_id, action, resource_type, resource_id, metadata, created_at)
		SELECT v.* FROM (VALUES ` + strings.Join(rows, ", ") + `)
			AS v(team_id, actor_id, action, resource_type, resource_id, metadata, created_at)
		WHERE EXISTS (SELECT 1 FROM teams t WHERE t.id = v.team_id)`

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("batch inserting activity: %w", err)
	}
	return nil
}

// List returns a page of a team's activity ordered by created_at DESC, id DESC.
func (s *Store) List(ctx context.Context, q Query) (*Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	args := []any{q.TeamID}
	where := " WHERE team_id = $1"

	if q.Cursor != "" {
		ts, id, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindBadRequest, "Invalid cursor", err)
		}
		where += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, ts, id)
	}

	query := `SELECT id, team_id, COALESCE(actor_id::text, ''), action, resource_type,
		resource_id, metadata, created_at
	FROM activity_log` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.TeamID, &e.ActorID, &e.Action, &e.ResourceType,
			&e.ResourceID, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning activity row: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity rows: %w", err)
	}

	page := &Page{Entries: entries}
	if len(entries) > limit {
		last := entries[limit-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
		page.Entries = entries[:limit]
	}
	return page, nil
}

// encodeCursor encodes a timestamp and id into an opaque cursor string.
func encodeCursor(ts time.Time, id string) string {
	raw := ts.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decoding cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parsing cursor timestamp: %w", err)
	}
	return ts, parts[1], nil
}
