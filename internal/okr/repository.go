package okr

import "context"

// Repository is the persistence collaborator of the Service. *Store is the
// Postgres implementation.
type Repository interface {
	ProgressStore

	CreateObjective(ctx context.Context, o *Objective) (*Objective, error)
	GetObjective(ctx context.Context, id string) (*Objective, error)
	ListObjectives(ctx context.Context, f ObjectiveFilter) ([]*Objective, error)
	UpdateObjective(ctx context.Context, id string, p ObjectivePatch) (*Objective, error)
	DeleteObjective(ctx context.Context, id string) error

	CreateKeyResult(ctx context.Context, kr *KeyResult) (*KeyResult, error)
	GetKeyResult(ctx context.Context, id string) (*KeyResult, error)
	UpdateKeyResult(ctx context.Context, id string, p KeyResultPatch) (*KeyResult, error)
	DeleteKeyResult(ctx context.Context, id string) error
	AppendKeyResultUpdate(ctx context.Context, u *KeyResultUpdate) (*KeyResultUpdate, error)
	// RecentKeyResultUpdates returns up to limit updates per key result,
	// newest first.
	RecentKeyResultUpdates(ctx context.Context, keyResultIDs []string, limit int) (map[string][]*KeyResultUpdate, error)

	CreateUpdate(ctx context.Context, u *Update) (*Update, error)
	GetUpdate(ctx context.Context, id string) (*Update, error)
	// ListUpdates returns an objective's narrative updates newest first. A
	// non-positive limit returns all of them.
	ListUpdates(ctx context.Context, objectiveID string, limit int) ([]*Update, error)
	EditUpdate(ctx context.Context, id string, p UpdatePatch) (*Update, error)
	DeleteUpdate(ctx context.Context, id string) error

	// InTx runs fn against a Repository bound to a single transaction.
	InTx(ctx context.Context, fn func(Repository) error) error
}
