package reconcile

import (
	"context"
	"errors"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ErrKeeperLocked is returned by a KeeperLocker when the key is already held
var ErrKeeperLocked = errors.New("keeper is locked")

// RecordStore is the registry boundary. Each call is expected to be atomic and durable.
type RecordStore interface {
	FetchPool(ctx context.Context, filter models.PoolFilter) ([]models.PersonRecord, error)
	GetMany(ctx context.Context, ids []string) ([]models.PersonRecord, error)
	CommitMerge(ctx context.Context, keeperID string, fieldUpdates map[string]string, retiredIDs []string) error
	RestoreSnapshot(ctx context.Context, snapshot models.Snapshot) error
}

// ActivityLog is the append-only audit trail
type ActivityLog interface {
	Append(ctx context.Context, event models.MergeActivityEvent) error
	// List returns events newest first. limit <= 0 returns everything.
	List(ctx context.Context, limit int) ([]models.MergeActivityEvent, error)
}

// SnapshotStore holds one undo snapshot per keeper. Save overwrites.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot models.Snapshot) error
	// Get returns nil, nil when the keeper has no snapshot
	Get(ctx context.Context, keeperID string) (*models.Snapshot, error)
	Delete(ctx context.Context, keeperID string) error
}

// KeeperLocker fails fast with ErrKeeperLocked instead of waiting
type KeeperLocker interface {
	TryLock(ctx context.Context, key string) (release func(), err error)
}

// SuggestionProvider returns a proposed golden record for records, keeper first
type SuggestionProvider interface {
	Suggest(ctx context.Context, records []models.PersonRecord) (*models.Suggestion, error)
}

// EventPublisher announces merge lifecycle facts to downstream consumers
type EventPublisher interface {
	MergeApplied(ctx context.Context, event models.MergeActivityEvent) error
	MergeUndone(ctx context.Context, event models.MergeActivityEvent) error
	GroupDismissed(ctx context.Context, session *models.MergeSession) error
}

// LineageWriter keeps a graph of which records were merged into which keeper
type LineageWriter interface {
	RecordMerge(ctx context.Context, event models.MergeActivityEvent) error
	RemoveMerge(ctx context.Context, event models.MergeActivityEvent) error
}

// Transactor runs fn so that the record, snapshot and activity writes commit together.
// Atomic reports whether a failure inside fn rolls everything back.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	Atomic() bool
}

type noTx struct{}

func (noTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
func (noTx) Atomic() bool                                                      { return false }

type noopPublisher struct{}

func (noopPublisher) MergeApplied(context.Context, models.MergeActivityEvent) error { return nil }
func (noopPublisher) MergeUndone(context.Context, models.MergeActivityEvent) error  { return nil }
func (noopPublisher) GroupDismissed(context.Context, *models.MergeSession) error    { return nil }

type noopLineage struct{}

func (noopLineage) RecordMerge(context.Context, models.MergeActivityEvent) error { return nil }
func (noopLineage) RemoveMerge(context.Context, models.MergeActivityEvent) error { return nil }
