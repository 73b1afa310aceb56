// Package snapshot keeps the single undo snapshot each keeper may have
package snapshot

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const snapshotTable = "merge_snapshots"

type SnapshotRow struct {
	KeeperID string                                `db:"keeper_id"`
	EventID  string                                `db:"event_id"`
	Records  database.JSONB[[]models.PersonRecord] `db:"records"`
	TakenAt  time.Time                             `db:"taken_at"`
}

var snapshotColumns = []string{"keeper_id", "event_id", "records", "taken_at"}

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Save stores the snapshot, replacing any earlier one for the keeper
func (r *Repository) Save(ctx context.Context, snap models.Snapshot) error {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.Save")
	defer span.End()

	ib := database.NewInsertBuilder(r.db.Flavor())
	ib.InsertInto(snapshotTable)
	ib.Cols(snapshotColumns...)
	ib.Values(snap.KeeperID, snap.EventID, database.JSONB[[]models.PersonRecord]{Data: snap.Records}, snap.TakenAt.UTC())
	ub := ib.OnConflict("keeper_id")
	ub.Set(
		ub.Assign("event_id", database.Excluded("event_id")),
		ub.Assign("records", database.Excluded("records")),
		ub.Assign("taken_at", database.Excluded("taken_at")),
	)

	query, args := ib.Build()
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"keeper_id": snap.KeeperID,
			"event_id":  snap.EventID,
		}).Error("Failed to save snapshot")
		return errors.Wrap(err, "saving snapshot")
	}
	return nil
}

// Get returns nil, nil when the keeper has no snapshot
func (r *Repository) Get(ctx context.Context, keeperID string) (*models.Snapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder(r.db.Flavor())
	sb.Select(snapshotColumns...)
	sb.From(snapshotTable)
	sb.Where(sb.Equal("keeper_id", keeperID))

	query, args := sb.Build()
	var row SnapshotRow
	if err := r.db.Executor(ctx).GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "loading snapshot")
	}

	return &models.Snapshot{
		KeeperID: row.KeeperID,
		EventID:  row.EventID,
		Records:  row.Records.Data,
		TakenAt:  row.TakenAt.UTC(),
	}, nil
}

func (r *Repository) Delete(ctx context.Context, keeperID string) error {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder(r.db.Flavor())
	db.DeleteFrom(snapshotTable)
	db.Where(db.Equal("keeper_id", keeperID))

	query, args := db.Build()
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "deleting snapshot")
	}
	return nil
}
