// Package mergeactivity stores the append-only merge audit trail
package mergeactivity

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const activityTable = "merge_activity"

type ActivityRow struct {
	ID         string                             `db:"id"`
	Kind       string                             `db:"kind"`
	KeeperID   string                             `db:"keeper_id"`
	MergedIDs  database.JSONB[[]string]           `db:"merged_ids"`
	FieldDiffs database.JSONB[[]models.FieldDiff] `db:"field_diffs"`
	Actor      string                             `db:"actor"`
	ActorRole  string                             `db:"actor_role"`
	CreatedAt  time.Time                          `db:"created_at"`
}

var activityColumns = []string{"id", "kind", "keeper_id", "merged_ids", "field_diffs", "actor", "actor_role", "created_at"}

func fromEvent(e models.MergeActivityEvent) ActivityRow {
	merged := e.MergedIDs
	if merged == nil {
		merged = []string{}
	}
	diffs := e.FieldDiffs
	if diffs == nil {
		diffs = []models.FieldDiff{}
	}
	return ActivityRow{
		ID:         e.ID,
		Kind:       string(e.Kind),
		KeeperID:   e.KeeperID,
		MergedIDs:  database.JSONB[[]string]{Data: merged},
		FieldDiffs: database.JSONB[[]models.FieldDiff]{Data: diffs},
		Actor:      e.Actor,
		ActorRole:  string(e.ActorRole),
		CreatedAt:  e.Timestamp.UTC(),
	}
}

func toEvent(row ActivityRow) models.MergeActivityEvent {
	return models.MergeActivityEvent{
		ID:         row.ID,
		Kind:       models.ActivityKind(row.Kind),
		KeeperID:   row.KeeperID,
		MergedIDs:  row.MergedIDs.Data,
		FieldDiffs: row.FieldDiffs.Data,
		Actor:      row.Actor,
		ActorRole:  models.Role(row.ActorRole),
		Timestamp:  row.CreatedAt.UTC(),
	}
}

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Append records an event. Events are never updated or deleted.
func (r *Repository) Append(ctx context.Context, event models.MergeActivityEvent) error {
	ctx, span := tracing.StartSpan(ctx, "mergeactivity.Repository.Append")
	defer span.End()

	row := fromEvent(event)
	ib := database.NewInsertBuilder(r.db.Flavor())
	ib.InsertInto(activityTable)
	ib.Cols(activityColumns...)
	ib.Values(row.ID, row.Kind, row.KeeperID, row.MergedIDs, row.FieldDiffs, row.Actor, row.ActorRole, row.CreatedAt)

	query, args := ib.Build()
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_id":  event.ID,
			"keeper_id": event.KeeperID,
		}).Error("Failed to append merge activity")
		return errors.Wrap(err, "appending merge activity")
	}
	return nil
}

// List returns events newest first. limit <= 0 returns everything.
func (r *Repository) List(ctx context.Context, limit int) ([]models.MergeActivityEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeactivity.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder(r.db.Flavor())
	sb.Select(activityColumns...)
	sb.From(activityTable)
	sb.OrderBy("seq").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}
	return r.query(ctx, sb)
}

// ForKeeper returns a keeper's events newest first
func (r *Repository) ForKeeper(ctx context.Context, keeperID string, limit int) ([]models.MergeActivityEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeactivity.Repository.ForKeeper")
	defer span.End()

	sb := database.NewSelectBuilder(r.db.Flavor())
	sb.Select(activityColumns...)
	sb.From(activityTable)
	sb.Where(sb.Equal("keeper_id", keeperID))
	sb.OrderBy("seq").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}
	return r.query(ctx, sb)
}

func (r *Repository) query(ctx context.Context, sb *database.SelectBuilder) ([]models.MergeActivityEvent, error) {
	query, args := sb.Build()
	var rows []ActivityRow
	if err := r.db.Executor(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge activity")
		return nil, errors.Wrap(err, "listing merge activity")
	}

	out := make([]models.MergeActivityEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, toEvent(row))
	}
	return out, nil
}
