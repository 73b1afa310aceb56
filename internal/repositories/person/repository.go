// Package person persists the record registry in a SQL database
package person

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Upsert inserts new records and refreshes the fields of existing ones, stamping updated_at.
// It never changes active or merged_into on a stored row, and rows already merged into a
// keeper are left untouched. RestoreSnapshot is the only way back for a retired record.
func (r *Repository) Upsert(ctx context.Context, records ...models.PersonRecord) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Upsert")
	defer span.End()

	now := nowUTC()
	rows := make([]PersonRow, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record id is required")
		}
		if rec.MergedInto == nil && !rec.Active {
			rec.Active = true
		}
		rec.UpdatedAt = &now
		rows = append(rows, FromPersonRecord(rec))
	}

	skipped, err := r.upsertRows(ctx, rows, false)
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"ids": skipped,
		}).Warn("Ignored updates to merged records")
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.PersonRecord, error) {
	records, err := r.GetMany(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// FetchPool returns the records matching filter sorted by id. Retired records are skipped unless asked for.
func (r *Repository) FetchPool(ctx context.Context, filter models.PoolFilter) ([]models.PersonRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FetchPool")
	defer span.End()

	sb := database.NewSelectBuilder(r.db.Flavor())
	sb.Select(personColumns...)
	sb.From(personTable)

	var conds []string
	if len(filter.IDs) > 0 {
		conds = append(conds, sb.In("id", toAny(filter.IDs)...))
	}
	if !filter.IncludeRetired {
		conds = append(conds, sb.IsNull("merged_into"))
	}
	if filter.LastName != "" {
		conds = append(conds, sb.Equal("last_name", filter.LastName))
	}
	if filter.DateOfBirth != "" {
		conds = append(conds, sb.Equal("date_of_birth", filter.DateOfBirth))
	}
	if len(conds) > 0 {
		sb.Where(conds...)
	}
	sb.OrderBy("id")
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}

	query, args := sb.Build()
	var rows []PersonRow
	if err := r.db.Executor(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to fetch record pool")
		return nil, errors.Wrap(err, "fetching record pool")
	}

	out := make([]models.PersonRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToPersonRecord(row))
	}
	return out, nil
}

// GetMany returns the records that exist, in request order
func (r *Repository) GetMany(ctx context.Context, ids []string) ([]models.PersonRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.GetMany")
	defer span.End()

	if len(ids) == 0 {
		return []models.PersonRecord{}, nil
	}

	sb := database.NewSelectBuilder(r.db.Flavor())
	sb.Select(personColumns...)
	sb.From(personTable)
	sb.Where(sb.In("id", toAny(ids)...))

	query, args := sb.Build()
	var rows []PersonRow
	if err := r.db.Executor(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ids": ids}).Error("Failed to load records")
		return nil, errors.Wrap(err, "loading records")
	}

	byID := make(map[string]PersonRow, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	out := make([]models.PersonRecord, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, ToPersonRecord(row))
		}
	}
	return out, nil
}

// CommitMerge writes fieldUpdates onto the keeper and retires the duplicates in one transaction
func (r *Repository) CommitMerge(ctx context.Context, keeperID string, fieldUpdates map[string]string, retiredIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.CommitMerge")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"keeper_id":   keeperID,
		"retired_ids": retiredIDs,
	})

	fields := make([]string, 0, len(fieldUpdates))
	for field := range fieldUpdates {
		if !models.IsReconcilable(field) {
			return fmt.Errorf("unknown field %q", field)
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := nowUTC()

	ub := database.NewUpdateBuilder(r.db.Flavor())
	ub.Update(personTable)
	assignments := make([]string, 0, len(fields)+1)
	for _, field := range fields {
		assignments = append(assignments, ub.Assign(field, fieldUpdates[field]))
	}
	assignments = append(assignments, ub.Assign("updated_at", now))
	ub.Set(assignments...)
	ub.Where(ub.Equal("id", keeperID), ub.IsNull("merged_into"))

	query, args := ub.Build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("Failed to update keeper")
		return errors.Wrap(err, "updating keeper")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("keeper %s not found or already merged", keeperID)
	}

	if len(retiredIDs) > 0 {
		retire := database.NewUpdateBuilder(r.db.Flavor())
		retire.Update(personTable)
		retire.Set(
			retire.Assign("active", false),
			retire.Assign("merged_into", keeperID),
			retire.Assign("updated_at", now),
		)
		retire.Where(retire.In("id", toAny(retiredIDs)...), retire.IsNull("merged_into"))

		query, args := retire.Build()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			log.WithError(err).Error("Failed to retire duplicates")
			return errors.Wrap(err, "retiring duplicates")
		}
		if n, err := res.RowsAffected(); err == nil && int(n) != countUnique(retiredIDs) {
			return fmt.Errorf("retired %d of %d duplicates; a record is missing or already merged", n, countUnique(retiredIDs))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	log.Debug("Committed merge")
	return nil
}

// RestoreSnapshot overwrites every record in the snapshot with its captured copy
func (r *Repository) RestoreSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.RestoreSnapshot")
	defer span.End()

	rows := make([]PersonRow, 0, len(snapshot.Records))
	for _, rec := range snapshot.Records {
		rows = append(rows, FromPersonRecord(rec))
	}
	if _, err := r.upsertRows(ctx, rows, true); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"keeper_id": snapshot.KeeperID,
			"event_id":  snapshot.EventID,
		}).Error("Failed to restore snapshot")
		return err
	}
	return nil
}

// upsertRows writes rows in one transaction. With restore unset, existing rows keep their
// lifecycle columns and merged rows are not updated; their ids are returned.
func (r *Repository) upsertRows(ctx context.Context, rows []PersonRow, restore bool) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var skipped []string

	// keepers may reference duplicates in the same batch, so retired rows go last
	sort.SliceStable(rows, func(i, j int) bool { return !rows[i].MergedInto.Valid && rows[j].MergedInto.Valid })

	for _, row := range rows {
		ib := database.NewInsertBuilder(r.db.Flavor())
		ib.InsertInto(personTable)
		ib.Cols(personColumns...)
		ib.Values(row.values()...)
		ub := ib.OnConflict("id")
		assignments := make([]string, 0, len(personColumns)-1)
		for _, col := range personColumns[1:] {
			if !restore && lifecycleColumns[col] {
				continue
			}
			assignments = append(assignments, ub.Assign(col, database.Excluded(col)))
		}
		ub.Set(assignments...)
		if !restore {
			ub.Where(ub.IsNull(personTable + ".merged_into"))
		}

		query, args := ib.Build()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, errors.Wrapf(err, "upserting record %s", row.ID)
		}
		if n, err := res.RowsAffected(); !restore && err == nil && n == 0 {
			skipped = append(skipped, row.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return skipped, nil
}

// lifecycleColumns are only changed by CommitMerge and RestoreSnapshot
var lifecycleColumns = map[string]bool{
	"active":      true,
	"merged_into": true,
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func countUnique(ids []string) int {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}
