package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

func keeperKey(keeperID string) string {
	return "keeper:" + keeperID
}

// Approve freezes the resolved golden record and fingerprints the records it was built from
func (e *Engine) Approve(ctx context.Context, sessionID string, actor models.Actor) (*models.MergeSession, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Approve")
	defer span.End()

	if !actor.Role.CanApprove() {
		return nil, clovererrors.NewAuthorizationError(actor.ID, string(actor.Role), "approve merge")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, sessionNotFound(sessionID)
	}
	if s.State != models.StateAutoResolved && s.State != models.StateNeedsReview {
		return nil, invalidTransition(s.State, models.StateApproved)
	}

	s.Conflicts = e.resolver.Resolve(s.SelectedGroup(), s.Suggestion, s.Overrides)
	if unresolved := merging.Unresolved(s.Conflicts); len(unresolved) > 0 {
		metrics.RecordTransition(string(models.StateApproved), "rejected")
		return nil, clovererrors.NewValidationError("fields still need review", unresolved...)
	}

	draft := merging.GoldenRecord(s.Conflicts)
	var missing []string
	for _, f := range []string{models.FieldFirstName, models.FieldLastName} {
		if draft[f] == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		metrics.RecordTransition(string(models.StateApproved), "rejected")
		return nil, clovererrors.NewValidationError("golden record requires a name", missing...)
	}

	s.Fingerprint = fingerprint.Records(s.SelectedGroup().Members())
	s.ApprovedBy = actor.ID
	e.transition(ctx, s, models.StateApproved)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id": sessionID,
		"keeper_id":  s.Group.Keeper.ID,
		"actor":      actor.ID,
	}).Info("Approved merge")

	return s.Clone(), nil
}

// Apply writes an approved merge. The keeper is locked for the duration; a second
// apply or undo on the same keeper fails fast with a ConflictError. Records are
// refetched and compared to the approval fingerprint before anything is written.
func (e *Engine) Apply(ctx context.Context, sessionID string, actor models.Actor) (*models.MergeActivityEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Apply")
	defer span.End()

	if !actor.Role.CanApprove() {
		return nil, clovererrors.NewAuthorizationError(actor.ID, string(actor.Role), "apply merge")
	}

	s, err := e.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	keeperID := s.Group.Keeper.ID

	release, err := e.lockKeeper(ctx, keeperID, "apply")
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	defer func() { metrics.ApplyDuration.Observe(time.Since(start).Seconds()) }()

	e.mu.Lock()
	live := e.sessions[sessionID]
	if live.State == models.StateApplied {
		e.mu.Unlock()
		return nil, clovererrors.NewConflictError(keeperID, "merge already applied")
	}
	conflicts := e.resolver.Resolve(live.SelectedGroup(), live.Suggestion, live.Overrides)
	if unresolved := merging.Unresolved(conflicts); len(unresolved) > 0 {
		e.mu.Unlock()
		return nil, clovererrors.NewValidationError("fields still need review", unresolved...)
	}
	if live.State != models.StateApproved {
		e.mu.Unlock()
		return nil, invalidTransition(live.State, models.StateApplied)
	}
	s = live.Clone()
	e.mu.Unlock()

	ids := append([]string{keeperID}, s.SelectedIDs...)
	current, err := e.store.GetMany(ctx, ids)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to refetch merge records")
		return nil, clovererrors.NewExternalServiceError("record store", "get_many", fmt.Errorf("no data was changed: %w", err))
	}
	if len(current) != len(ids) || fingerprint.Records(current) != s.Fingerprint {
		metrics.RecordTransition(string(models.StateApplied), "stale")
		return nil, clovererrors.NewConflictError(keeperID, "records changed since approval; re-review the group")
	}

	var keeperNow models.PersonRecord
	for _, r := range current {
		if r.ID == keeperID {
			keeperNow = r
		}
	}

	now := e.now()
	event := models.MergeActivityEvent{
		ID:         uuid.NewString(),
		Kind:       models.ActivityMerge,
		KeeperID:   keeperID,
		MergedIDs:  append([]string(nil), s.SelectedIDs...),
		FieldDiffs: merging.Diff(keeperNow, merging.GoldenRecord(conflicts)),
		Actor:      actor.ID,
		ActorRole:  actor.Role,
		Timestamp:  now,
	}
	snapshot := models.Snapshot{
		KeeperID: keeperID,
		EventID:  event.ID,
		Records:  current,
		TakenAt:  now,
	}
	updates := make(map[string]string, len(event.FieldDiffs))
	for _, d := range event.FieldDiffs {
		updates[d.Field] = d.To
	}

	err = e.tx.InTx(ctx, func(ctx context.Context) error {
		if err := e.store.CommitMerge(ctx, keeperID, updates, event.MergedIDs); err != nil {
			return err
		}
		if err := e.snapshots.Save(ctx, snapshot); err != nil {
			e.compensate(ctx, snapshot)
			return err
		}
		if err := e.activity.Append(ctx, event); err != nil {
			e.compensate(ctx, snapshot)
			return err
		}
		return nil
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"keeper_id": keeperID}).Error("Failed to apply merge")
		metrics.RecordTransition(string(models.StateApplied), "error")
		return nil, clovererrors.NewExternalServiceError("record store", "apply", fmt.Errorf("no data was changed: %w", err))
	}

	e.mu.Lock()
	live.EventID = event.ID
	e.transition(ctx, live, models.StateApplied)
	e.mu.Unlock()

	e.announce(ctx, event)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"keeper_id":  keeperID,
		"event_id":   event.ID,
		"merged_ids": event.MergedIDs,
		"changed":    len(event.FieldDiffs),
	}).Info("Applied merge")

	return &event, nil
}

// Undo restores the keeper and its retired duplicates to the snapshot taken by the
// most recent apply. The original merge event stays in the log and an undo event is
// appended. eventID may be empty to undo whatever the latest merge is.
func (e *Engine) Undo(ctx context.Context, keeperID, eventID string, actor models.Actor) (*models.MergeActivityEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Undo")
	defer span.End()

	if !actor.Role.CanApprove() {
		return nil, clovererrors.NewAuthorizationError(actor.ID, string(actor.Role), "undo merge")
	}

	release, err := e.lockKeeper(ctx, keeperID, "undo")
	if err != nil {
		return nil, err
	}
	defer release()

	snap, err := e.snapshots.Get(ctx, keeperID)
	if err != nil {
		return nil, clovererrors.NewExternalServiceError("snapshot store", "get", err)
	}
	if snap == nil {
		return nil, clovererrors.NewConflictError(keeperID, "no merge to undo")
	}
	if eventID != "" && eventID != snap.EventID {
		return nil, clovererrors.NewConflictError(keeperID, fmt.Sprintf("event %s is no longer the latest merge", eventID))
	}

	current, err := e.store.GetMany(ctx, []string{keeperID})
	if err != nil {
		return nil, clovererrors.NewExternalServiceError("record store", "get_many", err)
	}
	if len(current) != 1 {
		return nil, clovererrors.NewConflictError(keeperID, "keeper no longer exists")
	}
	keeperNow := current[0]
	if keeperNow.MergedInto != nil {
		return nil, clovererrors.NewConflictError(keeperID, "keeper has since been merged into "+*keeperNow.MergedInto)
	}

	restored, _ := snap.Keeper()
	event := models.MergeActivityEvent{
		ID:         uuid.NewString(),
		Kind:       models.ActivityUndo,
		KeeperID:   keeperID,
		MergedIDs:  snap.RetiredIDs(),
		FieldDiffs: merging.Diff(keeperNow, models.GoldenRecordDraft(restored.Fields())),
		Actor:      actor.ID,
		ActorRole:  actor.Role,
		Timestamp:  e.now(),
	}

	err = e.tx.InTx(ctx, func(ctx context.Context) error {
		if err := e.store.RestoreSnapshot(ctx, *snap); err != nil {
			return err
		}
		if err := e.activity.Append(ctx, event); err != nil {
			return err
		}
		return e.snapshots.Delete(ctx, keeperID)
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"keeper_id": keeperID}).Error("Failed to undo merge")
		return nil, clovererrors.NewExternalServiceError("record store", "undo", err)
	}

	e.mu.Lock()
	for _, s := range e.sessions {
		if s.EventID == snap.EventID && s.State == models.StateApplied {
			e.transition(ctx, s, models.StateUndone)
		}
	}
	e.mu.Unlock()

	if err := e.publisher.MergeUndone(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to publish merge undone event")
	}
	if err := e.lineage.RemoveMerge(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to remove merge lineage")
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"keeper_id":      keeperID,
		"event_id":       event.ID,
		"undone_event":   snap.EventID,
		"restored_count": len(snap.Records),
	}).Info("Undid merge")

	return &event, nil
}

func (e *Engine) lockKeeper(ctx context.Context, keeperID, op string) (func(), error) {
	release, err := e.locker.TryLock(ctx, keeperKey(keeperID))
	if err != nil {
		if errors.Is(err, ErrKeeperLocked) {
			metrics.LockContention.WithLabelValues(op).Inc()
			return nil, clovererrors.NewConflictError(keeperID, "merge in progress")
		}
		return nil, clovererrors.NewExternalServiceError("lock", "acquire", err)
	}
	return release, nil
}

// compensate puts records back when the transactor cannot roll back on its own
func (e *Engine) compensate(ctx context.Context, snapshot models.Snapshot) {
	if e.tx.Atomic() {
		return
	}
	if err := e.store.RestoreSnapshot(ctx, snapshot); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"keeper_id": snapshot.KeeperID}).Error("Failed to roll back partial merge")
	}
}

// announce runs the post-commit side effects. Their failures are logged, not returned,
// since the merge itself is already durable.
func (e *Engine) announce(ctx context.Context, event models.MergeActivityEvent) {
	if err := e.publisher.MergeApplied(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to publish merge applied event")
	}
	if err := e.lineage.RecordMerge(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to record merge lineage")
	}
}
