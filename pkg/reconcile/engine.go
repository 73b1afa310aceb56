// Package reconcile drives a duplicate group from identification through an applied
// (and possibly undone) merge. The engine owns session state; every persisted fact
// goes through the RecordStore, ActivityLog and SnapshotStore it is built with.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const defaultSuggestionTimeout = 30 * time.Second

// Option customizes an Engine
type Option func(*Engine)

// WithLocker replaces the in-process keeper locker, e.g. with a redis lock
func WithLocker(l KeeperLocker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithLineage(l LineageWriter) Option {
	return func(e *Engine) { e.lineage = l }
}

func WithTransactor(t Transactor) Option {
	return func(e *Engine) { e.tx = t }
}

// WithSuggestionTimeout sets the timeout used when a caller passes none
func WithSuggestionTimeout(d time.Duration) Option {
	return func(e *Engine) { e.suggestionTimeout = d }
}

func WithResolver(r *merging.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithClock is used by tests to pin timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	logger    ectologger.Logger
	store     RecordStore
	activity  ActivityLog
	snapshots SnapshotStore
	locker    KeeperLocker
	publisher EventPublisher
	lineage   LineageWriter
	tx        Transactor
	resolver  *merging.Resolver
	now       func() time.Time

	suggestionTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*models.MergeSession
	inflight map[string]context.CancelFunc
}

func NewEngine(logger ectologger.Logger, store RecordStore, activity ActivityLog, snapshots SnapshotStore, opts ...Option) *Engine {
	e := &Engine{
		logger:            logger,
		store:             store,
		activity:          activity,
		snapshots:         snapshots,
		locker:            NewLocalLocker(),
		publisher:         noopPublisher{},
		lineage:           noopLineage{},
		tx:                noTx{},
		resolver:          merging.NewResolver(),
		now:               time.Now,
		suggestionTimeout: defaultSuggestionTimeout,
		sessions:          make(map[string]*models.MergeSession),
		inflight:          make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store exposes the record store so callers can build groups from the same registry
func (e *Engine) Store() RecordStore {
	return e.store
}

// Open starts a session for group in the Identified state
func (e *Engine) Open(ctx context.Context, group models.DuplicateGroup) (*models.MergeSession, error) {
	if group.Keeper.ID == "" {
		return nil, clovererrors.NewValidationError("group has no keeper", "keeper_id")
	}
	if group.ID == "" {
		group.ID = group.Keeper.ID
	}

	now := e.now()
	session := &models.MergeSession{
		ID:        uuid.NewString(),
		Group:     group,
		State:     models.StateIdentified,
		Overrides: make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}

	e.mu.Lock()
	e.sessions[session.ID] = session
	e.mu.Unlock()

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id": session.ID,
		"keeper_id":  group.Keeper.ID,
		"candidates": len(group.Candidates),
	}).Debug("Opened merge session")
	metrics.RecordTransition(string(models.StateIdentified), "ok")

	return session.Clone(), nil
}

// Session returns a copy of the session
func (e *Engine) Session(_ context.Context, sessionID string) (*models.MergeSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, sessionNotFound(sessionID)
	}
	return s.Clone(), nil
}

// Sessions lists every session, newest first
func (e *Engine) Sessions(_ context.Context) []*models.MergeSession {
	e.mu.Lock()
	out := make([]*models.MergeSession, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s.Clone())
	}
	e.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Select marks which candidates join the merge. Reselecting after a suggestion
// discards the suggestion and any overrides.
func (e *Engine) Select(ctx context.Context, sessionID string, candidateIDs []string) (*models.MergeSession, error) {
	if len(candidateIDs) == 0 {
		return nil, clovererrors.NewValidationError("select at least one candidate", "candidate_ids")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, sessionNotFound(sessionID)
	}

	switch s.State {
	case models.StateIdentified, models.StateSelectedForMerge, models.StateAutoResolved, models.StateNeedsReview:
	case models.StateAwaitingSuggestion:
		return nil, clovererrors.NewConflictError(s.Group.Keeper.ID, "suggestion in flight")
	default:
		return nil, invalidTransition(s.State, models.StateSelectedForMerge)
	}

	seen := make(map[string]bool, len(candidateIDs))
	selected := make([]string, 0, len(candidateIDs))
	var unknown []string
	for _, id := range candidateIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := s.Group.Candidate(id); !ok {
			unknown = append(unknown, id)
			continue
		}
		selected = append(selected, id)
	}
	if len(unknown) > 0 {
		return nil, clovererrors.NewValidationError("not candidates of this group", unknown...)
	}

	s.SelectedIDs = selected
	s.Suggestion = nil
	s.Conflicts = nil
	s.Overrides = make(map[string]string)
	s.LastError = ""
	e.transition(ctx, s, models.StateSelectedForMerge)

	return s.Clone(), nil
}

// Dismiss closes the session without touching any record. Allowed until approval.
func (e *Engine) Dismiss(ctx context.Context, sessionID string, actor models.Actor) (*models.MergeSession, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Dismiss")
	defer span.End()

	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return nil, sessionNotFound(sessionID)
	}

	switch s.State {
	case models.StateApproved, models.StateApplied, models.StateDismissed, models.StateUndone:
		e.mu.Unlock()
		return nil, invalidTransition(s.State, models.StateDismissed)
	}

	if cancel, ok := e.inflight[sessionID]; ok {
		cancel()
		delete(e.inflight, sessionID)
	}
	e.transition(ctx, s, models.StateDismissed)
	out := s.Clone()
	e.mu.Unlock()

	if err := e.publisher.GroupDismissed(ctx, out); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"session_id": sessionID}).Warn("Failed to publish group dismissed event")
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id": sessionID,
		"keeper_id":  out.Group.Keeper.ID,
		"actor":      actor.ID,
	}).Info("Dismissed duplicate group")

	return out, nil
}

// Activity returns the merge and undo history, newest first
func (e *Engine) Activity(ctx context.Context, actor models.Actor, limit int) ([]models.MergeActivityEvent, error) {
	if !actor.Role.CanReadActivity() {
		return nil, clovererrors.NewAuthorizationError(actor.ID, string(actor.Role), "read activity")
	}

	events, err := e.activity.List(ctx, limit)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to list merge activity")
		return nil, clovererrors.NewExternalServiceError("activity log", "list", err)
	}
	return events, nil
}

// Conflicts recomputes the field conflicts for the session's current inputs
func (e *Engine) Conflicts(_ context.Context, sessionID string) ([]models.FieldConflict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, sessionNotFound(sessionID)
	}
	if len(s.SelectedIDs) == 0 {
		return nil, clovererrors.NewValidationError("no candidates selected", "candidate_ids")
	}
	return e.resolver.Resolve(s.SelectedGroup(), s.Suggestion, s.Overrides), nil
}

// transition must be called with e.mu held
func (e *Engine) transition(ctx context.Context, s *models.MergeSession, to models.MergeState) {
	from := s.State
	s.State = to
	s.UpdatedAt = e.now()

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id": s.ID,
		"keeper_id":  s.Group.Keeper.ID,
		"from":       string(from),
		"to":         string(to),
	}).Debug("Merge session transition")
	metrics.RecordTransition(string(to), "ok")
}

func sessionNotFound(id string) error {
	return clovererrors.NewValidationError("unknown merge session", "session_id="+id)
}

func invalidTransition(from, to models.MergeState) error {
	metrics.RecordTransition(string(to), "rejected")
	return clovererrors.NewValidationError(fmt.Sprintf("cannot move from %s to %s", from, to))
}
