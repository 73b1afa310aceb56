package reconcile

import (
	"context"
	"errors"
	"time"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var errEmptySuggestion = errors.New("provider returned no suggestion")

func suggestionKey(groupID string) string {
	return "suggestion:" + groupID
}

type suggestResult struct {
	suggestion *models.Suggestion
	err        error
}

// RequestSuggestion asks provider for a golden record and resolves the session's
// conflicts against it. Only one request may be in flight per group. On failure,
// timeout or cancellation the session returns to SelectedForMerge.
func (e *Engine) RequestSuggestion(ctx context.Context, sessionID string, provider SuggestionProvider, timeout time.Duration) (*models.MergeSession, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.RequestSuggestion")
	defer span.End()

	if timeout <= 0 {
		timeout = e.suggestionTimeout
	}

	s, err := e.sessionInState(sessionID, models.StateSelectedForMerge, models.StateAwaitingSuggestion)
	if err != nil {
		return nil, err
	}
	groupID := s.Group.ID

	release, err := e.locker.TryLock(ctx, suggestionKey(groupID))
	if err != nil {
		if errors.Is(err, ErrKeeperLocked) {
			return nil, clovererrors.NewConflictError(s.Group.Keeper.ID, "suggestion already in flight for this group")
		}
		return nil, clovererrors.NewExternalServiceError("lock", "acquire", err)
	}
	defer release()

	suggestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return nil, sessionNotFound(sessionID)
	}
	if s.State != models.StateSelectedForMerge {
		e.mu.Unlock()
		return nil, invalidTransition(s.State, models.StateAwaitingSuggestion)
	}
	e.transition(ctx, s, models.StateAwaitingSuggestion)
	e.inflight[sessionID] = cancel
	members := s.SelectedGroup().Members()
	e.mu.Unlock()

	start := time.Now()
	ch := make(chan suggestResult, 1)
	go func() {
		sug, err := provider.Suggest(suggestCtx, members)
		ch <- suggestResult{suggestion: sug, err: err}
	}()

	var res suggestResult
	select {
	case res = <-ch:
	case <-suggestCtx.Done():
		res.err = suggestCtx.Err()
	}
	if res.err == nil && res.suggestion == nil {
		res.err = errEmptySuggestion
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, sessionID)

	if s.State != models.StateAwaitingSuggestion {
		// dismissed while waiting
		metrics.RecordSuggestion(providerName(provider), "discarded", time.Since(start).Seconds())
		return nil, invalidTransition(s.State, models.StateAutoResolved)
	}

	if res.err != nil {
		status := "error"
		switch {
		case errors.Is(res.err, context.DeadlineExceeded):
			status = "timeout"
		case errors.Is(res.err, context.Canceled):
			status = "canceled"
		}
		metrics.RecordSuggestion(providerName(provider), status, time.Since(start).Seconds())

		s.LastError = res.err.Error()
		e.transition(ctx, s, models.StateSelectedForMerge)
		e.logger.WithContext(ctx).WithError(res.err).WithFields(map[string]any{
			"session_id": sessionID,
			"status":     status,
		}).Warn("Suggestion request failed")
		return nil, clovererrors.NewExternalServiceError("suggestion", status, res.err)
	}

	metrics.RecordSuggestion(providerName(provider), "ok", time.Since(start).Seconds())
	s.Suggestion = res.suggestion
	s.LastError = ""
	e.resolveLocked(ctx, s)

	return s.Clone(), nil
}

// CancelSuggestion aborts the in-flight request for the session, if any
func (e *Engine) CancelSuggestion(_ context.Context, sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancel, ok := e.inflight[sessionID]
	if !ok {
		return clovererrors.NewValidationError("no suggestion in flight", "session_id="+sessionID)
	}
	cancel()
	return nil
}

// ResolveManually skips the suggestion step. Every multi-valued field keeps the keeper's
// value until a human overrides it.
func (e *Engine) ResolveManually(ctx context.Context, sessionID string) (*models.MergeSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, sessionNotFound(sessionID)
	}
	if s.State != models.StateSelectedForMerge {
		return nil, invalidTransition(s.State, models.StateAutoResolved)
	}

	s.Suggestion = nil
	e.resolveLocked(ctx, s)
	return s.Clone(), nil
}

// SetOverrides records human picks. An empty value clears that field's override.
func (e *Engine) SetOverrides(ctx context.Context, sessionID string, overrides map[string]string) (*models.MergeSession, error) {
	var unknown []string
	for field := range overrides {
		if !models.IsReconcilable(field) {
			unknown = append(unknown, field)
		}
	}
	if len(unknown) > 0 {
		return nil, clovererrors.NewValidationError("unknown fields", unknown...)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, sessionNotFound(sessionID)
	}
	switch s.State {
	case models.StateApproved, models.StateApplied, models.StateDismissed, models.StateUndone:
		return nil, clovererrors.NewValidationError("overrides are closed once a merge is approved", "state="+string(s.State))
	}

	for field, value := range overrides {
		if value == "" {
			delete(s.Overrides, field)
			continue
		}
		s.Overrides[field] = value
	}
	s.UpdatedAt = e.now()

	if s.State == models.StateAutoResolved || s.State == models.StateNeedsReview {
		s.Conflicts = e.resolver.Resolve(s.SelectedGroup(), s.Suggestion, s.Overrides)
	}
	return s.Clone(), nil
}

// resolveLocked recomputes conflicts and moves to AutoResolved or NeedsReview. e.mu must be held.
func (e *Engine) resolveLocked(ctx context.Context, s *models.MergeSession) {
	s.Conflicts = e.resolver.Resolve(s.SelectedGroup(), s.Suggestion, s.Overrides)

	next := models.StateAutoResolved
	if (s.Suggestion != nil && s.Suggestion.HumanReviewRequired) || !merging.ReadyToApprove(s.Conflicts) {
		next = models.StateNeedsReview
	}
	e.transition(ctx, s, next)
}

// sessionInState returns a copy of the session if it is in one of states
func (e *Engine) sessionInState(sessionID string, states ...models.MergeState) (*models.MergeSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, sessionNotFound(sessionID)
	}
	for _, st := range states {
		if s.State == st {
			if st == models.StateAwaitingSuggestion {
				return nil, clovererrors.NewConflictError(s.Group.Keeper.ID, "suggestion already in flight for this group")
			}
			return s.Clone(), nil
		}
	}
	return nil, invalidTransition(s.State, states[0])
}

type namedProvider interface {
	Name() string
}

func providerName(p SuggestionProvider) string {
	if n, ok := p.(namedProvider); ok {
		return n.Name()
	}
	return "custom"
}
