// Package automerge drives many duplicate groups through the reconcile engine at once.
package automerge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Config struct {
	Workers           int
	SuggestionTimeout time.Duration
}

// Failure is a group whose suggestion or apply step failed. The group is left for a retry pass.
type Failure struct {
	GroupID string `json:"group_id"`
	Error   string `json:"error"`
	Err     error  `json:"-"`
}

// Result buckets every processed group. Lists are sorted by group id.
type Result struct {
	Applied     []string          `json:"applied"`
	NeedsReview []string          `json:"needs_review"`
	Failed      []Failure         `json:"failed"`
	Sessions    map[string]string `json:"sessions"`
}

type Orchestrator struct {
	engine *reconcile.Engine
	logger ectologger.Logger
	config Config
	actor  models.Actor
}

func NewOrchestrator(engine *reconcile.Engine, logger ectologger.Logger, config Config) *Orchestrator {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Orchestrator{
		engine: engine,
		logger: logger,
		config: config,
		actor:  models.SystemActor,
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeApplied
	outcomeNeedsReview
	outcomeFailed
)

// AutoMerge suggests, resolves and applies each group. Groups with an unresolved field
// stop at NeedsReview; groups without candidates are skipped.
func (o *Orchestrator) AutoMerge(ctx context.Context, groups []models.DuplicateGroup, provider reconcile.SuggestionProvider) Result {
	ctx, span := tracing.StartSpan(ctx, "automerge.Orchestrator.AutoMerge")
	defer span.End()

	result := Result{
		Applied:     []string{},
		NeedsReview: []string{},
		Failed:      []Failure{},
		Sessions:    make(map[string]string),
	}

	var mu sync.Mutex
	tasks := make(chan models.DuplicateGroup)
	var wg sync.WaitGroup

	for i := 0; i < o.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range tasks {
				sessionID, out, err := o.process(ctx, group, provider)

				mu.Lock()
				if sessionID != "" {
					result.Sessions[group.ID] = sessionID
				}
				switch out {
				case outcomeApplied:
					result.Applied = append(result.Applied, group.ID)
				case outcomeNeedsReview:
					result.NeedsReview = append(result.NeedsReview, group.ID)
				case outcomeFailed:
					result.Failed = append(result.Failed, Failure{GroupID: group.ID, Error: err.Error(), Err: err})
				}
				mu.Unlock()
			}
		}()
	}

	for _, g := range groups {
		if g.ID == "" {
			g.ID = g.Keeper.ID
		}
		tasks <- g
	}
	close(tasks)
	wg.Wait()

	sort.Strings(result.Applied)
	sort.Strings(result.NeedsReview)
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].GroupID < result.Failed[j].GroupID })

	o.logger.WithContext(ctx).WithFields(map[string]any{
		"groups":       len(groups),
		"applied":      len(result.Applied),
		"needs_review": len(result.NeedsReview),
		"failed":       len(result.Failed),
	}).Info("Auto-merge finished")

	return result
}

func (o *Orchestrator) process(ctx context.Context, group models.DuplicateGroup, provider reconcile.SuggestionProvider) (string, outcome, error) {
	if len(group.Candidates) == 0 {
		metrics.RecordAutoMerge("skipped")
		return "", outcomeSkipped, nil
	}
	log := o.logger.WithContext(ctx).WithFields(map[string]any{"group_id": group.ID})

	session, err := o.engine.Open(ctx, group)
	if err != nil {
		metrics.RecordAutoMerge("failed")
		return "", outcomeFailed, err
	}

	ids := make([]string, 0, len(group.Candidates))
	for _, c := range group.Candidates {
		ids = append(ids, c.Record.ID)
	}
	if _, err := o.engine.Select(ctx, session.ID, ids); err != nil {
		metrics.RecordAutoMerge("failed")
		return session.ID, outcomeFailed, err
	}

	sessionID := session.ID
	session, err = o.engine.RequestSuggestion(ctx, sessionID, provider, o.config.SuggestionTimeout)
	if err != nil {
		log.WithError(err).Warn("Auto-merge suggestion failed")
		metrics.RecordAutoMerge("failed")
		return sessionID, outcomeFailed, err
	}
	if session.State != models.StateAutoResolved {
		metrics.RecordAutoMerge("needs_review")
		return session.ID, outcomeNeedsReview, nil
	}

	if _, err := o.engine.Approve(ctx, session.ID, o.actor); err != nil {
		if clovererrors.IsValidation(err) {
			// e.g. the golden record has no name; a human has to fill it in
			metrics.RecordAutoMerge("needs_review")
			return session.ID, outcomeNeedsReview, nil
		}
		metrics.RecordAutoMerge("failed")
		return session.ID, outcomeFailed, err
	}

	if _, err := o.engine.Apply(ctx, session.ID, o.actor); err != nil {
		log.WithError(err).Warn("Auto-merge apply failed")
		metrics.RecordAutoMerge("failed")
		return session.ID, outcomeFailed, err
	}

	metrics.RecordAutoMerge("applied")
	return session.ID, outcomeApplied, nil
}
