// Package events announces merge lifecycle changes to downstream consumers
package events

import (
	"context"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	clovercontext "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Publisher is satisfied by kafka.Producer
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload any, headers map[string]string) error
}

// Emitter turns engine facts into versioned events keyed by keeper id
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) MergeApplied(ctx context.Context, activity models.MergeActivityEvent) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.MergeApplied")
	defer span.End()

	return e.emitMerge(ctx, EventTypeMergeApplied, activity)
}

func (e *Emitter) MergeUndone(ctx context.Context, activity models.MergeActivityEvent) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.MergeUndone")
	defer span.End()

	return e.emitMerge(ctx, EventTypeMergeUndone, activity)
}

func (e *Emitter) GroupDismissed(ctx context.Context, session *models.MergeSession) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.GroupDismissed")
	defer span.End()

	candidates := ectolinq.Map(session.Group.Candidates, func(c models.MatchCandidate) string {
		return c.Record.ID
	})

	event := GroupDismissedEvent{
		BaseEvent:    NewBaseEvent(EventTypeGroupDismissed, clovercontext.GetRequestID(ctx)),
		SessionID:    session.ID,
		GroupID:      session.Group.ID,
		KeeperID:     session.Group.Keeper.ID,
		CandidateIDs: candidates,
	}

	if err := e.publisher.Publish(ctx, string(event.EventType), event.KeeperID, event, e.headers(event.BaseEvent)); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit merge.dismissed event")
		return err
	}
	return nil
}

func (e *Emitter) emitMerge(ctx context.Context, eventType EventType, activity models.MergeActivityEvent) error {
	event := MergeEvent{
		BaseEvent:  NewBaseEvent(eventType, clovercontext.GetRequestID(ctx)),
		ActivityID: activity.ID,
		KeeperID:   activity.KeeperID,
		MergedIDs:  activity.MergedIDs,
		FieldDiffs: activity.FieldDiffs,
		Actor:      activity.Actor,
		ActorRole:  activity.ActorRole,
	}
	if !activity.Timestamp.IsZero() {
		event.Timestamp = activity.Timestamp.UTC()
	}

	if err := e.publisher.Publish(ctx, string(eventType), activity.KeeperID, event, e.headers(event.BaseEvent)); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type":  eventType,
			"activity_id": activity.ID,
		}).Error("Failed to emit merge event")
		return err
	}
	return nil
}

func (e *Emitter) headers(base BaseEvent) map[string]string {
	return map[string]string{
		"schema_version": base.SchemaVersion,
		"correlation_id": base.CorrelationID,
	}
}
