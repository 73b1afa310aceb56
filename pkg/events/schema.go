package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
)

// EventType names a merge lifecycle fact
type EventType string

const (
	EventTypeMergeApplied   EventType = "merge.applied"
	EventTypeMergeUndone    EventType = "merge.undone"
	EventTypeGroupDismissed EventType = "merge.dismissed"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// MergeEvent is emitted after a merge is applied or undone
type MergeEvent struct {
	BaseEvent
	ActivityID string             `json:"activity_id"`
	KeeperID   string             `json:"keeper_id"`
	MergedIDs  []string           `json:"merged_ids"`
	FieldDiffs []models.FieldDiff `json:"field_diffs"`
	Actor      string             `json:"actor,omitempty"`
	ActorRole  models.Role        `json:"actor_role,omitempty"`
}

// GroupDismissedEvent is emitted when a reviewer decides a group is not a duplicate set
type GroupDismissedEvent struct {
	BaseEvent
	SessionID    string   `json:"session_id"`
	GroupID      string   `json:"group_id"`
	KeeperID     string   `json:"keeper_id"`
	CandidateIDs []string `json:"candidate_ids"`
}

// NewBaseEvent stamps the schema version and a correlation id. A request id on the
// context is reused as the correlation id so events can be traced to the API call.
func NewBaseEvent(eventType EventType, correlationID string) BaseEvent {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}
