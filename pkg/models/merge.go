package models

import "time"

// NeedsHumanReview is the only suggestion value that blocks automatic application
const NeedsHumanReview = "NEEDS_HUMAN_REVIEW"

// ConflictSource records where a field's chosen value came from
type ConflictSource string

const (
	SourceKeeper    ConflictSource = "keeper"
	SourceDuplicate ConflictSource = "duplicate"
	SourceAI        ConflictSource = "ai"
	SourceHuman     ConflictSource = "human"
)

// ValueOption is one distinct value seen for a field, with the record it came from
type ValueOption struct {
	Value          string `json:"value"`
	SourceRecordID string `json:"source_record_id"`
	IsKeeper       bool   `json:"is_keeper"`
}

// FieldConflict is the reconciliation state of a single field
type FieldConflict struct {
	FieldName     string         `json:"field_name"`
	Options       []ValueOption  `json:"options"`
	ChosenValue   string         `json:"chosen_value"`
	Source        ConflictSource `json:"source"`
	Justification string         `json:"justification,omitempty"`
	NeedsReview   bool           `json:"needs_review"`
}

// GoldenRecordDraft maps field name to the value that will be written to the keeper
type GoldenRecordDraft map[string]string

// ConflictResolution is one field decision reported by a suggestion provider
type ConflictResolution struct {
	Field         string `json:"field"`
	ValueA        string `json:"valueA"`
	ValueB        string `json:"valueB"`
	ChosenValue   string `json:"chosenValue"`
	Justification string `json:"justification,omitempty"`
}

// Suggestion is the suggestion provider's response contract
type Suggestion struct {
	SuggestedGoldenRecord map[string]string    `json:"suggestedGoldenRecord"`
	HumanReviewRequired   bool                 `json:"humanReviewRequired"`
	ConflictsResolved     []ConflictResolution `json:"conflictsResolved"`
	ProcessingLog         []string             `json:"processingLog,omitempty"`
}

// Resolution returns the provider's decision for field. When several entries name
// the same field the last one wins, matching an iterative pairwise merge.
func (s *Suggestion) Resolution(field string) (ConflictResolution, bool) {
	if s == nil {
		return ConflictResolution{}, false
	}
	var (
		found ConflictResolution
		ok    bool
	)
	for _, r := range s.ConflictsResolved {
		if r.Field == field {
			found, ok = r, true
		}
	}
	return found, ok
}

// FieldDiff is a single field change written to the keeper
type FieldDiff struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// ActivityKind distinguishes merge events from the undo facts recorded after them
type ActivityKind string

const (
	ActivityMerge ActivityKind = "merge"
	ActivityUndo  ActivityKind = "undo"
)

// MergeActivityEvent is an append-only audit entry
type MergeActivityEvent struct {
	ID         string       `json:"id"`
	Kind       ActivityKind `json:"kind"`
	KeeperID   string       `json:"keeper_id"`
	MergedIDs  []string     `json:"merged_ids"`
	FieldDiffs []FieldDiff  `json:"field_diffs"`
	Actor      string       `json:"actor,omitempty"`
	ActorRole  Role         `json:"actor_role,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Snapshot is the full pre-merge copy of a keeper and its retired duplicates
type Snapshot struct {
	KeeperID string         `json:"keeper_id"`
	EventID  string         `json:"event_id"`
	Records  []PersonRecord `json:"records"`
	TakenAt  time.Time      `json:"taken_at"`
}

// Keeper returns the keeper's pre-merge copy
func (s Snapshot) Keeper() (PersonRecord, bool) {
	for _, r := range s.Records {
		if r.ID == s.KeeperID {
			return r, true
		}
	}
	return PersonRecord{}, false
}

// RetiredIDs lists the duplicate ids captured by the snapshot
func (s Snapshot) RetiredIDs() []string {
	out := make([]string, 0, len(s.Records))
	for _, r := range s.Records {
		if r.ID != s.KeeperID {
			out = append(out, r.ID)
		}
	}
	return out
}
