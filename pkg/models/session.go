package models

import "time"

// MergeState is a step in a group's reconciliation lifecycle
type MergeState string

const (
	StateIdentified         MergeState = "identified"
	StateSelectedForMerge   MergeState = "selected_for_merge"
	StateAwaitingSuggestion MergeState = "awaiting_suggestion"
	StateAutoResolved       MergeState = "auto_resolved"
	StateNeedsReview        MergeState = "needs_review"
	StateApproved           MergeState = "approved"
	StateApplied            MergeState = "applied"
	StateDismissed          MergeState = "dismissed"
	StateUndone             MergeState = "undone"
)

// IsTerminal reports whether no further transition is possible
func (s MergeState) IsTerminal() bool {
	return s == StateDismissed || s == StateUndone
}

// MergeSession is the engine's working state for one group under review
type MergeSession struct {
	ID          string            `json:"id"`
	Group       DuplicateGroup    `json:"group"`
	State       MergeState        `json:"state"`
	SelectedIDs []string          `json:"selected_ids"`
	Suggestion  *Suggestion       `json:"suggestion,omitempty"`
	Overrides   map[string]string `json:"overrides"`
	Conflicts   []FieldConflict   `json:"conflicts"`
	ApprovedBy  string            `json:"approved_by,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	EventID     string            `json:"event_id,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// SelectedGroup narrows the group to the selected candidates
func (s *MergeSession) SelectedGroup() DuplicateGroup {
	g := DuplicateGroup{ID: s.Group.ID, Keeper: s.Group.Keeper}
	for _, id := range s.SelectedIDs {
		if c, ok := s.Group.Candidate(id); ok {
			g.Candidates = append(g.Candidates, c)
		}
	}
	return g
}

// ReadyToApprove is true when no field still waits on a human decision
func (s *MergeSession) ReadyToApprove() bool {
	for _, c := range s.Conflicts {
		if c.NeedsReview && c.ChosenValue == "" {
			return false
		}
	}
	return s.State == StateAutoResolved || s.State == StateNeedsReview
}

// Clone returns a deep enough copy for callers to read without racing the engine
func (s *MergeSession) Clone() *MergeSession {
	c := *s
	c.SelectedIDs = append([]string(nil), s.SelectedIDs...)
	c.Conflicts = append([]FieldConflict(nil), s.Conflicts...)
	c.Overrides = make(map[string]string, len(s.Overrides))
	for k, v := range s.Overrides {
		c.Overrides[k] = v
	}
	return &c
}
