// Package merging reconciles the field values of a duplicate group into a golden record
package merging

import (
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Resolver computes per-field conflicts for a group. It is pure: every call
// builds a fresh slice and nothing is cached between calls.
type Resolver struct {
	fields []string
}

// NewResolver creates a Resolver over the given fields, or every reconcilable field when none are given
func NewResolver(fields ...string) *Resolver {
	if len(fields) == 0 {
		fields = models.ReconcilableFields
	}
	return &Resolver{fields: fields}
}

var defaultResolver = NewResolver()

// Resolve runs the default resolver over all reconcilable fields
func Resolve(group models.DuplicateGroup, suggestion *models.Suggestion, overrides map[string]string) []models.FieldConflict {
	return defaultResolver.Resolve(group, suggestion, overrides)
}

// Resolve returns one FieldConflict per field, in field order.
//
// Options are the distinct trimmed values across keeper and candidates. An empty value
// counts as an option when another member has a value, so a blank keeper field is a
// real conflict rather than a gap to fill. A single option resolves trivially. Otherwise
// a suggestion decision is adopted, with the NEEDS_HUMAN_REVIEW sentinel blocking the
// field, and with no decision the keeper's value stands. A non-empty human override
// always has the final say.
func (r *Resolver) Resolve(group models.DuplicateGroup, suggestion *models.Suggestion, overrides map[string]string) []models.FieldConflict {
	members := group.Members()
	conflicts := make([]models.FieldConflict, 0, len(r.fields))

	for _, field := range r.fields {
		conflict := models.FieldConflict{
			FieldName: field,
			Options:   collectOptions(field, group.Keeper.ID, members),
		}
		keeperValue := strings.TrimSpace(group.Keeper.Get(field))

		if len(conflict.Options) <= 1 {
			conflict.ChosenValue = keeperValue
			conflict.Source = models.SourceKeeper
		} else if value, justification, ok := suggestedValue(suggestion, field); ok {
			if value == models.NeedsHumanReview {
				conflict.NeedsReview = true
				conflict.ChosenValue = ""
			} else {
				conflict.ChosenValue = value
			}
			conflict.Source = models.SourceAI
			conflict.Justification = justification
		} else {
			conflict.ChosenValue = keeperValue
			conflict.Source = models.SourceKeeper
		}

		if override, ok := overrides[field]; ok && strings.TrimSpace(override) != "" {
			conflict.ChosenValue = override
			conflict.Source = overrideSource(override, conflict.Options)
			conflict.NeedsReview = false
		}

		conflicts = append(conflicts, conflict)
	}

	return conflicts
}

// collectOptions keeps the first record (keeper first) that carries each distinct trimmed
// value. Blank values are only listed when some member has a value.
func collectOptions(field, keeperID string, members []models.PersonRecord) []models.ValueOption {
	options := make([]models.ValueOption, 0, len(members))
	seen := make(map[string]bool, len(members))
	blanks := 0
	for _, m := range members {
		v := strings.TrimSpace(m.Get(field))
		if v == "" {
			blanks++
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		options = append(options, models.ValueOption{
			Value:          v,
			SourceRecordID: m.ID,
			IsKeeper:       m.ID == keeperID,
		})
	}
	if blanks == len(members) {
		return options[:0]
	}
	return options
}

// suggestedValue looks for a decision in conflictsResolved first, then in the suggested golden record
func suggestedValue(s *models.Suggestion, field string) (string, string, bool) {
	if s == nil {
		return "", "", false
	}
	if res, ok := s.Resolution(field); ok && res.ChosenValue != "" {
		return res.ChosenValue, res.Justification, true
	}
	if v, ok := s.SuggestedGoldenRecord[field]; ok && v != "" {
		return v, "", true
	}
	return "", "", false
}

// overrideSource reports duplicate when a human picked a value only a duplicate held
func overrideSource(value string, options []models.ValueOption) models.ConflictSource {
	value = strings.TrimSpace(value)
	for _, o := range options {
		if o.Value == value && !o.IsKeeper {
			return models.SourceDuplicate
		}
	}
	return models.SourceHuman
}

// Unresolved lists the fields still waiting on a human value
func Unresolved(conflicts []models.FieldConflict) []string {
	out := make([]string, 0)
	for _, c := range conflicts {
		if c.NeedsReview && strings.TrimSpace(c.ChosenValue) == "" {
			out = append(out, c.FieldName)
		}
	}
	return out
}

// ReadyToApprove is true when no field is still blocked on review
func ReadyToApprove(conflicts []models.FieldConflict) bool {
	return len(Unresolved(conflicts)) == 0
}

// GoldenRecord builds the draft that would be written to the keeper
func GoldenRecord(conflicts []models.FieldConflict) models.GoldenRecordDraft {
	draft := make(models.GoldenRecordDraft, len(conflicts))
	for _, c := range conflicts {
		draft[c.FieldName] = c.ChosenValue
	}
	return draft
}

// Diff returns only the fields whose draft value differs from the keeper's, in field order
func Diff(keeper models.PersonRecord, draft models.GoldenRecordDraft) []models.FieldDiff {
	diffs := make([]models.FieldDiff, 0)
	for _, field := range models.ReconcilableFields {
		to, ok := draft[field]
		if !ok {
			continue
		}
		if from := strings.TrimSpace(keeper.Get(field)); from != to {
			diffs = append(diffs, models.FieldDiff{Field: field, From: from, To: to})
		}
	}
	return diffs
}
