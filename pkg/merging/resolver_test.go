package merging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func group() models.DuplicateGroup {
	return models.DuplicateGroup{
		ID: "k",
		Keeper: models.PersonRecord{
			ID: "k", FirstName: "Raymond", LastName: "Bell", PhoneNumber: "555-0100", Email: "ray@example.com",
		},
		Candidates: []models.MatchCandidate{
			{Record: models.PersonRecord{ID: "d1", FirstName: "Raymogond", LastName: "Bell", PhoneNumber: "555-0101", City: "Austin"}},
			{Record: models.PersonRecord{ID: "d2", FirstName: "Raymond", LastName: "Bell", PhoneNumber: "555-0101", Email: "ray@example.com"}},
		},
	}
}

func conflict(t *testing.T, conflicts []models.FieldConflict, field string) models.FieldConflict {
	t.Helper()
	for _, c := range conflicts {
		if c.FieldName == field {
			return c
		}
	}
	t.Fatalf("no conflict for %s", field)
	return models.FieldConflict{}
}

func phoneSentinel() *models.Suggestion {
	return &models.Suggestion{
		SuggestedGoldenRecord: map[string]string{
			models.FieldFirstName:   "Raymond",
			models.FieldPhoneNumber: models.NeedsHumanReview,
		},
		ConflictsResolved: []models.ConflictResolution{
			{Field: models.FieldFirstName, ChosenValue: "Raymond", Justification: "majority spelling"},
		},
	}
}

func TestResolve_Options(t *testing.T) {
	conflicts := Resolve(group(), nil, nil)
	require.Len(t, conflicts, len(models.ReconcilableFields))
	for i, f := range models.ReconcilableFields {
		assert.Equal(t, f, conflicts[i].FieldName)
	}

	phone := conflict(t, conflicts, models.FieldPhoneNumber)
	require.Len(t, phone.Options, 2)
	assert.Equal(t, models.ValueOption{Value: "555-0100", SourceRecordID: "k", IsKeeper: true}, phone.Options[0])
	assert.Equal(t, models.ValueOption{Value: "555-0101", SourceRecordID: "d1"}, phone.Options[1])
	assert.Equal(t, "555-0100", phone.ChosenValue)
	assert.Equal(t, models.SourceKeeper, phone.Source)

	email := conflict(t, conflicts, models.FieldEmail)
	assert.Equal(t, []models.ValueOption{
		{Value: "ray@example.com", SourceRecordID: "k", IsKeeper: true},
		{Value: "", SourceRecordID: "d1"},
	}, email.Options)
	assert.Equal(t, "ray@example.com", email.ChosenValue)
	assert.Equal(t, models.SourceKeeper, email.Source)

	// a blank keeper value is a conflict, not a gap filled from the duplicate
	city := conflict(t, conflicts, models.FieldCity)
	assert.Equal(t, []models.ValueOption{
		{Value: "", SourceRecordID: "k", IsKeeper: true},
		{Value: "Austin", SourceRecordID: "d1"},
	}, city.Options)
	assert.Equal(t, "", city.ChosenValue)
	assert.Equal(t, models.SourceKeeper, city.Source)

	region := conflict(t, conflicts, models.FieldRegion)
	assert.Empty(t, region.Options)
	assert.Equal(t, "", region.ChosenValue)
}

func TestResolve_SuggestionAndSentinel(t *testing.T) {
	conflicts := Resolve(group(), phoneSentinel(), nil)

	first := conflict(t, conflicts, models.FieldFirstName)
	assert.Equal(t, "Raymond", first.ChosenValue)
	assert.Equal(t, models.SourceAI, first.Source)
	assert.Equal(t, "majority spelling", first.Justification)

	phone := conflict(t, conflicts, models.FieldPhoneNumber)
	assert.True(t, phone.NeedsReview)
	assert.Empty(t, phone.ChosenValue)
	assert.False(t, ReadyToApprove(conflicts))
	assert.Equal(t, []string{models.FieldPhoneNumber}, Unresolved(conflicts))
}

func TestResolve_BlankKeeperValue(t *testing.T) {
	g := models.DuplicateGroup{
		ID:     "k",
		Keeper: models.PersonRecord{ID: "k", FirstName: "Ann"},
		Candidates: []models.MatchCandidate{
			{Record: models.PersonRecord{ID: "d", FirstName: "Ann", Email: "other@example.com"}},
		},
	}

	t.Run("sentinel blocks the field", func(t *testing.T) {
		s := &models.Suggestion{
			ConflictsResolved: []models.ConflictResolution{
				{Field: models.FieldEmail, ChosenValue: models.NeedsHumanReview, Justification: "unverified address"},
			},
		}
		conflicts := Resolve(g, s, nil)
		email := conflict(t, conflicts, models.FieldEmail)
		assert.True(t, email.NeedsReview)
		assert.Equal(t, "", email.ChosenValue)
		assert.Equal(t, models.SourceAI, email.Source)
		assert.False(t, ReadyToApprove(conflicts))
		assert.Equal(t, []string{models.FieldEmail}, Unresolved(conflicts))
	})

	t.Run("suggested value is adopted", func(t *testing.T) {
		s := &models.Suggestion{SuggestedGoldenRecord: map[string]string{models.FieldEmail: "other@example.com"}}
		email := conflict(t, Resolve(g, s, nil), models.FieldEmail)
		assert.Equal(t, "other@example.com", email.ChosenValue)
		assert.Equal(t, models.SourceAI, email.Source)
	})

	t.Run("keeper blank stands without a suggestion", func(t *testing.T) {
		conflicts := Resolve(g, nil, nil)
		email := conflict(t, conflicts, models.FieldEmail)
		assert.Len(t, email.Options, 2)
		assert.Equal(t, "", email.ChosenValue)
		assert.Equal(t, models.SourceKeeper, email.Source)
		assert.True(t, ReadyToApprove(conflicts))
	})

	t.Run("override picks the duplicate value", func(t *testing.T) {
		email := conflict(t, Resolve(g, nil, map[string]string{models.FieldEmail: "other@example.com"}), models.FieldEmail)
		assert.Equal(t, models.SourceDuplicate, email.Source)
	})
}

func TestResolve_OptionsAreTrimmed(t *testing.T) {
	g := models.DuplicateGroup{
		ID:     "k",
		Keeper: models.PersonRecord{ID: "k", City: "Austin"},
		Candidates: []models.MatchCandidate{
			{Record: models.PersonRecord{ID: "d", City: " Austin  "}},
		},
	}
	s := &models.Suggestion{SuggestedGoldenRecord: map[string]string{models.FieldCity: models.NeedsHumanReview}}

	city := conflict(t, Resolve(g, s, nil), models.FieldCity)
	assert.Equal(t, []models.ValueOption{{Value: "Austin", SourceRecordID: "k", IsKeeper: true}}, city.Options)
	assert.Equal(t, "Austin", city.ChosenValue)
	assert.False(t, city.NeedsReview)

	region := conflict(t, Resolve(models.DuplicateGroup{
		ID:         "k",
		Keeper:     models.PersonRecord{ID: "k"},
		Candidates: []models.MatchCandidate{{Record: models.PersonRecord{ID: "d", Region: "   "}}},
	}, nil, nil), models.FieldRegion)
	assert.Empty(t, region.Options)
}

func TestResolve_Override(t *testing.T) {
	conflicts := Resolve(group(), phoneSentinel(), map[string]string{models.FieldPhoneNumber: "555-0101"})

	phone := conflict(t, conflicts, models.FieldPhoneNumber)
	assert.False(t, phone.NeedsReview)
	assert.Equal(t, "555-0101", phone.ChosenValue)
	assert.Equal(t, models.SourceDuplicate, phone.Source)
	assert.True(t, ReadyToApprove(conflicts))

	typed := Resolve(group(), phoneSentinel(), map[string]string{models.FieldPhoneNumber: "555-9999"})
	assert.Equal(t, models.SourceHuman, conflict(t, typed, models.FieldPhoneNumber).Source)

	blank := Resolve(group(), phoneSentinel(), map[string]string{models.FieldPhoneNumber: "  "})
	assert.False(t, ReadyToApprove(blank))
}

func TestResolve_Idempotent(t *testing.T) {
	overrides := map[string]string{models.FieldCity: "Dallas"}
	a := Resolve(group(), phoneSentinel(), overrides)
	b := Resolve(group(), phoneSentinel(), overrides)
	assert.Equal(t, a, b)
}

func TestResolve_SubsetOfFields(t *testing.T) {
	r := NewResolver(models.FieldEmail, models.FieldPhoneNumber)
	conflicts := r.Resolve(group(), nil, nil)
	require.Len(t, conflicts, 2)
	assert.Equal(t, models.FieldEmail, conflicts[0].FieldName)
}

func TestGoldenRecordAndDiff(t *testing.T) {
	g := group()
	conflicts := Resolve(g, phoneSentinel(), map[string]string{models.FieldPhoneNumber: "555-0101"})
	draft := GoldenRecord(conflicts)

	assert.Equal(t, "555-0101", draft[models.FieldPhoneNumber])
	assert.Equal(t, "", draft[models.FieldCity])

	diffs := Diff(g.Keeper, draft)
	assert.Equal(t, []models.FieldDiff{
		{Field: models.FieldPhoneNumber, From: "555-0100", To: "555-0101"},
	}, diffs)

	filled := GoldenRecord(Resolve(g, phoneSentinel(), map[string]string{
		models.FieldPhoneNumber: "555-0101",
		models.FieldCity:        "Austin",
	}))
	assert.Contains(t, Diff(g.Keeper, filled), models.FieldDiff{Field: models.FieldCity, From: "", To: "Austin"})

	assert.Empty(t, Diff(g.Keeper, GoldenRecord(Resolve(models.DuplicateGroup{ID: "k", Keeper: g.Keeper}, nil, nil))))
}
