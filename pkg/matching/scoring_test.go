package matching

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func bell(id, first string) models.PersonRecord {
	return models.PersonRecord{
		ID:          id,
		FirstName:   first,
		LastName:    "Bell",
		SSN:         "1200659479",
		DateOfBirth: "2007-07-10",
		Active:      true,
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, LevenshteinDistance("raymond", "raymond"))
	assert.Equal(t, 2, LevenshteinDistance("raymond", "raymogond"))
	assert.Equal(t, 1, LevenshteinDistance("raymogond", "raymogand"))
	assert.Equal(t, 3, LevenshteinDistance("", "abc"))
	assert.Equal(t, 1, LevenshteinDistance("josé", "jose"))

	assert.Equal(t, 1.0, Levenshtein("", ""))
	assert.InDelta(t, 0.778, Levenshtein("raymond", "raymogond"), 0.001)
	assert.InDelta(t, 0.889, Levenshtein("raymogond", "raymogand"), 0.001)
}

func TestScore_RaymondExample(t *testing.T) {
	s := NewScorer(Weights{})

	// two inserted letters: similarity 0.78 rounds to 8 points
	score, reasons := s.Score(bell("k", "Raymond"), bell("c", "Raymogond"))
	assert.Equal(t, 83, score)
	assert.Equal(t, []models.MatchReason{
		models.ReasonIDMatch,
		models.ReasonDOBMatch,
		models.ReasonLastNameMatch,
		models.ReasonFirstNameSimilar,
	}, reasons)

	// a single edit over nine letters rounds to 9 points
	score, reasons = s.Score(bell("k", "Raymogand"), bell("c", "Raymogond"))
	assert.Equal(t, 84, score)
	assert.Equal(t, models.ReasonFirstNameSimilar, reasons[len(reasons)-1])
}

func TestScore_Rules(t *testing.T) {
	s := NewScorer(DefaultWeights())

	tests := []struct {
		name    string
		a, b    models.PersonRecord
		score   int
		reasons []models.MatchReason
	}{
		{
			name:    "empty records never score",
			a:       models.PersonRecord{ID: "a"},
			b:       models.PersonRecord{ID: "b"},
			score:   0,
			reasons: []models.MatchReason{},
		},
		{
			name:    "email compares case insensitively",
			a:       models.PersonRecord{ID: "a", Email: "Ray@Example.com"},
			b:       models.PersonRecord{ID: "b", Email: " ray@example.com"},
			score:   10,
			reasons: []models.MatchReason{models.ReasonEmailMatch},
		},
		{
			name:    "phone ignores formatting and country code",
			a:       models.PersonRecord{ID: "a", PhoneNumber: "(555) 010-0000"},
			b:       models.PersonRecord{ID: "b", PhoneNumber: "+1 555 010 0000"},
			score:   10,
			reasons: []models.MatchReason{models.ReasonPhoneMatch},
		},
		{
			name:    "address needs street and number",
			a:       models.PersonRecord{ID: "a", Street: "Main Street", Number: "12"},
			b:       models.PersonRecord{ID: "b", Street: "main st", Number: "12"},
			score:   10,
			reasons: []models.MatchReason{models.ReasonAddressMatch},
		},
		{
			name:    "street alone is not an address match",
			a:       models.PersonRecord{ID: "a", Street: "Main Street", Number: "12"},
			b:       models.PersonRecord{ID: "b", Street: "Main Street"},
			score:   0,
			reasons: []models.MatchReason{},
		},
		{
			name:    "dates in different layouts match",
			a:       models.PersonRecord{ID: "a", DateOfBirth: "07/10/2007"},
			b:       models.PersonRecord{ID: "b", DateOfBirth: "2007-07-10"},
			score:   20,
			reasons: []models.MatchReason{models.ReasonDOBMatch},
		},
		{
			name:    "first name close",
			a:       models.PersonRecord{ID: "a", FirstName: "Jon"},
			b:       models.PersonRecord{ID: "b", FirstName: "John"},
			score:   8,
			reasons: []models.MatchReason{models.ReasonFirstNameSimilar},
		},
		{
			name:    "first name loosely close",
			a:       models.PersonRecord{ID: "a", FirstName: "Anna"},
			b:       models.PersonRecord{ID: "b", FirstName: "Annie"},
			score:   6,
			reasons: []models.MatchReason{models.ReasonFirstNameClose},
		},
		{
			name:    "one letter off in a short name is close",
			a:       models.PersonRecord{ID: "a", FirstName: "Bob"},
			b:       models.PersonRecord{ID: "b", FirstName: "Rob"},
			score:   7,
			reasons: []models.MatchReason{models.ReasonFirstNameClose},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, reasons := s.Score(tt.a, tt.b)
			assert.Equal(t, tt.score, score)
			assert.Equal(t, tt.reasons, reasons)
		})
	}
}

func TestScore_CappedAndSymmetric(t *testing.T) {
	s := NewScorer(DefaultWeights())
	a := models.PersonRecord{
		ID: "a", FirstName: "Ana", LastName: "Lopez", SSN: "123", DateOfBirth: "1990-01-01",
		Email: "ana@x.io", PhoneNumber: "5550100", Street: "Elm St", Number: "4",
	}
	b := a
	b.ID = "b"
	b.FirstName = "Anna"

	ab, _ := s.Score(a, b)
	ba, _ := s.Score(b, a)
	assert.Equal(t, MaxScore, ab)
	assert.Equal(t, ab, ba)

	pairs := [][2]models.PersonRecord{
		{bell("1", "Raymond"), bell("2", "Ray")},
		{bell("1", "Ann"), models.PersonRecord{ID: "2", FirstName: "Anne", Email: "x@y.z"}},
	}
	for _, p := range pairs {
		x, _ := s.Score(p[0], p[1])
		y, _ := s.Score(p[1], p[0])
		assert.Equal(t, x, y)
		assert.GreaterOrEqual(t, x, 0)
		assert.LessOrEqual(t, x, MaxScore)
	}
}

func TestRank(t *testing.T) {
	s := NewScorer(DefaultWeights())
	ref := bell("k", "Raymond")
	retiredTo := "k"
	pool := []models.PersonRecord{
		ref,
		bell("c3", "Raymond"),
		bell("c1", "Raymond"),
		bell("c2", "Raymogond"),
		{ID: "far", FirstName: "Zed", LastName: "Quinn", Active: true},
		{ID: "gone", FirstName: "Raymond", LastName: "Bell", SSN: "1200659479", MergedInto: &retiredTo},
	}
	before := append([]models.PersonRecord(nil), pool...)

	got := s.Rank(ref, pool, 50)
	require.Len(t, got, 3)
	assert.Equal(t, "c1", got[0].Record.ID)
	assert.Equal(t, "c3", got[1].Record.ID)
	assert.Equal(t, "c2", got[2].Record.ID)
	assert.Equal(t, 85, got[0].Score)
	assert.Equal(t, 83, got[2].Score)
	assert.Equal(t, before, pool)

	for _, c := range got {
		assert.NotEqual(t, ref.ID, c.Record.ID)
	}

	assert.Empty(t, s.Rank(ref, pool, 101))
	assert.Len(t, s.Rank(ref, pool, 0), 4)
}

func TestBuildGroup_Tier(t *testing.T) {
	s := NewScorer(DefaultWeights())
	ref := bell("k", "Raymond")

	g := s.BuildGroup(ref, []models.PersonRecord{ref, bell("c", "Raymogond")}, 50)
	assert.Equal(t, "k", g.ID)
	assert.Equal(t, 83, g.MaxScore())
	assert.Equal(t, models.ConfidenceHigh, g.ConfidenceTier())

	lonely := s.BuildGroup(ref, []models.PersonRecord{ref}, 50)
	assert.Empty(t, lonely.Candidates)
	assert.Equal(t, models.ConfidenceLow, lonely.ConfidenceTier())
}

func TestBuildGroups(t *testing.T) {
	s := NewScorer(DefaultWeights())
	pool := []models.PersonRecord{
		bell("r2", "Raymogond"),
		bell("r1", "Raymond"),
		{ID: "a2", FirstName: "Ann", LastName: "Lee", Email: "ann@lee.io", DateOfBirth: "1970-02-02", Active: true},
		{ID: "a1", FirstName: "Anne", LastName: "Lee", Email: "ann@lee.io", DateOfBirth: "1970-02-02", Active: true},
		{ID: "solo", FirstName: "Zed", Active: true},
	}

	groups := s.BuildGroups(pool, 40)
	require.Len(t, groups, 2)
	assert.Equal(t, "a1", groups[0].Keeper.ID)
	assert.Equal(t, "a2", groups[0].Candidates[0].Record.ID)
	assert.Equal(t, "r1", groups[1].Keeper.ID)
	assert.Equal(t, "r2", groups[1].Candidates[0].Record.ID)
}

func TestLoadWeights(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: 60\naddress: 0\n"), 0o600))

	w, err := LoadWeights(path)
	require.NoError(t, err)
	assert.Equal(t, 60, w.ID)
	assert.Equal(t, 0, w.Address)
	assert.Equal(t, 20, w.DOB)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("dob: -5\n"), 0o600))
	_, err = LoadWeights(bad)
	assert.Error(t, err)

	w, err = LoadWeights("")
	require.NoError(t, err)
	assert.Equal(t, DefaultWeights(), w)

	_, err = LoadWeights(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
