package matching

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Rank scores every other active record in pool against reference and returns those
// at or above thresholdPercent, highest score first and ties by ascending id.
// The reference itself is excluded by id and pool is never modified.
func (s *Scorer) Rank(reference models.PersonRecord, pool []models.PersonRecord, thresholdPercent int) []models.MatchCandidate {
	candidates := make([]models.MatchCandidate, 0)
	for _, other := range pool {
		if other.ID == reference.ID || !isActive(other) {
			continue
		}
		score, reasons := s.Score(reference, other)
		if score < thresholdPercent {
			continue
		}
		candidates = append(candidates, models.MatchCandidate{
			Record:  other,
			Score:   score,
			Reasons: reasons,
		})
	}

	sortCandidates(candidates)
	return candidates
}

// isActive treats records retired by a merge as gone
func isActive(r models.PersonRecord) bool {
	return r.Active || r.MergedInto == nil
}

func sortCandidates(candidates []models.MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Record.ID < candidates[j].Record.ID
	})
}
