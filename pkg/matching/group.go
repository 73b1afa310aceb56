package matching

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
)

// BuildGroup ranks pool against reference and wraps the result as a group keyed by
// the reference id. A group with no candidates is valid and has tier low.
func (s *Scorer) BuildGroup(reference models.PersonRecord, pool []models.PersonRecord, thresholdPercent int) models.DuplicateGroup {
	return models.DuplicateGroup{
		ID:         reference.ID,
		Keeper:     reference,
		Candidates: s.Rank(reference, pool, thresholdPercent),
	}
}

// BuildGroups clusters a whole pool. Every pair scoring at or above the threshold is
// linked, linked records are unioned into components, and each component with more
// than one member becomes a group kept by its lowest id. Groups are ordered by keeper id.
func (s *Scorer) BuildGroups(pool []models.PersonRecord, thresholdPercent int) []models.DuplicateGroup {
	active := make([]models.PersonRecord, 0, len(pool))
	for _, r := range pool {
		if isActive(r) {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	uf := newUnionFind(len(active))
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			if score, _ := s.Score(active[i], active[j]); score >= thresholdPercent {
				uf.union(i, j)
			}
		}
	}

	components := make(map[int][]int)
	for i := range active {
		root := uf.find(i)
		components[root] = append(components[root], i)
	}

	groups := make([]models.DuplicateGroup, 0, len(components))
	for _, members := range components {
		if len(members) < 2 {
			continue
		}
		// members are ascending, so the first one holds the lowest id
		keeper := active[members[0]]
		others := make([]models.PersonRecord, 0, len(members)-1)
		for _, idx := range members[1:] {
			others = append(others, active[idx])
		}

		// transitive members may score below the threshold against the keeper itself
		candidates := make([]models.MatchCandidate, 0, len(others))
		for _, other := range others {
			score, reasons := s.Score(keeper, other)
			candidates = append(candidates, models.MatchCandidate{Record: other, Score: score, Reasons: reasons})
		}
		sortCandidates(candidates)

		groups = append(groups, models.DuplicateGroup{
			ID:         keeper.ID,
			Keeper:     keeper,
			Candidates: candidates,
		})
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
