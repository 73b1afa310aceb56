package models

// MatchReason names the rule that contributed to a candidate's score
type MatchReason string

const (
	ReasonIDMatch          MatchReason = "ID match"
	ReasonDOBMatch         MatchReason = "DOB match"
	ReasonEmailMatch       MatchReason = "Email match"
	ReasonPhoneMatch       MatchReason = "Phone match"
	ReasonLastNameMatch    MatchReason = "Last name match"
	ReasonFirstNameSimilar MatchReason = "First name similar"
	ReasonFirstNameClose   MatchReason = "First name close"
	ReasonAddressMatch     MatchReason = "Address match"
)

// MatchCandidate is derived data: one scored (reference, other) pair
type MatchCandidate struct {
	Record  PersonRecord  `json:"record"`
	Score   int           `json:"score"`
	Reasons []MatchReason `json:"reasons"`
}

// ConfidenceTier is a coarse label for a group's top candidate score
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

// TierForScore maps a 0..100 score onto a confidence tier
func TierForScore(score int) ConfidenceTier {
	ratio := float64(score) / 100
	switch {
	case ratio >= 0.8:
		return ConfidenceHigh
	case ratio >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// DuplicateGroup is a keeper and its accepted candidates. It only lives for a review session.
type DuplicateGroup struct {
	ID         string           `json:"id"`
	Keeper     PersonRecord     `json:"keeper"`
	Candidates []MatchCandidate `json:"candidates"`
}

// MaxScore is the highest candidate score, 0 for an empty group
func (g DuplicateGroup) MaxScore() int {
	max := 0
	for _, c := range g.Candidates {
		if c.Score > max {
			max = c.Score
		}
	}
	return max
}

// ConfidenceTier is computed from the candidates on every call and never stored
func (g DuplicateGroup) ConfidenceTier() ConfidenceTier {
	return TierForScore(g.MaxScore())
}

// Candidate looks up a candidate by record id
func (g DuplicateGroup) Candidate(id string) (MatchCandidate, bool) {
	for _, c := range g.Candidates {
		if c.Record.ID == id {
			return c, true
		}
	}
	return MatchCandidate{}, false
}

// Members returns the keeper followed by every candidate record
func (g DuplicateGroup) Members() []PersonRecord {
	out := make([]PersonRecord, 0, len(g.Candidates)+1)
	out = append(out, g.Keeper)
	for _, c := range g.Candidates {
		out = append(out, c.Record)
	}
	return out
}

// DuplicateGroupView is the wire shape of a group, with its derived tier
type DuplicateGroupView struct {
	ID             string           `json:"id"`
	Keeper         PersonRecord     `json:"keeper"`
	Candidates     []MatchCandidate `json:"candidates"`
	ConfidenceTier ConfidenceTier   `json:"confidence_tier"`
}

func (g DuplicateGroup) View() DuplicateGroupView {
	return DuplicateGroupView{
		ID:             g.ID,
		Keeper:         g.Keeper,
		Candidates:     g.Candidates,
		ConfidenceTier: g.ConfidenceTier(),
	}
}
