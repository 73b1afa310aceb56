// Package matching scores, ranks and groups probable duplicate person records
package matching

import (
	"math"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// MaxScore is the ceiling applied to every summed score
const MaxScore = 100

// Scorer applies the weighted, explainable duplicate rules. It holds no state
// beyond its weights and is safe for concurrent use.
type Scorer struct {
	weights Weights
}

// NewScorer creates a Scorer. A zero Weights value falls back to DefaultWeights.
func NewScorer(weights Weights) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Scorer{weights: weights}
}

// Weights returns the weights the scorer was built with
func (s *Scorer) Weights() Weights {
	return s.weights
}

// normalized holds the comparison keys for one record
type normalized struct {
	id        string
	dob       string
	email     string
	phone     string
	lastName  string
	firstName string
	street    string
	number    string
}

func normalize(r models.PersonRecord) normalized {
	return normalized{
		id:        normalizers.NormalizeID(r.SSN),
		dob:       normalizers.NormalizeDate(r.DateOfBirth),
		email:     normalizers.NormalizeEmail(r.Email),
		phone:     normalizers.NormalizePhone(r.PhoneNumber),
		lastName:  normalizers.NormalizeName(r.LastName),
		firstName: normalizers.NormalizeFirstName(r.FirstName),
		street:    normalizers.NormalizeAddress(r.Street),
		number:    normalizers.ApplyChain(r.Number, "trim", "lowercase"),
	}
}

// equalNonEmpty fails when either side is missing
func equalNonEmpty(a, b string) bool {
	return a != "" && b != "" && a == b
}

// Score compares other against reference. Reasons follow rule order:
// ID, DOB, email, phone, last name, first name, address.
func (s *Scorer) Score(reference, other models.PersonRecord) (int, []models.MatchReason) {
	a, b := normalize(reference), normalize(other)
	w := s.weights

	score := 0
	reasons := make([]models.MatchReason, 0, 7)

	if equalNonEmpty(a.id, b.id) {
		score += w.ID
		reasons = append(reasons, models.ReasonIDMatch)
	}
	if equalNonEmpty(a.dob, b.dob) {
		score += w.DOB
		reasons = append(reasons, models.ReasonDOBMatch)
	}
	if equalNonEmpty(a.email, b.email) {
		score += w.Email
		reasons = append(reasons, models.ReasonEmailMatch)
	}
	if equalNonEmpty(a.phone, b.phone) {
		score += w.Phone
		reasons = append(reasons, models.ReasonPhoneMatch)
	}
	if equalNonEmpty(a.lastName, b.lastName) {
		score += w.LastName
		reasons = append(reasons, models.ReasonLastNameMatch)
	}
	if fn := s.firstNamePoints(a.firstName, b.firstName); fn > 0 {
		score += fn
		switch {
		case fn >= w.FirstNameSimilarAt:
			reasons = append(reasons, models.ReasonFirstNameSimilar)
		case fn >= w.FirstNameCloseAt:
			reasons = append(reasons, models.ReasonFirstNameClose)
		}
	}
	if equalNonEmpty(a.street, b.street) && equalNonEmpty(a.number, b.number) {
		score += w.Address
		reasons = append(reasons, models.ReasonAddressMatch)
	}

	return min(score, MaxScore), reasons
}

// firstNamePoints scales Levenshtein similarity onto 0..FirstName
func (s *Scorer) firstNamePoints(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	return int(math.Round(Levenshtein(a, b) * float64(s.weights.FirstName)))
}
