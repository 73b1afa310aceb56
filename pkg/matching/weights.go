package matching

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Weights are the per-rule contributions used by Scorer
type Weights struct {
	ID       int `yaml:"id" json:"id"`
	DOB      int `yaml:"dob" json:"dob"`
	Email    int `yaml:"email" json:"email"`
	Phone    int `yaml:"phone" json:"phone"`
	LastName int `yaml:"last_name" json:"last_name"`
	// FirstName is the ceiling of the fuzzy first-name contribution
	FirstName          int `yaml:"first_name" json:"first_name"`
	FirstNameSimilarAt int `yaml:"first_name_similar_at" json:"first_name_similar_at"`
	FirstNameCloseAt   int `yaml:"first_name_close_at" json:"first_name_close_at"`
	Address            int `yaml:"address" json:"address"`
}

// DefaultWeights returns the baseline rule weights
func DefaultWeights() Weights {
	return Weights{
		ID:                 50,
		DOB:                20,
		Email:              10,
		Phone:              10,
		LastName:           5,
		FirstName:          10,
		FirstNameSimilarAt: 8,
		FirstNameCloseAt:   5,
		Address:            10,
	}
}

// LoadWeights reads a YAML weights file. Keys missing from the file keep their defaults.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	if path == "" {
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("failed to read scorer weights %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("failed to parse scorer weights %s: %w", path, err)
	}

	if err := w.Validate(); err != nil {
		return w, err
	}

	return w, nil
}

// Validate rejects negative weights and inverted first-name thresholds
func (w Weights) Validate() error {
	for name, v := range map[string]int{
		"id": w.ID, "dob": w.DOB, "email": w.Email, "phone": w.Phone,
		"last_name": w.LastName, "first_name": w.FirstName, "address": w.Address,
	} {
		if v < 0 {
			return fmt.Errorf("scorer weight %s must not be negative, got %d", name, v)
		}
	}
	if w.FirstNameCloseAt > w.FirstNameSimilarAt {
		return fmt.Errorf("first_name_close_at (%d) must not exceed first_name_similar_at (%d)", w.FirstNameCloseAt, w.FirstNameSimilarAt)
	}
	return nil
}
