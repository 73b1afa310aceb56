package suggestion

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// RulesProvider is a deterministic offline provider. For each conflicting field it
// takes the only filled value when the others are blank, keeps digit-equal phones, flags differing email usernames, prefers the longest
// first name, and otherwise takes the latest duplicate's value.
type RulesProvider struct{}

func (RulesProvider) Name() string { return "rules" }

func (RulesProvider) Suggest(ctx context.Context, records []models.PersonRecord) (*models.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to reconcile")
	}

	split := splitFields(records)
	golden := make(map[string]string, len(models.ReconcilableFields))
	for field, v := range split.identical {
		golden[field] = v
	}

	s := &models.Suggestion{
		SuggestedGoldenRecord: golden,
		ConflictsResolved:     make([]models.ConflictResolution, 0, len(split.order)),
		ProcessingLog:         []string{fmt.Sprintf("Rules reconciling %d records.", len(records))},
	}

	for _, field := range split.order {
		values := split.conflicting[field]
		chosen, why := chooseByRule(field, filledValues(values))
		golden[field] = chosen
		if chosen == models.NeedsHumanReview {
			s.HumanReviewRequired = true
		}
		s.ConflictsResolved = append(s.ConflictsResolved, models.ConflictResolution{
			Field:         field,
			ValueA:        values[0],
			ValueB:        values[1],
			ChosenValue:   chosen,
			Justification: why,
		})
	}

	guardEmail(s, records)
	return s, nil
}

func chooseByRule(field string, values []string) (string, string) {
	if len(values) == 1 {
		return values[0], "only one record has a value"
	}
	switch field {
	case models.FieldPhoneNumber:
		digits := normalizers.NormalizePhone(values[0])
		for _, v := range values[1:] {
			if normalizers.NormalizePhone(v) != digits {
				return models.NeedsHumanReview, "phone digits differ"
			}
		}
		return values[0], "non-digits removed; digits equal"
	case models.FieldEmail:
		user := normalizers.EmailUsername(values[0])
		for _, v := range values[1:] {
			if normalizers.EmailUsername(v) != user {
				return models.NeedsHumanReview, "email usernames differ"
			}
		}
		return values[len(values)-1], "same username; took the latest domain"
	case models.FieldFirstName:
		longest := values[0]
		for _, v := range values[1:] {
			if len([]rune(v)) > len([]rune(longest)) {
				longest = v
			}
		}
		return longest, "chose the longer name"
	case models.FieldDateOfBirth:
		iso := normalizers.NormalizeDate(values[0])
		for _, v := range values[1:] {
			if normalizers.NormalizeDate(v) != iso {
				return models.NeedsHumanReview, "dates of birth differ"
			}
		}
		return iso, "same date in different formats"
	default:
		return values[len(values)-1], "took the latest duplicate value"
	}
}
