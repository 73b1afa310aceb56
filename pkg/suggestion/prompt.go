package suggestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

const analysisPrompt = `You are a data steward resolving conflicts between duplicate person records.

Rules:
1. Only resolve the fields listed under CONFLICTING DATA. Use SHARED CONTEXT as supporting evidence.
2. Prefer obvious typo, keyboard or OCR corrections when other strong signals (id, dob, email, phone) agree.
   Examples: "Bnnnie" -> "Bonnie", "Rihcard" -> "Richard", "Jonh" -> "John".
3. When resolving names, prefer the variant that matches the email username tokens.
4. Emails: only correct obvious domain typos. If usernames differ substantively answer %[1]s.
5. Phones: compare digits only; equal digits are the same phone.
6. An empty string means that record has no value. Take the filled value only when nothing contradicts it.
7. If several options remain genuinely plausible answer %[1]s.
8. Justifications must cite the specific clue used.

CONFLICTING DATA (field -> candidate values, keeper first):
%[2]s

SHARED CONTEXT (identical across all records):
%[3]s

Reply with one JSON object and nothing else:
{
  "suggestedGoldenRecord": {"<field>": "<value or %[1]s>"},
  "humanReviewRequired": <true|false>,
  "conflictsResolved": [
    {"field": "<field>", "valueA": "<first value>", "valueB": "<second value>", "chosenValue": "<value or %[1]s>", "justification": "<why>"}
  ]
}`

const repairPrompt = `The following text was supposed to be a single JSON object but failed to parse.
Fix only the syntax (quotes, commas, brackets). Do not change any values. Reply with the corrected JSON only.

ERROR:
%s

TEXT:
%s`

// fieldSplit separates fields whose values agree from those that disagree. A blank
// value disagrees with a filled one and is listed as "".
type fieldSplit struct {
	identical   map[string]string
	conflicting map[string][]string
	order       []string
}

func splitFields(records []models.PersonRecord) fieldSplit {
	split := fieldSplit{
		identical:   make(map[string]string),
		conflicting: make(map[string][]string),
	}
	for _, field := range models.ReconcilableFields {
		var values []string
		seen := make(map[string]bool)
		filled := false
		for _, r := range records {
			v := strings.TrimSpace(r.Get(field))
			filled = filled || v != ""
			if seen[v] {
				continue
			}
			seen[v] = true
			values = append(values, v)
		}
		switch {
		case !filled:
		case len(values) == 1:
			split.identical[field] = values[0]
		default:
			split.conflicting[field] = values
			split.order = append(split.order, field)
		}
	}
	return split
}

// filledValues drops the blank entries of a conflicting value list
func filledValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func buildPrompt(split fieldSplit) (string, error) {
	conflicting, err := json.MarshalIndent(split.conflicting, "", "  ")
	if err != nil {
		return "", err
	}
	identical, err := json.MarshalIndent(split.identical, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(analysisPrompt, models.NeedsHumanReview, conflicting, identical), nil
}

// extractJSON returns the text between the first '{' and the last '}'
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}
