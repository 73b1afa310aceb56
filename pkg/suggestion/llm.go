package suggestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ErrUnparseableReply is returned when the model reply is not valid JSON even after a repair attempt
var ErrUnparseableReply = errors.New("suggestion reply is not valid JSON")

// LLMProvider asks a language model to reconcile a group's conflicting fields
type LLMProvider struct {
	completer Completer
	logger    ectologger.Logger
}

func NewLLMProvider(completer Completer, logger ectologger.Logger) *LLMProvider {
	return &LLMProvider{completer: completer, logger: logger}
}

func (p *LLMProvider) Name() string {
	return "llm:" + p.completer.Name()
}

// Suggest sends one prompt covering every conflicting field. Records are keeper first.
func (p *LLMProvider) Suggest(ctx context.Context, records []models.PersonRecord) (*models.Suggestion, error) {
	ctx, span := tracing.StartSpan(ctx, "suggestion.LLMProvider.Suggest")
	defer span.End()

	if len(records) == 0 {
		return nil, fmt.Errorf("no records to reconcile")
	}

	split := splitFields(records)
	log := []string{fmt.Sprintf("Reconciling %d records.", len(records))}

	if len(split.order) == 0 {
		log = append(log, "No conflicts detected. Direct merge.")
		return &models.Suggestion{
			SuggestedGoldenRecord: split.identical,
			ConflictsResolved:     []models.ConflictResolution{},
			ProcessingLog:         log,
		}, nil
	}
	log = append(log, fmt.Sprintf("Conflicts detected: %s", strings.Join(split.order, ", ")))

	prompt, err := buildPrompt(split)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	reply, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	log = append(log, fmt.Sprintf("Analysis completed in %.2f seconds.", time.Since(start).Seconds()))

	suggestion, err := p.parse(ctx, reply)
	if err != nil {
		return nil, err
	}

	suggestion = sanitize(suggestion, split)
	if guardEmail(suggestion, records) {
		log = append(log, "Email usernames differ; email flagged for human review.")
	}
	suggestion.ProcessingLog = append(log, suggestion.ProcessingLog...)

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"conflicts":    len(split.order),
		"review":       suggestion.HumanReviewRequired,
		"completer":    p.completer.Name(),
		"duration_sec": time.Since(start).Seconds(),
	}).Debug("Received merge suggestion")

	return suggestion, nil
}

// parse decodes reply, asking the model once to repair broken JSON
func (p *LLMProvider) parse(ctx context.Context, reply string) (*models.Suggestion, error) {
	var s models.Suggestion
	raw := extractJSON(reply)
	err := json.Unmarshal([]byte(raw), &s)
	if err == nil {
		return &s, nil
	}

	p.logger.WithContext(ctx).WithError(err).Warn("Suggestion reply was not valid JSON, attempting repair")
	fixed, cerr := p.completer.Complete(ctx, fmt.Sprintf(repairPrompt, err.Error(), raw))
	if cerr != nil {
		return nil, cerr
	}
	s = models.Suggestion{}
	if err := json.Unmarshal([]byte(extractJSON(fixed)), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableReply, err)
	}
	s.ProcessingLog = append(s.ProcessingLog, "Reply JSON repaired.")
	return &s, nil
}

// sanitize drops fields the model invented, fills the shared context into the golden
// record and sets value pairs the model left blank
func sanitize(s *models.Suggestion, split fieldSplit) *models.Suggestion {
	golden := make(map[string]string, len(models.ReconcilableFields))
	for field, v := range split.identical {
		golden[field] = v
	}
	for field, v := range s.SuggestedGoldenRecord {
		if _, ok := split.conflicting[field]; ok && v != "" {
			golden[field] = v
		}
	}

	resolved := make([]models.ConflictResolution, 0, len(s.ConflictsResolved))
	for _, r := range s.ConflictsResolved {
		values, ok := split.conflicting[r.Field]
		if !ok {
			continue
		}
		if r.ValueA == "" {
			r.ValueA = values[0]
		}
		if r.ValueB == "" && len(values) > 1 {
			r.ValueB = values[1]
		}
		resolved = append(resolved, r)
	}

	review := s.HumanReviewRequired
	for _, field := range split.order {
		if golden[field] == models.NeedsHumanReview {
			review = true
		}
	}
	for _, r := range resolved {
		if r.ChosenValue == models.NeedsHumanReview {
			review = true
		}
	}

	return &models.Suggestion{
		SuggestedGoldenRecord: golden,
		HumanReviewRequired:   review,
		ConflictsResolved:     resolved,
		ProcessingLog:         s.ProcessingLog,
	}
}

// guardEmail forces email to human review when the records disagree on the username,
// whatever the model answered. It reports whether it changed anything.
func guardEmail(s *models.Suggestion, records []models.PersonRecord) bool {
	var usernames []string
	seen := make(map[string]bool)
	var emails []string
	for _, r := range records {
		if r.Email == "" || !strings.Contains(r.Email, "@") {
			continue
		}
		u := normalizers.EmailUsername(r.Email)
		if !seen[u] {
			seen[u] = true
			usernames = append(usernames, u)
			emails = append(emails, r.Email)
		}
	}
	if len(usernames) < 2 {
		return false
	}

	changed := s.SuggestedGoldenRecord[models.FieldEmail] != models.NeedsHumanReview
	s.SuggestedGoldenRecord[models.FieldEmail] = models.NeedsHumanReview
	s.HumanReviewRequired = true

	const justification = "Email usernames differ, choice is ambiguous."
	for i := range s.ConflictsResolved {
		if s.ConflictsResolved[i].Field == models.FieldEmail {
			if s.ConflictsResolved[i].ChosenValue != models.NeedsHumanReview {
				changed = true
			}
			s.ConflictsResolved[i].ChosenValue = models.NeedsHumanReview
			s.ConflictsResolved[i].Justification = justification
		}
	}
	if _, ok := s.Resolution(models.FieldEmail); !ok {
		s.ConflictsResolved = append(s.ConflictsResolved, models.ConflictResolution{
			Field:         models.FieldEmail,
			ValueA:        emails[0],
			ValueB:        emails[1],
			ChosenValue:   models.NeedsHumanReview,
			Justification: justification,
		})
		changed = true
	}
	return changed
}
