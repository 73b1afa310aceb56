package suggestion

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/models"
)

func getTestLogger() ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zap.NewNop(), nil)
}

// scriptedCompleter returns its replies in order and records each prompt
type scriptedCompleter struct {
	replies []string
	prompts []string
}

func (c *scriptedCompleter) Name() string { return "scripted" }

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if len(c.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}

func records() []models.PersonRecord {
	return []models.PersonRecord{
		{ID: "k", FirstName: "Raymond", LastName: "Bell", PhoneNumber: "555-0100", Email: "ray.bell@example.com"},
		{ID: "d", FirstName: "Raymogond", LastName: "Bell", PhoneNumber: "555-0101", Email: "ray.bell@exmaple.com"},
	}
}

const goodReply = `Sure, here is the result:
{
  "suggestedGoldenRecord": {"first_name": "Raymond", "phone_number": "NEEDS_HUMAN_REVIEW", "email": "ray.bell@example.com", "ssn": "999"},
  "humanReviewRequired": false,
  "conflictsResolved": [
    {"field": "first_name", "valueA": "Raymond", "valueB": "Raymogond", "chosenValue": "Raymond", "justification": "email username matches 'ray'"},
    {"field": "phone_number", "chosenValue": "NEEDS_HUMAN_REVIEW", "justification": "digits differ"},
    {"field": "record_id", "chosenValue": "k"}
  ]
}
Let me know if you need anything else.`

func TestLLMProvider_Suggest(t *testing.T) {
	c := &scriptedCompleter{replies: []string{goodReply}}
	p := NewLLMProvider(c, getTestLogger())

	s, err := p.Suggest(context.Background(), records())
	require.NoError(t, err)
	require.Len(t, c.prompts, 1)
	assert.Contains(t, c.prompts[0], `"first_name": [`)
	assert.Contains(t, c.prompts[0], `"last_name": "Bell"`)
	assert.NotContains(t, c.prompts[0], `"id"`)

	assert.Equal(t, "Raymond", s.SuggestedGoldenRecord[models.FieldFirstName])
	assert.Equal(t, "Bell", s.SuggestedGoldenRecord[models.FieldLastName])
	assert.Equal(t, models.NeedsHumanReview, s.SuggestedGoldenRecord[models.FieldPhoneNumber])
	assert.NotContains(t, s.SuggestedGoldenRecord, models.FieldSSN, "fields without a conflict cannot be invented")
	assert.True(t, s.HumanReviewRequired)

	require.Len(t, s.ConflictsResolved, 2)
	phone, ok := s.Resolution(models.FieldPhoneNumber)
	require.True(t, ok)
	assert.Equal(t, "555-0100", phone.ValueA)
	assert.Equal(t, "555-0101", phone.ValueB)
	assert.NotEmpty(t, s.ProcessingLog)
	assert.Equal(t, "llm:scripted", p.Name())
}

func TestLLMProvider_EmailGuard(t *testing.T) {
	recs := records()
	recs[1].Email = "raymond.b@example.com"
	c := &scriptedCompleter{replies: []string{goodReply}}

	s, err := NewLLMProvider(c, getTestLogger()).Suggest(context.Background(), recs)
	require.NoError(t, err)

	assert.Equal(t, models.NeedsHumanReview, s.SuggestedGoldenRecord[models.FieldEmail])
	email, ok := s.Resolution(models.FieldEmail)
	require.True(t, ok)
	assert.Equal(t, models.NeedsHumanReview, email.ChosenValue)
	assert.True(t, s.HumanReviewRequired)
}

func TestLLMProvider_RepairsReply(t *testing.T) {
	broken := `{"suggestedGoldenRecord": {"first_name": "Raymond",}, "humanReviewRequired": false}`
	fixed := `{"suggestedGoldenRecord": {"first_name": "Raymond"}, "humanReviewRequired": false, "conflictsResolved": []}`
	c := &scriptedCompleter{replies: []string{broken, fixed}}

	recs := records()
	recs[1].PhoneNumber = recs[0].PhoneNumber
	recs[1].Email = recs[0].Email

	s, err := NewLLMProvider(c, getTestLogger()).Suggest(context.Background(), recs)
	require.NoError(t, err)
	require.Len(t, c.prompts, 2)
	assert.Contains(t, c.prompts[1], "failed to parse")
	assert.Equal(t, "Raymond", s.SuggestedGoldenRecord[models.FieldFirstName])
	assert.False(t, s.HumanReviewRequired)
}

func TestLLMProvider_UnrepairableReply(t *testing.T) {
	c := &scriptedCompleter{replies: []string{"not json", "still not json"}}
	_, err := NewLLMProvider(c, getTestLogger()).Suggest(context.Background(), records())
	assert.ErrorIs(t, err, ErrUnparseableReply)
}

func TestLLMProvider_NoConflicts(t *testing.T) {
	c := &scriptedCompleter{}
	recs := []models.PersonRecord{
		{ID: "k", FirstName: "Ann", LastName: "Lee", City: "Austin"},
		{ID: "d", FirstName: "Ann ", LastName: "Lee", City: "Austin"},
	}

	s, err := NewLLMProvider(c, getTestLogger()).Suggest(context.Background(), recs)
	require.NoError(t, err)
	assert.Empty(t, c.prompts)
	assert.Equal(t, map[string]string{
		models.FieldFirstName: "Ann",
		models.FieldLastName:  "Lee",
		models.FieldCity:      "Austin",
	}, s.SuggestedGoldenRecord)
}

func TestLLMProvider_BlankValueIsAConflict(t *testing.T) {
	reply := `{"suggestedGoldenRecord": {"city": "NEEDS_HUMAN_REVIEW"}, "humanReviewRequired": true,
  "conflictsResolved": [{"field": "city", "chosenValue": "NEEDS_HUMAN_REVIEW", "justification": "no corroborating address"}]}`
	c := &scriptedCompleter{replies: []string{reply}}
	recs := []models.PersonRecord{
		{ID: "k", FirstName: "Ann", LastName: "Lee"},
		{ID: "d", FirstName: "Ann", LastName: "Lee", City: "Austin"},
	}

	s, err := NewLLMProvider(c, getTestLogger()).Suggest(context.Background(), recs)
	require.NoError(t, err)
	require.Len(t, c.prompts, 1)
	assert.Contains(t, c.prompts[0], `"city": [`)
	assert.Contains(t, c.prompts[0], `""`)

	city, ok := s.Resolution(models.FieldCity)
	require.True(t, ok)
	assert.Equal(t, "", city.ValueA)
	assert.Equal(t, "Austin", city.ValueB)
	assert.Equal(t, models.NeedsHumanReview, city.ChosenValue)
	assert.True(t, s.HumanReviewRequired)
}

func TestRulesProvider(t *testing.T) {
	recs := []models.PersonRecord{
		{ID: "k", FirstName: "Jon", PhoneNumber: "(555) 010-0100", Email: "jon@a.com", DateOfBirth: "07/10/2007", City: "Austin"},
		{ID: "d", FirstName: "Jonathan", PhoneNumber: "555 010 0100", Email: "jon@b.com", DateOfBirth: "2007-07-10", City: "Dallas"},
	}

	s, err := RulesProvider{}.Suggest(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, "Jonathan", s.SuggestedGoldenRecord[models.FieldFirstName])
	assert.Equal(t, "(555) 010-0100", s.SuggestedGoldenRecord[models.FieldPhoneNumber])
	assert.Equal(t, "jon@b.com", s.SuggestedGoldenRecord[models.FieldEmail])
	assert.Equal(t, "2007-07-10", s.SuggestedGoldenRecord[models.FieldDateOfBirth])
	assert.Equal(t, "Dallas", s.SuggestedGoldenRecord[models.FieldCity])
	assert.False(t, s.HumanReviewRequired)

	recs[1].SSN = "123-45-6789"
	s, err = RulesProvider{}.Suggest(context.Background(), recs)
	require.NoError(t, err)
	ssn, ok := s.Resolution(models.FieldSSN)
	require.True(t, ok, "a blank keeper value is resolved explicitly")
	assert.Equal(t, "123-45-6789", ssn.ChosenValue)
	assert.Equal(t, "", ssn.ValueA)
	assert.False(t, s.HumanReviewRequired)

	recs[1].Email = "jonathan@b.com"
	s, err = RulesProvider{}.Suggest(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, models.NeedsHumanReview, s.SuggestedGoldenRecord[models.FieldEmail])
	assert.True(t, s.HumanReviewRequired)
}

func TestQueueProvider(t *testing.T) {
	q := NewQueueProvider().
		Push(&models.Suggestion{SuggestedGoldenRecord: map[string]string{"city": "Austin"}}).
		PushError(errors.New("rate limited"))

	s, err := q.Suggest(context.Background(), records())
	require.NoError(t, err)
	assert.Equal(t, "Austin", s.SuggestedGoldenRecord["city"])

	_, err = q.Suggest(context.Background(), records())
	assert.EqualError(t, err, "rate limited")

	_, err = q.Suggest(context.Background(), records())
	assert.ErrorIs(t, err, ErrQueueEmpty)
	assert.Len(t, q.Calls(), 3)
}

func TestNewCompleter(t *testing.T) {
	ctx := context.Background()

	c, err := NewCompleter(ctx, Config{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = NewCompleter(ctx, Config{Provider: "openai", APIKey: "k", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = NewCompleter(ctx, Config{Provider: "claude", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	c, err = NewCompleter(ctx, Config{Provider: "ollama", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	_, err = NewCompleter(ctx, Config{Provider: "gemini"})
	assert.Error(t, err)

	_, err = NewCompleter(ctx, Config{Provider: "hal9000"})
	assert.Error(t, err)
}
