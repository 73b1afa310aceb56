// Package suggestion produces golden record suggestions for a duplicate group,
// either from a language model or from deterministic local rules.
package suggestion

import (
	"context"
	"errors"
	"sync"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Provider is satisfied by every suggestion source in this package
type Provider interface {
	Suggest(ctx context.Context, records []models.PersonRecord) (*models.Suggestion, error)
}

// FuncProvider adapts a function into a Provider
type FuncProvider func(ctx context.Context, records []models.PersonRecord) (*models.Suggestion, error)

func (f FuncProvider) Suggest(ctx context.Context, records []models.PersonRecord) (*models.Suggestion, error) {
	return f(ctx, records)
}

func (f FuncProvider) Name() string { return "func" }

// StaticProvider always returns a copy of the same suggestion
type StaticProvider struct {
	Suggestion models.Suggestion
}

func (p StaticProvider) Suggest(ctx context.Context, _ []models.PersonRecord) (*models.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return copySuggestion(p.Suggestion), nil
}

func (p StaticProvider) Name() string { return "static" }

// ErrQueueEmpty is returned by QueueProvider once every queued reply has been used
var ErrQueueEmpty = errors.New("no queued suggestion")

type queued struct {
	suggestion *models.Suggestion
	err        error
}

// QueueProvider replays queued replies in order. Safe for concurrent use.
type QueueProvider struct {
	mu    sync.Mutex
	queue []queued
	calls [][]models.PersonRecord
}

func NewQueueProvider() *QueueProvider {
	return &QueueProvider{}
}

func (p *QueueProvider) Push(s *models.Suggestion) *QueueProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, queued{suggestion: s})
	return p
}

func (p *QueueProvider) PushError(err error) *QueueProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, queued{err: err})
	return p
}

// Calls returns the record sets the provider has been asked about
func (p *QueueProvider) Calls() [][]models.PersonRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]models.PersonRecord(nil), p.calls...)
}

func (p *QueueProvider) Suggest(_ context.Context, records []models.PersonRecord) (*models.Suggestion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, records)
	if len(p.queue) == 0 {
		return nil, ErrQueueEmpty
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	if next.err != nil {
		return nil, next.err
	}
	return copySuggestion(*next.suggestion), nil
}

func (p *QueueProvider) Name() string { return "queue" }

func copySuggestion(s models.Suggestion) *models.Suggestion {
	out := s
	out.SuggestedGoldenRecord = make(map[string]string, len(s.SuggestedGoldenRecord))
	for k, v := range s.SuggestedGoldenRecord {
		out.SuggestedGoldenRecord[k] = v
	}
	out.ConflictsResolved = append([]models.ConflictResolution(nil), s.ConflictsResolved...)
	out.ProcessingLog = append([]string(nil), s.ProcessingLog...)
	return &out
}
