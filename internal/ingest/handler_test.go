package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/repositories/person"
	"github.com/Ramsey-B/clover/internal/repositories/repotest"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeUpserter struct {
	records []models.PersonRecord
	err     error
}

func (f *fakeUpserter) Upsert(_ context.Context, records ...models.PersonRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, records...)
	return nil
}

func TestHandler_Handle(t *testing.T) {
	tests := []struct {
		name    string
		msg     kafka.Message
		wantIDs []string
	}{
		{
			name:    "single object",
			msg:     kafka.Message{Key: "p1", Value: []byte(`{"id":"p1","first_name":"Ada","active":true}`)},
			wantIDs: []string{"p1"},
		},
		{
			name:    "id taken from key",
			msg:     kafka.Message{Key: "p2", Value: []byte(`{"first_name":"Grace"}`)},
			wantIDs: []string{"p2"},
		},
		{
			name:    "array",
			msg:     kafka.Message{Value: []byte(` [{"id":"a"},{"id":"b"}]`)},
			wantIDs: []string{"a", "b"},
		},
		{
			name: "malformed json is dropped",
			msg:  kafka.Message{Key: "x", Value: []byte(`{"id":`)},
		},
		{
			name: "array record without id is dropped",
			msg:  kafka.Message{Value: []byte(`[{"id":"a"},{"first_name":"nobody"}]`)},
		},
		{
			name: "empty payload",
			msg:  kafka.Message{Key: "x"},
		},
		{
			name: "empty array",
			msg:  kafka.Message{Value: []byte(`[]`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeUpserter{}
			h := NewHandler(store, repotest.Logger())

			msg := tt.msg
			require.NoError(t, h.Handle(context.Background(), &msg))

			ids := make([]string, 0, len(store.records))
			for _, r := range store.records {
				ids = append(ids, r.ID)
			}
			if tt.wantIDs == nil {
				assert.Empty(t, ids)
				return
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestHandler_StoreErrorIsReturned(t *testing.T) {
	store := &fakeUpserter{err: errors.New("db down")}
	h := NewHandler(store, repotest.Logger())

	err := h.Handle(context.Background(), &kafka.Message{Key: "p1", Value: []byte(`{"id":"p1"}`)})
	assert.EqualError(t, err, "db down")
}

func TestHandler_RepublishedDuplicateStaysMerged(t *testing.T) {
	ctx := context.Background()
	repo := person.NewRepository(repotest.NewSQLiteDB(t), repotest.Logger())
	h := NewHandler(repo, repotest.Logger())

	require.NoError(t, h.Handle(ctx, &kafka.Message{Value: []byte(`[{"id":"k","last_name":"Bell"},{"id":"d","last_name":"Bell"}]`)}))
	require.NoError(t, repo.CommitMerge(ctx, "k", nil, []string{"d"}))

	require.NoError(t, h.Handle(ctx, &kafka.Message{Key: "d", Value: []byte(`{"id":"d","last_name":"Bell","email":"d@example.com","active":true}`)}))

	d, err := repo.Get(ctx, "d")
	require.NoError(t, err)
	assert.False(t, d.Active)
	require.NotNil(t, d.MergedInto)
	assert.Equal(t, "k", *d.MergedInto)
	assert.Empty(t, d.Email)

	pool, err := repo.FetchPool(ctx, models.PoolFilter{})
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, "k", pool[0].ID)
}
