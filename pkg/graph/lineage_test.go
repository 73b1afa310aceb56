package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeStore struct {
	writes []Statement
	rows   []any
	err    error
}

func (f *fakeStore) Write(_ context.Context, statements ...Statement) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, statements...)
	return nil
}

func (f *fakeStore) Read(_ context.Context, _ Statement, _ string) ([]any, error) {
	return f.rows, f.err
}

func newWriter(store Store) *LineageWriter {
	return NewLineageWriter(store, zapadapter.NewZapEctoLogger(zap.NewNop(), nil))
}

func TestLineageWriter_RecordAndRemove(t *testing.T) {
	store := &fakeStore{}
	w := newWriter(store)
	event := models.MergeActivityEvent{
		ID:        "evt-1",
		KeeperID:  "k1",
		MergedIDs: []string{"d1", "d2"},
		Actor:     "alice",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, w.RecordMerge(context.Background(), event))
	require.NoError(t, w.RemoveMerge(context.Background(), event))
	require.Len(t, store.writes, 2)

	merge := store.writes[0]
	assert.Contains(t, merge.Cypher, "MERGED_INTO")
	assert.Equal(t, "k1", merge.Params["keeper_id"])
	assert.Equal(t, []string{"d1", "d2"}, merge.Params["merged_ids"])
	assert.Equal(t, "2024-03-01T12:00:00Z", merge.Params["merged_at"])

	unmerge := store.writes[1]
	assert.Contains(t, unmerge.Cypher, "DELETE r")
	assert.Equal(t, []string{"d1", "d2"}, unmerge.Params["merged_ids"])
}

func TestLineageWriter_SkipsEmptyMerges(t *testing.T) {
	store := &fakeStore{}
	w := newWriter(store)

	require.NoError(t, w.RecordMerge(context.Background(), models.MergeActivityEvent{KeeperID: "k1"}))
	assert.Empty(t, store.writes)
}

func TestLineageWriter_Errors(t *testing.T) {
	w := newWriter(&fakeStore{err: errors.New("bolt closed")})
	event := models.MergeActivityEvent{KeeperID: "k1", MergedIDs: []string{"d1"}}

	assert.EqualError(t, w.RecordMerge(context.Background(), event), "bolt closed")
	assert.EqualError(t, w.RemoveMerge(context.Background(), event), "bolt closed")
}

func TestLineageWriter_MergedInto(t *testing.T) {
	w := newWriter(&fakeStore{rows: []any{"d1", "d3", nil}})

	ids, err := w.MergedInto(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d3"}, ids)
}
