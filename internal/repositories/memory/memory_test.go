package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestPersonStore_CommitAndRestore(t *testing.T) {
	ctx := context.Background()
	store := NewPersonStore(
		models.PersonRecord{ID: "k", FirstName: "Ray", LastName: "Bell"},
		models.PersonRecord{ID: "d", FirstName: "Raymond", LastName: "Bell", PhoneNumber: "555"},
	)

	before, err := store.GetMany(ctx, []string{"k", "d"})
	require.NoError(t, err)
	assert.True(t, before[0].Active)

	require.NoError(t, store.CommitMerge(ctx, "k", map[string]string{models.FieldPhoneNumber: "555"}, []string{"d"}))

	pool, err := store.FetchPool(ctx, models.PoolFilter{})
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, "555", pool[0].PhoneNumber)

	all, err := store.FetchPool(ctx, models.PoolFilter{IncludeRetired: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].MergedInto)
	assert.Equal(t, "d", all[0].ID)
	assert.Equal(t, "k", *all[0].MergedInto)

	require.NoError(t, store.RestoreSnapshot(ctx, models.Snapshot{KeeperID: "k", Records: before}))
	after, err := store.GetMany(ctx, []string{"k", "d"})
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.Error(t, store.CommitMerge(ctx, "missing", nil, nil))
	assert.Error(t, store.CommitMerge(ctx, "k", nil, []string{"missing"}))
}

func TestPersonStore_MergedRecordsStayRetired(t *testing.T) {
	ctx := context.Background()
	store := NewPersonStore(
		models.PersonRecord{ID: "k1", LastName: "Bell"},
		models.PersonRecord{ID: "k2", LastName: "Bell"},
		models.PersonRecord{ID: "d", LastName: "Bell", Email: "d@example.com"},
	)
	require.NoError(t, store.CommitMerge(ctx, "k1", nil, []string{"d"}))

	require.NoError(t, store.Upsert(ctx, models.PersonRecord{ID: "d", LastName: "Bell", Email: "new@example.com", Active: true}))
	d, err := store.Get(ctx, "d")
	require.NoError(t, err)
	assert.False(t, d.Active)
	require.NotNil(t, d.MergedInto)
	assert.Equal(t, "k1", *d.MergedInto)
	assert.Equal(t, "d@example.com", d.Email)

	// overlapping group with another keeper
	require.Error(t, store.CommitMerge(ctx, "k2", map[string]string{models.FieldEmail: "x@example.com"}, []string{"d"}))
	d, err = store.Get(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "k1", *d.MergedInto)
	k2, err := store.Get(ctx, "k2")
	require.NoError(t, err)
	assert.Empty(t, k2.Email)

	assert.Error(t, store.CommitMerge(ctx, "d", nil, []string{"k2"}))

	k1 := "k1"
	require.NoError(t, store.Upsert(ctx, models.PersonRecord{ID: "k2", LastName: "Bell-Cole", MergedInto: &k1}))
	k2, err = store.Get(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, "Bell-Cole", k2.LastName)
	assert.True(t, k2.Active)
	assert.Nil(t, k2.MergedInto)
}

func TestPersonStore_Filter(t *testing.T) {
	ctx := context.Background()
	store := NewPersonStore(
		models.PersonRecord{ID: "1", LastName: "Bell", DateOfBirth: "2000-01-01"},
		models.PersonRecord{ID: "2", LastName: "Bell"},
		models.PersonRecord{ID: "3", LastName: "Cole"},
	)

	got, err := store.FetchPool(ctx, models.PoolFilter{LastName: "Bell"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.FetchPool(ctx, models.PoolFilter{LastName: "Bell", DateOfBirth: "2000-01-01"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = store.FetchPool(ctx, models.PoolFilter{IDs: []string{"3", "2"}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}

func TestActivityLog(t *testing.T) {
	ctx := context.Background()
	log := NewActivityLog()

	for i, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, log.Append(ctx, models.MergeActivityEvent{ID: id, Timestamp: time.Unix(int64(i), 0)}))
	}
	assert.Error(t, log.Append(ctx, models.MergeActivityEvent{ID: "e1"}))

	events, err := log.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e3", events[0].ID)
	assert.Equal(t, "e2", events[1].ID)

	e, err := log.Get(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, e)

	missing, err := log.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSnapshotStore_OnePerKeeper(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore()

	require.NoError(t, store.Save(ctx, models.Snapshot{KeeperID: "k", EventID: "e1"}))
	require.NoError(t, store.Save(ctx, models.Snapshot{KeeperID: "k", EventID: "e2"}))

	snap, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "e2", snap.EventID)

	require.NoError(t, store.Delete(ctx, "k"))
	snap, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, snap)
}
