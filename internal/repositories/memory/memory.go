// Package memory holds in-process implementations of the record, activity and
// snapshot stores. They back tests and single-node runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// PersonStore is a map-backed record registry
type PersonStore struct {
	mu      sync.RWMutex
	records map[string]models.PersonRecord
	now     func() time.Time
}

func NewPersonStore(records ...models.PersonRecord) *PersonStore {
	s := &PersonStore{records: make(map[string]models.PersonRecord), now: time.Now}
	for _, r := range records {
		if !r.Active && r.MergedInto == nil {
			r.Active = true
		}
		s.records[r.ID] = copyRecord(r)
	}
	return s
}

// Upsert inserts a record or refreshes the fields of an existing one. Stored active and
// merged_into values are kept, and a record already merged into a keeper is not changed.
func (s *PersonStore) Upsert(_ context.Context, r models.PersonRecord) error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[r.ID]; ok {
		if existing.MergedInto != nil {
			return nil
		}
		r.Active = existing.Active
		r.MergedInto = nil
	} else if !r.Active && r.MergedInto == nil {
		r.Active = true
	}

	now := s.now()
	r.UpdatedAt = &now
	s.records[r.ID] = copyRecord(r)
	return nil
}

func (s *PersonStore) Get(_ context.Context, id string) (*models.PersonRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	out := copyRecord(r)
	return &out, nil
}

// FetchPool returns matching records sorted by id
func (s *PersonStore) FetchPool(_ context.Context, filter models.PoolFilter) ([]models.PersonRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids map[string]bool
	if len(filter.IDs) > 0 {
		ids = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}

	out := make([]models.PersonRecord, 0, len(s.records))
	for _, r := range s.records {
		if ids != nil && !ids[r.ID] {
			continue
		}
		if !filter.IncludeRetired && r.MergedInto != nil {
			continue
		}
		if filter.LastName != "" && r.LastName != filter.LastName {
			continue
		}
		if filter.DateOfBirth != "" && r.DateOfBirth != filter.DateOfBirth {
			continue
		}
		out = append(out, copyRecord(r))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetMany returns the records that exist, in request order
func (s *PersonStore) GetMany(_ context.Context, ids []string) ([]models.PersonRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PersonRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out = append(out, copyRecord(r))
		}
	}
	return out, nil
}

// CommitMerge writes fieldUpdates onto the keeper and retires the duplicates in one step
func (s *PersonStore) CommitMerge(_ context.Context, keeperID string, fieldUpdates map[string]string, retiredIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keeper, ok := s.records[keeperID]
	if !ok || keeper.MergedInto != nil {
		return fmt.Errorf("keeper %s not found or already merged", keeperID)
	}
	for _, id := range retiredIDs {
		if r, ok := s.records[id]; !ok || r.MergedInto != nil {
			return fmt.Errorf("record %s not found or already merged", id)
		}
	}

	now := s.now()
	for field, value := range fieldUpdates {
		keeper = keeper.With(field, value)
	}
	keeper.UpdatedAt = &now
	s.records[keeperID] = keeper

	for _, id := range retiredIDs {
		r := s.records[id]
		k := keeperID
		r.Active = false
		r.MergedInto = &k
		r.UpdatedAt = &now
		s.records[id] = r
	}
	return nil
}

// RestoreSnapshot overwrites every record in the snapshot with its captured copy
func (s *PersonStore) RestoreSnapshot(_ context.Context, snapshot models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range snapshot.Records {
		s.records[r.ID] = copyRecord(r)
	}
	return nil
}

func copyRecord(r models.PersonRecord) models.PersonRecord {
	if r.MergedInto != nil {
		m := *r.MergedInto
		r.MergedInto = &m
	}
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		r.UpdatedAt = &t
	}
	return r
}

// ActivityLog is an append-only slice of events
type ActivityLog struct {
	mu     sync.RWMutex
	events []models.MergeActivityEvent
}

func NewActivityLog() *ActivityLog {
	return &ActivityLog{}
}

func (l *ActivityLog) Append(_ context.Context, event models.MergeActivityEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.events {
		if e.ID == event.ID {
			return fmt.Errorf("activity event %s already recorded", event.ID)
		}
	}
	l.events = append(l.events, copyEvent(event))
	return nil
}

// List returns events newest first
func (l *ActivityLog) List(_ context.Context, limit int) ([]models.MergeActivityEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.MergeActivityEvent, 0, len(l.events))
	for i := len(l.events) - 1; i >= 0; i-- {
		out = append(out, copyEvent(l.events[i]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *ActivityLog) Get(_ context.Context, id string) (*models.MergeActivityEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.events {
		if e.ID == id {
			out := copyEvent(e)
			return &out, nil
		}
	}
	return nil, nil
}

func copyEvent(e models.MergeActivityEvent) models.MergeActivityEvent {
	e.MergedIDs = append([]string(nil), e.MergedIDs...)
	e.FieldDiffs = append([]models.FieldDiff(nil), e.FieldDiffs...)
	return e
}

// SnapshotStore keeps the latest snapshot per keeper
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]models.Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string]models.Snapshot)}
}

func (s *SnapshotStore) Save(_ context.Context, snapshot models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.KeeperID] = copySnapshot(snapshot)
	return nil
}

func (s *SnapshotStore) Get(_ context.Context, keeperID string) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[keeperID]
	if !ok {
		return nil, nil
	}
	out := copySnapshot(snap)
	return &out, nil
}

func (s *SnapshotStore) Delete(_ context.Context, keeperID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, keeperID)
	return nil
}

func copySnapshot(s models.Snapshot) models.Snapshot {
	records := make([]models.PersonRecord, len(s.Records))
	for i, r := range s.Records {
		records[i] = copyRecord(r)
	}
	s.Records = records
	return s
}
