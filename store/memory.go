/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	memory.go: In-process record buffer
*/
package store

import (
	"sort"
	"sync"
)

// MemoryStore keeps records in a slice, used when the database is disabled
// in config and in tests. Append order doubles as age order for pruning.
type MemoryStore struct {
	mu         sync.Mutex
	records    []Record
	maxRecords int
}

func NewMemory(maxRecords int) *MemoryStore {
	return &MemoryStore{maxRecords: maxRecords}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Add(rec Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := make([]int64, 0, len(s.records))
	for _, r := range s.records {
		used = append(used, r.ID)
	}
	sort.Slice(used, func(i, j int) bool { return used[i] < used[j] })

	rec.ID = nextAvailableID(used)
	s.records = append(s.records, rec)
	s.pruneLocked()
	return rec.ID, nil
}

func (s *MemoryStore) FetchAll() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimestampMicros < out[j].TimestampMicros })
	return out, nil
}

func (s *MemoryStore) PruneOld() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return nil
}

func (s *MemoryStore) pruneLocked() {
	if len(s.records) > s.maxRecords {
		s.records = append([]Record(nil), s.records[len(s.records)-s.maxRecords:]...)
	}
}

func (s *MemoryStore) DeleteByIDs(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	s.records = kept
	return nil
}

func (s *MemoryStore) FindDuplicate(tag string, tsMicros, windowMicros int64, lat, lon float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.RFIDTag != tag {
			continue
		}
		delta := r.TimestampMicros - tsMicros
		if delta < 0 {
			delta = -delta
		}
		if delta < windowMicros || (r.Latitude == lat && r.Longitude == lon) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}
