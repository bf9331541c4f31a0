/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	store.go: Record buffer interface
*/
package store

// Record is one filtered tag observation waiting for upload. The four
// tag/value pairs are reserved columns, always persisted as empty strings
// for now.
type Record struct {
	ID              int64
	RFIDTag         string
	Antenna         int
	RSSI            int
	Latitude        float64
	Longitude       float64
	Speed           float64
	Heading         float64
	LocationCode    string
	Username        string
	TimestampMicros int64
	Tag1, Value1    string
	Tag2, Value2    string
	Tag3, Value3    string
	Tag4, Value4    string
}

// Store is a capped, deduplicating buffer of records pending upload.
// Implementations assign ids themselves and keep at most their configured
// maximum, discarding oldest-by-timestamp first.
type Store interface {
	// Add persists the record under the smallest free positive id, prunes
	// to the cap, and returns the assigned id.
	Add(rec Record) (int64, error)
	// FetchAll returns every record ordered oldest-by-timestamp first.
	FetchAll() ([]Record, error)
	// PruneOld deletes oldest-by-timestamp records until at most the cap
	// remain.
	PruneOld() error
	// DeleteByIDs removes the given records, typically after a confirmed
	// upload.
	DeleteByIDs(ids []int64) error
	// FindDuplicate reports whether a record with the same tag exists
	// within windowMicros of tsMicros, or at exactly the same coordinates.
	FindDuplicate(tag string, tsMicros, windowMicros int64, lat, lon float64) (bool, error)
	Count() (int, error)
	Close() error
}

// nextAvailableID returns the smallest positive integer missing from the
// ascending-sorted id list. Gap filling keeps ids bounded under a capped
// store.
func nextAvailableID(usedAscending []int64) int64 {
	next := int64(1)
	for _, id := range usedAscending {
		if id == next {
			next++
		} else {
			break
		}
	}
	return next
}
