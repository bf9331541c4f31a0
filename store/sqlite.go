/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	sqlite.go: SQLite-backed record buffer
*/
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY,
	rfidTag TEXT NOT NULL,
	antenna INTEGER NOT NULL,
	RSSI INTEGER NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	speed REAL NOT NULL,
	heading REAL NOT NULL,
	locationCode TEXT NOT NULL,
	username TEXT NOT NULL,
	tag1 TEXT NOT NULL,
	value1 TEXT NOT NULL,
	tag2 TEXT NOT NULL,
	value2 TEXT NOT NULL,
	tag3 TEXT NOT NULL,
	value3 TEXT NOT NULL,
	tag4 TEXT NOT NULL,
	value4 TEXT NOT NULL,
	timestamp INTEGER NOT NULL
)`

// SQLiteStore persists records to a single SQLite file. All methods are safe
// for concurrent use; the ingest path and upload cycle share one instance.
type SQLiteStore struct {
	mu         sync.Mutex
	db         *sql.DB
	maxRecords int
}

func NewSQLite(path string, maxRecords int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open record db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &SQLiteStore{db: db, maxRecords: maxRecords}, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteStore) Add(rec Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id FROM records ORDER BY id ASC`)
	if err != nil {
		return 0, err
	}
	var used []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		used = append(used, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	rec.ID = nextAvailableID(used)
	_, err = s.db.Exec(`
		INSERT INTO records
		(id, rfidTag, antenna, RSSI, latitude, longitude, speed, heading, locationCode, username,
		 timestamp, tag1, value1, tag2, value2, tag3, value3, tag4, value4)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RFIDTag, rec.Antenna, rec.RSSI, rec.Latitude, rec.Longitude,
		rec.Speed, rec.Heading, rec.LocationCode, rec.Username, rec.TimestampMicros,
		rec.Tag1, rec.Value1, rec.Tag2, rec.Value2, rec.Tag3, rec.Value3, rec.Tag4, rec.Value4)
	if err != nil {
		return 0, err
	}

	if err := s.pruneLocked(); err != nil {
		return 0, err
	}
	return rec.ID, nil
}

func (s *SQLiteStore) FetchAll() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, rfidTag, antenna, RSSI, latitude, longitude, speed, heading,
		       locationCode, username, timestamp,
		       tag1, value1, tag2, value2, tag3, value3, tag4, value4
		FROM records ORDER BY timestamp ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.RFIDTag, &r.Antenna, &r.RSSI, &r.Latitude, &r.Longitude,
			&r.Speed, &r.Heading, &r.LocationCode, &r.Username, &r.TimestampMicros,
			&r.Tag1, &r.Value1, &r.Tag2, &r.Value2, &r.Tag3, &r.Value3, &r.Tag4, &r.Value4); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PruneOld() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked()
}

func (s *SQLiteStore) pruneLocked() error {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&total); err != nil {
		return err
	}
	if total <= s.maxRecords {
		return nil
	}
	_, err := s.db.Exec(`
		DELETE FROM records WHERE id IN (
			SELECT id FROM records ORDER BY timestamp ASC LIMIT ?
		)`, total-s.maxRecords)
	return err
}

func (s *SQLiteStore) DeleteByIDs(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec(`DELETE FROM records WHERE id IN (`+placeholders+`)`, args...)
	return err
}

func (s *SQLiteStore) FindDuplicate(tag string, tsMicros, windowMicros int64, lat, lon float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM records
		WHERE rfidTag = ?
		AND (ABS(timestamp - ?) < ? OR (latitude = ? AND longitude = ?))`,
		tag, tsMicros, windowMicros, lat, lon).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}
