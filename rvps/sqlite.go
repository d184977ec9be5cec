// Copyright (c) 2025 Fraunhofer AISEC
// Fraunhofer-Gesellschaft zur Foerderung der angewandten Forschung e.V.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rvps

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"k8s.io/utils/clock"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS reference_values (
    serial INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    version TEXT NOT NULL,
    expiration INTEGER NOT NULL,
    expiration_nsec INTEGER NOT NULL,
    value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS reference_values_name ON reference_values (name);`

// SqliteStore is a persistent Store. Every ingestion is a single transaction,
// readers see either the previous or the new values of a name.
type SqliteStore struct {
	db    *sql.DB
	clock clock.PassiveClock
}

// NewSqliteStore opens or creates the database at path
func NewSqliteStore(path string, clk clock.PassiveClock) (*SqliteStore, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}

	log.Tracef("Opening database %v", path)

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, &StoreError{Op: "create table", Err: err}
	}

	log.Debugf("Opened reference value database %v", path)

	return &SqliteStore{db: db, clock: clk}, nil
}

func (s *SqliteStore) Ingest(name string, rvs []ReferenceValue) (err error) {
	if err := checkIngest(name, rvs); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "begin", Err: err}
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err := tx.Exec("DELETE FROM reference_values WHERE name = ?", name); err != nil {
		return &StoreError{Op: "delete", Err: err}
	}

	stmt, err := tx.Prepare(`INSERT INTO reference_values
		(name, version, expiration, expiration_nsec, value)
		VALUES
		(?, ?, ?, ?, ?)`)
	if err != nil {
		return &StoreError{Op: "prepare", Err: err}
	}
	defer stmt.Close()

	for _, rv := range rvs {
		value, err := json.Marshal(rv.Value)
		if err != nil {
			return fmt.Errorf("failed to marshal digests of %v: %w", name, err)
		}
		if _, err := stmt.Exec(rv.Name, rv.Version, rv.Expiration.Unix(), rv.Expiration.Nanosecond(), string(value)); err != nil {
			return &StoreError{Op: "insert", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "commit", Err: err}
	}

	log.Tracef("Stored %v reference values for %v", len(rvs), name)

	return nil
}

func (s *SqliteStore) Snapshot() (map[string][]string, error) {
	now := s.clock.Now()

	// Seconds prefilter, the exact check uses the same rule as MemoryStore
	rows, err := s.db.Query(`SELECT name, expiration, expiration_nsec, value FROM reference_values
		WHERE expiration >= ?
		ORDER BY serial`, now.Unix())
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	defer rows.Close()

	digests := make(map[string][]string)
	for rows.Next() {
		var name string
		var sec, nsec int64
		var data string
		if err := rows.Scan(&name, &sec, &nsec, &data); err != nil {
			return nil, &StoreError{Op: "scan", Err: err}
		}
		rv := ReferenceValue{Name: name, Expiration: time.Unix(sec, nsec)}
		if rv.Expired(now) {
			log.Tracef("Skipping expired reference value %v (expired %v)", name, rv.Expiration)
			continue
		}
		var value []string
		if err := json.Unmarshal([]byte(data), &value); err != nil {
			return nil, &StoreError{Op: "decode", Err: err}
		}
		digests[name] = append(digests[name], value...)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}

	return digests, nil
}

func (s *SqliteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return &StoreError{Op: "close", Err: err}
	}
	return nil
}
