package indexer

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fractionestate/decentralized-did/internal/did"
	"github.com/fractionestate/decentralized-did/internal/metadata"
)

// SQLiteIndex is a durable Index backed by a single-table SQLite
// database, for deployments where the in-memory Registry's lack of
// persistence across process restarts is unacceptable.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens (creating if necessary) a SQLite-backed index
// at path.
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("indexer: open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexer: connect to sqlite database: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS bundles (
	did TEXT PRIMARY KEY,
	bundle_json TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexer: create schema: %w", err)
	}

	return &SQLiteIndex{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// FindDID reports whether a bundle is registered for candidate.
func (s *SQLiteIndex) FindDID(candidate did.Identifier) (metadata.Bundle, bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT bundle_json FROM bundles WHERE did = ?`, string(candidate)).Scan(&raw)
	if err == sql.ErrNoRows {
		return metadata.Bundle{}, false, nil
	}
	if err != nil {
		return metadata.Bundle{}, false, fmt.Errorf("indexer: query bundle: %w", err)
	}

	var bundle metadata.Bundle
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return metadata.Bundle{}, false, fmt.Errorf("indexer: decode stored bundle: %w", err)
	}
	return bundle, true, nil
}

// Register upserts bundle under its own DID.
func (s *SQLiteIndex) Register(bundle metadata.Bundle) error {
	encoded, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("indexer: encode bundle: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO bundles (did, bundle_json) VALUES (?, ?)
		 ON CONFLICT(did) DO UPDATE SET bundle_json = excluded.bundle_json`,
		string(bundle.DID), string(encoded),
	)
	if err != nil {
		return fmt.Errorf("indexer: upsert bundle: %w", err)
	}
	return nil
}
