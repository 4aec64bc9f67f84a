package signer

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// NonceStore is a ledger of outstanding nonces, used to reject SIGN_END
// replay. It is backed by SQLite so the ledger can optionally survive a
// master restart even though the server directory itself never does.
type NonceStore struct {
	db *sql.DB
}

// OpenNonceStore opens (creating if necessary) a nonce ledger at path.
// Use ":memory:" for a store that never outlives the process.
func OpenNonceStore(path string) (*NonceStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("signer: opening nonce store: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS nonces (
		nonce_hex TEXT PRIMARY KEY,
		issued_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("signer: creating nonce table: %w", err)
	}
	return &NonceStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *NonceStore) Close() error {
	return s.db.Close()
}

// Put records nonceHex as outstanding.
func (s *NonceStore) Put(nonceHex string, issuedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO nonces (nonce_hex, issued_at) VALUES (?, ?)`,
		nonceHex, issuedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("signer: recording nonce: %w", err)
	}
	return nil
}

// Consume deletes nonceHex and reports whether it was present. A nonce
// that is not present (never issued, or already consumed by a prior
// SIGN_END) yields consumed=false — the replay case.
func (s *NonceStore) Consume(nonceHex string) (consumed bool, err error) {
	res, err := s.db.Exec(`DELETE FROM nonces WHERE nonce_hex = ?`, nonceHex)
	if err != nil {
		return false, fmt.Errorf("signer: consuming nonce: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("signer: checking consumed nonce: %w", err)
	}
	return n > 0, nil
}
