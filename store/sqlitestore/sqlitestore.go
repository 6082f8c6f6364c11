// Package sqlitestore provides SQLite-backed implementations of the store
// capability contracts, for callers that want session tickets, OCSP
// verdicts, and HPKP pins to survive a process restart. It uses
// modernc.org/sqlite, a pure-Go driver with no cgo dependency.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tlsengine/client/store"
	_ "modernc.org/sqlite"
)

// DB wraps a shared *sql.DB and exposes the three store interfaces as
// methods on thin wrapper types, matching how a single on-disk database
// can back all three capability contracts of spec §6.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if necessary) a SQLite database at path and ensures
// its schema exists.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.conn.Close() }

func (d *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tls_sessions (
			host TEXT PRIMARY KEY,
			blob BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ocsp_cache (
			fingerprint TEXT PRIMARY KEY,
			revoked INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ocsp_host_seen (
			host TEXT PRIMARY KEY,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS hpkp_pins (
			host TEXT NOT NULL,
			spki BLOB NOT NULL,
			PRIMARY KEY (host, spki)
		)`,
	}
	for _, s := range stmts {
		if _, err := d.conn.Exec(s); err != nil {
			return fmt.Errorf("sqlitestore: migrate: %w", err)
		}
	}
	return nil
}

// Sessions returns a SessionStore view onto the shared database.
func (d *DB) Sessions() *SessionStore { return &SessionStore{db: d} }

// OCSP returns an OCSPCache view onto the shared database.
func (d *DB) OCSP() *OCSPCache { return &OCSPCache{db: d} }

// HPKP returns an HPKPStore view onto the shared database.
func (d *DB) HPKP() *HPKPStore { return &HPKPStore{db: d} }

// SessionStore implements store.SessionStore against a *DB.
type SessionStore struct{ db *DB }

func (s *SessionStore) Get(host string) ([]byte, bool, error) {
	var blob []byte
	var expires int64
	row := s.db.conn.QueryRow(`SELECT blob, expires_at FROM tls_sessions WHERE host = ?`, host)
	if err := row.Scan(&blob, &expires); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	if time.Now().Unix() > expires {
		_, _ = s.db.conn.Exec(`DELETE FROM tls_sessions WHERE host = ?`, host)
		return nil, false, nil
	}
	return blob, true, nil
}

func (s *SessionStore) Add(host string, blob []byte, ttl time.Duration) error {
	_, err := s.db.conn.Exec(
		`INSERT INTO tls_sessions (host, blob, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(host) DO UPDATE SET blob = excluded.blob, expires_at = excluded.expires_at`,
		host, blob, time.Now().Add(ttl).Unix())
	return err
}

// OCSPCache implements store.OCSPCache against a *DB.
type OCSPCache struct{ db *DB }

func (o *OCSPCache) Lookup(fingerprint string) (bool, bool, error) {
	var revoked int
	var expires int64
	row := o.db.conn.QueryRow(`SELECT revoked, expires_at FROM ocsp_cache WHERE fingerprint = ?`, fingerprint)
	if err := row.Scan(&revoked, &expires); err != nil {
		if err == sql.ErrNoRows {
			return false, false, nil
		}
		return false, false, err
	}
	if time.Now().Unix() > expires {
		_, _ = o.db.conn.Exec(`DELETE FROM ocsp_cache WHERE fingerprint = ?`, fingerprint)
		return false, false, nil
	}
	return true, revoked != 0, nil
}

func (o *OCSPCache) Add(fingerprint string, expiry time.Time, valid bool) error {
	revoked := 0
	if !valid {
		revoked = 1
	}
	_, err := o.db.conn.Exec(
		`INSERT INTO ocsp_cache (fingerprint, revoked, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET revoked = excluded.revoked, expires_at = excluded.expires_at`,
		fingerprint, revoked, expiry.Unix())
	return err
}

func (o *OCSPCache) HostSeen(host string) (bool, error) {
	var expires int64
	row := o.db.conn.QueryRow(`SELECT expires_at FROM ocsp_host_seen WHERE host = ?`, host)
	if err := row.Scan(&expires); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	if time.Now().Unix() > expires {
		_, _ = o.db.conn.Exec(`DELETE FROM ocsp_host_seen WHERE host = ?`, host)
		return false, nil
	}
	return true, nil
}

func (o *OCSPCache) MarkHostSeen(host string, ttl time.Duration) error {
	_, err := o.db.conn.Exec(
		`INSERT INTO ocsp_host_seen (host, expires_at) VALUES (?, ?)
		 ON CONFLICT(host) DO UPDATE SET expires_at = excluded.expires_at`,
		host, time.Now().Add(ttl).Unix())
	return err
}

// HPKPStore implements store.HPKPStore against a *DB.
type HPKPStore struct{ db *DB }

func (h *HPKPStore) Check(host string, spkiDER []byte) (store.PinCheckResult, error) {
	var count int
	row := h.db.conn.QueryRow(`SELECT COUNT(*) FROM hpkp_pins WHERE host = ?`, host)
	if err := row.Scan(&count); err != nil {
		return store.PinError, err
	}
	if count == 0 {
		return store.PinNotFound, nil
	}
	row = h.db.conn.QueryRow(`SELECT COUNT(*) FROM hpkp_pins WHERE host = ? AND spki = ?`, host, spkiDER)
	if err := row.Scan(&count); err != nil {
		return store.PinError, err
	}
	if count > 0 {
		return store.PinMatch, nil
	}
	return store.PinMismatch, nil
}

func (h *HPKPStore) Pin(host string, spkiDER []byte, _ time.Duration) error {
	_, err := h.db.conn.Exec(
		`INSERT OR IGNORE INTO hpkp_pins (host, spki) VALUES (?, ?)`, host, spkiDER)
	return err
}
