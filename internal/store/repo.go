package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/starford/spotter/internal/models"
)

const upsertSQL = `
	INSERT INTO records (path, name, extension, kind, phonetic_full, phonetic_acronym, icon, modified_at, size)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		name             = excluded.name,
		extension        = excluded.extension,
		kind             = excluded.kind,
		phonetic_full    = excluded.phonetic_full,
		phonetic_acronym = excluded.phonetic_acronym,
		icon             = excluded.icon,
		modified_at      = excluded.modified_at,
		size             = excluded.size
`

const fingerprintKey = "settings_fingerprint"

// InsertBatch upserts records keyed by path within a single transaction.
func (db *DB) InsertBatch(records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		return fmt.Errorf("store: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(recordArgs(r)...); err != nil {
			return fmt.Errorf("store: upsert %s: %w", r.Path, err)
		}
	}
	return tx.Commit()
}

// Insert upserts a single record.
func (db *DB) Insert(r models.Record) error {
	if _, err := db.conn.Exec(upsertSQL, recordArgs(r)...); err != nil {
		return fmt.Errorf("store: upsert %s: %w", r.Path, err)
	}
	return nil
}

// Delete removes the record for path. Deleting a missing path is not an error.
func (db *DB) Delete(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM records WHERE path = ?`, path); err != nil {
		return fmt.Errorf("store: delete %s: %w", path, err)
	}
	return nil
}

// DeleteTree removes path and every record stored below it, returning the
// removed paths.
func (db *DB) DeleteTree(path string) ([]string, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	lo, hi := subtreeRange(path)
	rows, err := tx.Query(`SELECT path FROM records WHERE path = ? OR (path >= ? AND path < ?)`, path, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("store: select tree: %w", err)
	}
	var removed []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, err
		}
		removed = append(removed, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(`DELETE FROM records WHERE path = ? OR (path >= ? AND path < ?)`, path, lo, hi); err != nil {
		return nil, fmt.Errorf("store: delete tree: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return removed, nil
}

// subtreeRange returns the half-open key range covering every path below dir.
func subtreeRange(dir string) (string, string) {
	sep := string(os.PathSeparator)
	dir = strings.TrimSuffix(dir, sep)
	return dir + sep, dir + string(rune(os.PathSeparator+1))
}

// DeleteAll removes every record. The fingerprint is cleared as well so an
// interrupted rescan is never mistaken for a complete index.
func (db *DB) DeleteAll() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM records`); err != nil {
		return fmt.Errorf("store: delete all: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM meta WHERE key = ?`, fingerprintKey); err != nil {
		return fmt.Errorf("store: clear fingerprint: %w", err)
	}
	return tx.Commit()
}

// LoadAll returns every stored record ordered by path.
func (db *DB) LoadAll() ([]models.Record, error) {
	rows, err := db.conn.Query(`
		SELECT path, name, extension, kind, phonetic_full, phonetic_acronym, icon, modified_at, size
		FROM records
		ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("store: load all: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var (
			r    models.Record
			kind string
			mod  int64
		)
		if err := rows.Scan(&r.Path, &r.Name, &r.Extension, &kind, &r.PhoneticFull, &r.PhoneticAcronym, &r.Icon, &mod, &r.Size); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		r.Kind = models.Kind(kind)
		if mod != 0 {
			r.ModifiedAt = time.Unix(0, mod)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats returns the number of stored records.
func (db *DB) Stats() (Stats, error) {
	var s Stats
	if err := db.conn.QueryRow(`SELECT count(*) FROM records`).Scan(&s.Count); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return s, nil
}

// Fingerprint returns the settings fingerprint recorded by the last complete
// scan, or an empty string.
func (db *DB) Fingerprint() (string, error) {
	var fp string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, fingerprintKey).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: fingerprint: %w", err)
	}
	return fp, nil
}

// SetFingerprint records the settings fingerprint of a completed scan.
func (db *DB) SetFingerprint(fp string) error {
	_, err := db.conn.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, fingerprintKey, fp)
	if err != nil {
		return fmt.Errorf("store: set fingerprint: %w", err)
	}
	return nil
}

func recordArgs(r models.Record) []any {
	var mod int64
	if !r.ModifiedAt.IsZero() {
		mod = r.ModifiedAt.UnixNano()
	}
	return []any{r.Path, r.Name, r.Extension, string(r.Kind), r.PhoneticFull, r.PhoneticAcronym, r.Icon, mod, r.Size}
}
