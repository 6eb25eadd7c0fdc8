package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/lattice/internal/checksum"
	"github.com/starford/lattice/internal/graphstore"
	"github.com/starford/lattice/internal/models"
	"github.com/starford/lattice/internal/parser"
)

const metaActive = "active_note"

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// SaveSpace inserts or replaces a space.
func (db *DB) SaveSpace(s models.Space) error {
	return saveSpace(db.conn, s)
}

func saveSpace(x execer, s models.Space) error {
	_, err := x.Exec(`
		INSERT INTO spaces (id, name, color) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, color = excluded.color
	`, s.ID, s.Name, s.Color)
	if err != nil {
		return fmt.Errorf("index: save space: %w", err)
	}
	return nil
}

// SaveNote inserts or replaces a note and its search entry within a
// transaction. Row order follows first insertion.
func (db *DB) SaveNote(n models.Note) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := saveNote(tx, n); err != nil {
		return err
	}
	return tx.Commit()
}

func saveNote(tx *sql.Tx, n models.Note) error {
	body := parser.PlainText(n.Content)
	_, err := tx.Exec(`
		INSERT INTO notes (id, title, content, space_id, body, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title      = excluded.title,
			content    = excluded.content,
			space_id   = excluded.space_id,
			body       = excluded.body,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, n.ID, n.Title, n.Content, n.SpaceID, body, checksum.Note(n), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: save note: %w", err)
	}
	// FTS upsert (no-op when FTS5 tag is absent).
	return ftsUpsert(tx, n.ID, n.Title, body)
}

// DeleteNote removes a note, its search entry and every link touching it.
func (db *DB) DeleteNote(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	if _, err := tx.Exec(`DELETE FROM links WHERE pair_a = ? OR pair_b = ?`, id, id); err != nil {
		return fmt.Errorf("index: delete links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return tx.Commit()
}

// SaveLink inserts a link or updates the reason of the existing link for
// the same unordered pair.
func (db *DB) SaveLink(l models.Link) error {
	return saveLink(db.conn, l)
}

func saveLink(x execer, l models.Link) error {
	p := l.Pair()
	_, err := x.Exec(`
		INSERT INTO links (pair_a, pair_b, source, target, reason) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pair_a, pair_b) DO UPDATE SET reason = excluded.reason
	`, p.A, p.B, l.Source, l.Target, l.Reason)
	if err != nil {
		return fmt.Errorf("index: save link: %w", err)
	}
	return nil
}

// SaveActive records the active note id; empty clears it.
func (db *DB) SaveActive(id string) error {
	_, err := db.conn.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaActive, id)
	if err != nil {
		return fmt.Errorf("index: save active: %w", err)
	}
	return nil
}

// Checksums returns the checksum recorded for every note when it was last
// written. A note whose current checksum.Note differs was changed behind
// the mirror's back.
func (db *DB) Checksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: load checksums: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// LoadSnapshot reads the whole mirror in insertion order. The result is
// not validated; graphstore.Store.Load repairs it.
func (db *DB) LoadSnapshot() (graphstore.Snapshot, error) {
	var snap graphstore.Snapshot

	rows, err := db.conn.Query(`SELECT id, name, color FROM spaces ORDER BY rowid`)
	if err != nil {
		return snap, fmt.Errorf("index: load spaces: %w", err)
	}
	for rows.Next() {
		var s models.Space
		if err := rows.Scan(&s.ID, &s.Name, &s.Color); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Spaces = append(snap.Spaces, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = db.conn.Query(`SELECT id, title, content, space_id FROM notes ORDER BY rowid`)
	if err != nil {
		return snap, fmt.Errorf("index: load notes: %w", err)
	}
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.SpaceID); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Notes = append(snap.Notes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = db.conn.Query(`SELECT source, target, reason FROM links ORDER BY rowid`)
	if err != nil {
		return snap, fmt.Errorf("index: load links: %w", err)
	}
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.Source, &l.Target, &l.Reason); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Links = append(snap.Links, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	err = db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaActive).Scan(&snap.ActiveID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("index: load active: %w", err)
	}
	return snap, nil
}

// ReplaceAll overwrites the mirror with snap in one transaction.
func (db *DB) ReplaceAll(snap graphstore.Snapshot) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{`DELETE FROM links`, `DELETE FROM notes`, `DELETE FROM spaces`, `DELETE FROM meta`} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("index: clear: %w", err)
		}
	}
	ftsClear(tx)

	for _, s := range snap.Spaces {
		if err := saveSpace(tx, s); err != nil {
			return err
		}
	}
	for _, n := range snap.Notes {
		if err := saveNote(tx, n); err != nil {
			return err
		}
	}
	for _, l := range snap.Links {
		if err := saveLink(tx, l); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, metaActive, snap.ActiveID); err != nil {
		return fmt.Errorf("index: save active: %w", err)
	}
	return tx.Commit()
}
