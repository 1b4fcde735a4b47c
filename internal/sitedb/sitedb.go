// Package sitedb implements the per-site output database from spec.md
// §4.6.4: a `meetings.db` SQLite file with `minutes`/`agendas` tables
// keyed by the stable page fingerprint, full-text search over the
// compiled text, and an additive, concurrency-safe writer so `compile`
// and `extract` can both write it in parallel (spec.md §5). Grounded on
// codenerd's internal/northstar/store.go (schema-in-a-string,
// sql.DB-backed store with a guarding mutex), generalized from a
// cgo-driven mattn/go-sqlite3 store to the pure-Go
// modernc.org/sqlite driver so this module has no cgo dependency.
package sitedb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps one site's meetings.db connection.
type DB struct {
	sql *sql.DB
	mu  sync.Mutex
}

// Open opens (creating if absent) the sqlite database at path and applies
// the schema. WAL mode lets compile and extract hold separate writer
// transactions without blocking readers (spec.md §5's "writers must use
// the DB's own transactional semantics").
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sitedb: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one *sql.DB

	d := &DB{sql: db}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Close() error { return d.sql.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS minutes (
	fingerprint TEXT PRIMARY KEY,
	meeting     TEXT NOT NULL,
	date        TEXT NOT NULL,
	page        INTEGER NOT NULL,
	text        TEXT NOT NULL,
	extraction  TEXT
);
CREATE INDEX IF NOT EXISTS minutes_meeting_date_idx ON minutes (meeting, date);

CREATE TABLE IF NOT EXISTS agendas (
	fingerprint TEXT PRIMARY KEY,
	meeting     TEXT NOT NULL,
	date        TEXT NOT NULL,
	page        INTEGER NOT NULL,
	text        TEXT NOT NULL,
	extraction  TEXT
);
CREATE INDEX IF NOT EXISTS agendas_meeting_date_idx ON agendas (meeting, date);

CREATE VIRTUAL TABLE IF NOT EXISTS minutes_fts USING fts5(
	fingerprint UNINDEXED, meeting, date UNINDEXED, text, content='minutes', content_rowid='rowid'
);
CREATE VIRTUAL TABLE IF NOT EXISTS agendas_fts USING fts5(
	fingerprint UNINDEXED, meeting, date UNINDEXED, text, content='agendas', content_rowid='rowid'
);
`

func (d *DB) initSchema() error {
	_, err := d.sql.Exec(schema)
	return err
}

// Kind selects which table (minutes or agendas) a Page belongs to.
type Kind string

const (
	KindMinutes Kind = "minutes"
	KindAgendas Kind = "agendas"
)

func (k Kind) table() string {
	if k == KindAgendas {
		return "agendas"
	}
	return "minutes"
}

// Page is one fingerprint-keyed row, written by compile and optionally
// enriched with Extraction JSON by extract.
type Page struct {
	Fingerprint string
	Kind        Kind
	Meeting     string
	Date        string
	Page        int
	Text        string
}

// UpsertPage writes a compiled page, inserting into both the content
// table and its FTS index, or updating the text if the fingerprint
// already exists (idempotent re-compile, spec.md §8).
func (d *DB) UpsertPage(ctx context.Context, p Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	table := p.Kind.table()
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (fingerprint, meeting, date, page, text)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET text = excluded.text, page = excluded.page`, table),
		p.Fingerprint, p.Meeting, p.Date, p.Page, p.Text)
	if err != nil {
		return fmt.Errorf("sitedb: upserting %s page: %w", table, err)
	}

	if err := d.reindexFTS(ctx, tx, p.Kind); err != nil {
		return err
	}
	return tx.Commit()
}

// reindexFTS rebuilds the external-content FTS5 index for one table.
// Simpler and safer under concurrent compile/extract writers than
// maintaining triggers by hand; meetings.db is small enough per-site
// that a full 'rebuild' per write is cheap.
func (d *DB) reindexFTS(ctx context.Context, tx *sql.Tx, kind Kind) error {
	ftsTable := kind.table() + "_fts"
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s(%s) VALUES('rebuild')`, ftsTable, ftsTable))
	return err
}

// SetExtraction merges entity/vote extraction JSON onto an existing page
// row, keyed by the same fingerprint compile already wrote — the
// additive write spec.md §4.6.5 requires ("writes are additive and must
// be safe under concurrent writer"). Returns an error if the fingerprint
// hasn't been compiled yet; extract runs in parallel with compile but
// the row must exist first.
func (d *DB) SetExtraction(ctx context.Context, kind Kind, fingerprint, extractionJSON string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	table := kind.table()
	res, err := d.sql.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET extraction = ? WHERE fingerprint = ?`, table),
		extractionJSON, fingerprint)
	if err != nil {
		return fmt.Errorf("sitedb: setting extraction on %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sitedb: no %s row for fingerprint %s yet", table, fingerprint)
	}
	return nil
}

// Search runs a full-text query against one table's FTS index.
func (d *DB) Search(ctx context.Context, kind Kind, query string, limit int) ([]Page, error) {
	ftsTable := kind.table() + "_fts"
	table := kind.table()

	rows, err := d.sql.QueryContext(ctx, fmt.Sprintf(`
		SELECT t.fingerprint, t.meeting, t.date, t.page, t.text
		FROM %s f JOIN %s t ON t.fingerprint = f.fingerprint
		WHERE f.text MATCH ?
		ORDER BY rank
		LIMIT ?`, ftsTable, table), query, limit)
	if err != nil {
		return nil, fmt.Errorf("sitedb: searching %s: %w", table, err)
	}
	defer rows.Close()

	var out []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.Fingerprint, &p.Meeting, &p.Date, &p.Page, &p.Text); err != nil {
			return nil, err
		}
		p.Kind = kind
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of compiled pages for kind.
func (d *DB) Count(ctx context.Context, kind Kind) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, kind.table())).Scan(&n)
	return n, err
}
