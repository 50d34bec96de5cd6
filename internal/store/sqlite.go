package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/IRakow/aiaviizn-capture/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pages (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	url         TEXT NOT NULL,
	digest      TEXT NOT NULL,
	version     INTEGER NOT NULL DEFAULT 1,
	status      TEXT NOT NULL DEFAULT 'complete',
	captured_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (tenant_id, url)
);

CREATE TABLE IF NOT EXISTS fields (
	id            TEXT PRIMARY KEY,
	page_id       TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	label         TEXT NOT NULL,
	sample_value  TEXT NOT NULL DEFAULT '',
	semantic_type TEXT NOT NULL,
	data_type     TEXT NOT NULL,
	confidence    REAL NOT NULL DEFAULT 0,
	source        TEXT NOT NULL DEFAULT '',
	ord           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS calculations (
	id                TEXT PRIMARY KEY,
	page_id           TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	formula           TEXT NOT NULL,
	formula_type      TEXT NOT NULL,
	variable_mappings TEXT NOT NULL DEFAULT '[]',
	ord               INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS field_patterns (
	id            TEXT PRIMARY KEY,
	trigger_text  TEXT NOT NULL UNIQUE,
	semantic_type TEXT NOT NULL,
	data_type     TEXT NOT NULL,
	confidence    REAL NOT NULL DEFAULT 0,
	hit_count     INTEGER NOT NULL DEFAULT 0,
	last_hit_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_pages_tenant ON pages(tenant_id);
CREATE INDEX IF NOT EXISTS idx_fields_page_id ON fields(page_id);
CREATE INDEX IF NOT EXISTS idx_calculations_page_id ON calculations(page_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetPage(ctx context.Context, tenantID, url string) (*model.Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, url, digest, version, status, captured_at FROM pages WHERE tenant_id = ? AND url = ?`,
		tenantID, url,
	)

	var p model.Page
	err := row.Scan(&p.ID, &p.TenantID, &p.URL, &p.Digest, &p.Version, &p.Status, &p.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get page")
	}

	if err := s.loadChildren(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) loadChildren(ctx context.Context, p *model.Page) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, page_id, label, sample_value, semantic_type, data_type, confidence, source
		 FROM fields WHERE page_id = ? ORDER BY ord`,
		p.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: load fields")
	}
	defer rows.Close()
	for rows.Next() {
		var f model.Field
		if err := rows.Scan(&f.ID, &f.PageID, &f.Label, &f.SampleValue, &f.SemanticType, &f.DataType, &f.Confidence, &f.Source); err != nil {
			return eris.Wrap(err, "sqlite: scan field")
		}
		p.Fields = append(p.Fields, f)
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "sqlite: iterate fields")
	}

	calcRows, err := s.db.QueryContext(ctx,
		`SELECT id, page_id, formula, formula_type, variable_mappings
		 FROM calculations WHERE page_id = ? ORDER BY ord`,
		p.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: load calculations")
	}
	defer calcRows.Close()
	for calcRows.Next() {
		var c model.Calculation
		var mappingsJSON string
		if err := calcRows.Scan(&c.ID, &c.PageID, &c.Formula, &c.Type, &mappingsJSON); err != nil {
			return eris.Wrap(err, "sqlite: scan calculation")
		}
		if err := json.Unmarshal([]byte(mappingsJSON), &c.Mappings); err != nil {
			return eris.Wrap(err, "sqlite: unmarshal mappings")
		}
		p.Calculations = append(p.Calculations, c)
	}
	return eris.Wrap(calcRows.Err(), "sqlite: iterate calculations")
}

func (s *SQLiteStore) InsertPage(ctx context.Context, page *model.Page) error {
	if page.ID == "" {
		page.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert page")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pages (id, tenant_id, url, digest, version, status, captured_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		page.ID, page.TenantID, page.URL, page.Digest, page.Version, string(page.Status), page.CapturedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return eris.Wrapf(ErrPageExists, "%s %s", page.TenantID, page.URL)
		}
		return eris.Wrap(err, "sqlite: insert page")
	}

	if err := s.insertChildrenTx(ctx, tx, page); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert page")
}

func (s *SQLiteStore) UpdatePage(ctx context.Context, page *model.Page, expectedVersion int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update page")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE pages SET digest = ?, version = ?, status = ?, captured_at = ?
		 WHERE tenant_id = ? AND url = ? AND version = ?`,
		page.Digest, page.Version, string(page.Status), page.CapturedAt,
		page.TenantID, page.URL, expectedVersion,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update page")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		var exists bool
		checkErr := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM pages WHERE tenant_id = ? AND url = ?)`,
			page.TenantID, page.URL,
		).Scan(&exists)
		if checkErr != nil {
			return eris.Wrap(checkErr, "sqlite: check page existence")
		}
		if exists {
			return eris.Wrapf(ErrVersionConflict, "expected version %d", expectedVersion)
		}
		return eris.Wrapf(ErrPageNotFound, "%s %s", page.TenantID, page.URL)
	}

	var pageID string
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM pages WHERE tenant_id = ? AND url = ?`,
		page.TenantID, page.URL,
	).Scan(&pageID); err != nil {
		return eris.Wrap(err, "sqlite: resolve page id")
	}
	page.ID = pageID

	// Re-captures replace the field and calculation sets, never append.
	if _, err := tx.ExecContext(ctx, `DELETE FROM fields WHERE page_id = ?`, pageID); err != nil {
		return eris.Wrap(err, "sqlite: delete fields")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM calculations WHERE page_id = ?`, pageID); err != nil {
		return eris.Wrap(err, "sqlite: delete calculations")
	}
	if err := s.insertChildrenTx(ctx, tx, page); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit update page")
}

func (s *SQLiteStore) insertChildrenTx(ctx context.Context, tx *sql.Tx, page *model.Page) error {
	for i := range page.Fields {
		f := &page.Fields[i]
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		f.PageID = page.ID
		_, err := tx.ExecContext(ctx,
			`INSERT INTO fields (id, page_id, label, sample_value, semantic_type, data_type, confidence, source, ord)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, page.ID, f.Label, f.SampleValue, string(f.SemanticType), string(f.DataType), f.Confidence, f.Source, i,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert field")
		}
	}

	for i := range page.Calculations {
		c := &page.Calculations[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.PageID = page.ID
		mappingsJSON, err := json.Marshal(c.Mappings)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal mappings")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO calculations (id, page_id, formula, formula_type, variable_mappings, ord)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, page.ID, c.Formula, string(c.Type), string(mappingsJSON), i,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert calculation")
		}
	}
	return nil
}

func (s *SQLiteStore) ListPages(ctx context.Context, filter PageFilter) ([]model.Page, error) {
	query := `SELECT id, tenant_id, url, digest, version, status, captured_at FROM pages WHERE 1=1`
	var args []any

	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY captured_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pages")
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.ID, &p.TenantID, &p.URL, &p.Digest, &p.Version, &p.Status, &p.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan page")
		}
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "sqlite: list pages iterate")
}

func (s *SQLiteStore) LoadPatterns(ctx context.Context) ([]model.Pattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trigger_text, semantic_type, data_type, confidence, hit_count, last_hit_at FROM field_patterns`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load patterns")
	}
	defer rows.Close()

	var patterns []model.Pattern
	for rows.Next() {
		var p model.Pattern
		if err := rows.Scan(&p.ID, &p.Trigger, &p.SemanticType, &p.DataType, &p.Confidence, &p.HitCount, &p.LastHitAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pattern")
		}
		patterns = append(patterns, p)
	}
	return patterns, eris.Wrap(rows.Err(), "sqlite: load patterns iterate")
}

// UpsertPattern inserts or reinforces a pattern. The confidence can only
// ratchet upward, and the semantic/data types only change when the new hit
// is at least as confident as the stored one; hit count and last hit
// timestamp always advance.
func (s *SQLiteStore) UpsertPattern(ctx context.Context, p model.Pattern) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.LastHitAt.IsZero() {
		p.LastHitAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO field_patterns (id, trigger_text, semantic_type, data_type, confidence, hit_count, last_hit_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (trigger_text) DO UPDATE SET
			semantic_type = CASE WHEN excluded.confidence >= field_patterns.confidence
				THEN excluded.semantic_type ELSE field_patterns.semantic_type END,
			data_type = CASE WHEN excluded.confidence >= field_patterns.confidence
				THEN excluded.data_type ELSE field_patterns.data_type END,
			confidence = MAX(field_patterns.confidence, excluded.confidence),
			hit_count = field_patterns.hit_count + 1,
			last_hit_at = excluded.last_hit_at`,
		p.ID, p.Trigger, string(p.SemanticType), string(p.DataType), p.Confidence, p.HitCount, p.LastHitAt,
	)
	return eris.Wrap(err, "sqlite: upsert pattern")
}
