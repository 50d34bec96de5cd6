package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/IRakow/aiaviizn-capture/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock's pool
// interface satisfies it, which keeps the store unit-testable.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pages (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	url         TEXT NOT NULL,
	digest      TEXT NOT NULL,
	version     INTEGER NOT NULL DEFAULT 1,
	status      TEXT NOT NULL DEFAULT 'complete',
	captured_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, url)
);

CREATE TABLE IF NOT EXISTS fields (
	id            TEXT PRIMARY KEY,
	page_id       TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	label         TEXT NOT NULL,
	sample_value  TEXT NOT NULL DEFAULT '',
	semantic_type TEXT NOT NULL,
	data_type     TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	source        TEXT NOT NULL DEFAULT '',
	ord           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS calculations (
	id                TEXT PRIMARY KEY,
	page_id           TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
	formula           TEXT NOT NULL,
	formula_type      TEXT NOT NULL,
	variable_mappings JSONB NOT NULL DEFAULT '[]',
	ord               INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS field_patterns (
	id            TEXT PRIMARY KEY,
	trigger_text  TEXT NOT NULL UNIQUE,
	semantic_type TEXT NOT NULL,
	data_type     TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	hit_count     INTEGER NOT NULL DEFAULT 0,
	last_hit_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pages_tenant ON pages(tenant_id);
CREATE INDEX IF NOT EXISTS idx_fields_page_id ON fields(page_id);
CREATE INDEX IF NOT EXISTS idx_calculations_page_id ON calculations(page_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetPage(ctx context.Context, tenantID, url string) (*model.Page, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, url, digest, version, status, captured_at FROM pages WHERE tenant_id = $1 AND url = $2`,
		tenantID, url,
	)

	var p model.Page
	err := row.Scan(&p.ID, &p.TenantID, &p.URL, &p.Digest, &p.Version, &p.Status, &p.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get page")
	}

	if err := s.loadChildren(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) loadChildren(ctx context.Context, p *model.Page) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id, page_id, label, sample_value, semantic_type, data_type, confidence, source
		 FROM fields WHERE page_id = $1 ORDER BY ord`,
		p.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: load fields")
	}
	defer rows.Close()
	for rows.Next() {
		var f model.Field
		if err := rows.Scan(&f.ID, &f.PageID, &f.Label, &f.SampleValue, &f.SemanticType, &f.DataType, &f.Confidence, &f.Source); err != nil {
			return eris.Wrap(err, "postgres: scan field")
		}
		p.Fields = append(p.Fields, f)
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "postgres: iterate fields")
	}

	calcRows, err := s.pool.Query(ctx,
		`SELECT id, page_id, formula, formula_type, variable_mappings
		 FROM calculations WHERE page_id = $1 ORDER BY ord`,
		p.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: load calculations")
	}
	defer calcRows.Close()
	for calcRows.Next() {
		var c model.Calculation
		var mappingsJSON []byte
		if err := calcRows.Scan(&c.ID, &c.PageID, &c.Formula, &c.Type, &mappingsJSON); err != nil {
			return eris.Wrap(err, "postgres: scan calculation")
		}
		if err := json.Unmarshal(mappingsJSON, &c.Mappings); err != nil {
			return eris.Wrap(err, "postgres: unmarshal mappings")
		}
		p.Calculations = append(p.Calculations, c)
	}
	return eris.Wrap(calcRows.Err(), "postgres: iterate calculations")
}

func (s *PostgresStore) InsertPage(ctx context.Context, page *model.Page) error {
	if page.ID == "" {
		page.ID = uuid.New().String()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin insert page")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO pages (id, tenant_id, url, digest, version, status, captured_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		page.ID, page.TenantID, page.URL, page.Digest, page.Version, string(page.Status), page.CapturedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrapf(ErrPageExists, "%s %s", page.TenantID, page.URL)
		}
		return eris.Wrap(err, "postgres: insert page")
	}

	if err := insertChildrenTx(ctx, tx, page); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit insert page")
}

func (s *PostgresStore) UpdatePage(ctx context.Context, page *model.Page, expectedVersion int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update page")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx,
		`UPDATE pages SET digest = $1, version = $2, status = $3, captured_at = $4
		 WHERE tenant_id = $5 AND url = $6 AND version = $7
		 RETURNING id`,
		page.Digest, page.Version, string(page.Status), page.CapturedAt,
		page.TenantID, page.URL, expectedVersion,
	)
	var pageID string
	if err := row.Scan(&pageID); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrap(err, "postgres: update page")
		}
		// Distinguish a stale version from a missing row.
		var exists bool
		checkErr := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM pages WHERE tenant_id = $1 AND url = $2)`,
			page.TenantID, page.URL,
		).Scan(&exists)
		if checkErr != nil {
			return eris.Wrap(checkErr, "postgres: check page existence")
		}
		if exists {
			return eris.Wrapf(ErrVersionConflict, "expected version %d", expectedVersion)
		}
		return eris.Wrapf(ErrPageNotFound, "%s %s", page.TenantID, page.URL)
	}
	page.ID = pageID

	// Re-captures replace the field and calculation sets, never append.
	if _, err := tx.Exec(ctx, `DELETE FROM fields WHERE page_id = $1`, pageID); err != nil {
		return eris.Wrap(err, "postgres: delete fields")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM calculations WHERE page_id = $1`, pageID); err != nil {
		return eris.Wrap(err, "postgres: delete calculations")
	}
	if err := insertChildrenTx(ctx, tx, page); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit update page")
}

func insertChildrenTx(ctx context.Context, tx pgx.Tx, page *model.Page) error {
	for i := range page.Fields {
		f := &page.Fields[i]
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		f.PageID = page.ID
		_, err := tx.Exec(ctx,
			`INSERT INTO fields (id, page_id, label, sample_value, semantic_type, data_type, confidence, source, ord)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			f.ID, page.ID, f.Label, f.SampleValue, string(f.SemanticType), string(f.DataType), f.Confidence, f.Source, i,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert field")
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
			return eris.Wrap(err, "postgres: marshal mappings")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO calculations (id, page_id, formula, formula_type, variable_mappings, ord)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, page.ID, c.Formula, string(c.Type), mappingsJSON, i,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert calculation")
		}
	}
	return nil
}

func (s *PostgresStore) ListPages(ctx context.Context, filter PageFilter) ([]model.Page, error) {
	query := `SELECT id, tenant_id, url, digest, version, status, captured_at FROM pages WHERE 1=1`
	var args []any

	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		query += ` AND tenant_id = $1`
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY captured_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pages")
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.ID, &p.TenantID, &p.URL, &p.Digest, &p.Version, &p.Status, &p.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan page")
		}
		pages = append(pages, p)
	}
	return pages, eris.Wrap(rows.Err(), "postgres: list pages iterate")
}

func (s *PostgresStore) LoadPatterns(ctx context.Context) ([]model.Pattern, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, trigger_text, semantic_type, data_type, confidence, hit_count, last_hit_at FROM field_patterns`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load patterns")
	}
	defer rows.Close()

	var patterns []model.Pattern
	for rows.Next() {
		var p model.Pattern
		if err := rows.Scan(&p.ID, &p.Trigger, &p.SemanticType, &p.DataType, &p.Confidence, &p.HitCount, &p.LastHitAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pattern")
		}
		patterns = append(patterns, p)
	}
	return patterns, eris.Wrap(rows.Err(), "postgres: load patterns iterate")
}

// UpsertPattern inserts or reinforces a pattern. The confidence can only
// ratchet upward, and the semantic/data types only change when the new hit
// is at least as confident as the stored one; hit count and last hit
// timestamp always advance.
func (s *PostgresStore) UpsertPattern(ctx context.Context, p model.Pattern) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.LastHitAt.IsZero() {
		p.LastHitAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO field_patterns (id, trigger_text, semantic_type, data_type, confidence, hit_count, last_hit_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (trigger_text) DO UPDATE SET
			semantic_type = CASE WHEN EXCLUDED.confidence >= field_patterns.confidence
				THEN EXCLUDED.semantic_type ELSE field_patterns.semantic_type END,
			data_type = CASE WHEN EXCLUDED.confidence >= field_patterns.confidence
				THEN EXCLUDED.data_type ELSE field_patterns.data_type END,
			confidence = GREATEST(field_patterns.confidence, EXCLUDED.confidence),
			hit_count = field_patterns.hit_count + 1,
			last_hit_at = EXCLUDED.last_hit_at`,
		p.ID, p.Trigger, string(p.SemanticType), string(p.DataType), p.Confidence, p.HitCount, p.LastHitAt,
	)
	return eris.Wrap(err, "postgres: upsert pattern")
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
