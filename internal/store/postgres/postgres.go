package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imertz/greek-sites-monitor/internal/domain"
	"github.com/imertz/greek-sites-monitor/internal/store"
)

var (
	_ store.SiteStore      = (*Store)(nil)
	_ store.ResultStore    = (*Store)(nil)
	_ store.PrincipalStore = (*Store)(nil)
	_ store.AlertStore     = (*Store)(nil)
)

// Store is the Postgres adapter, for deployments where several API
// replicas share one registry. Row locks (FOR UPDATE SKIP LOCKED) carry
// the same no-double-dispatch guarantee the SQLite adapter gets from its
// single write connection.
type Store struct {
	pool   *pgxpool.Pool
	policy store.Policy
}

func New(ctx context.Context, dsn string, policy store.Policy) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, policy: policy}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS sites (
	site_name     TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	category      TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	max_redirects INT NOT NULL DEFAULT 5,
	last_checked  TIMESTAMPTZ,
	added_by      TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sites_active_last_checked ON sites (is_active, last_checked);

CREATE TABLE IF NOT EXISTS check_results (
	id            BIGSERIAL PRIMARY KEY,
	site_name     TEXT NOT NULL REFERENCES sites(site_name),
	status_code   INT,
	response_time DOUBLE PRECISION,
	is_up         BOOLEAN NOT NULL,
	error_message TEXT,
	"timestamp"   TIMESTAMPTZ NOT NULL,
	checked_by    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_results_site_ts ON check_results (site_name, "timestamp" DESC, id DESC);

CREATE TABLE IF NOT EXISTS principals (
	username    TEXT PRIMARY KEY,
	api_key     TEXT NOT NULL UNIQUE,
	is_active   BOOLEAN NOT NULL DEFAULT TRUE,
	last_active TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_states (
	site_name    TEXT PRIMARY KEY REFERENCES sites(site_name),
	last_up      BOOLEAN NOT NULL,
	last_sent_at TIMESTAMPTZ
);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// ---- SiteStore ----

func (s *Store) AddSites(ctx context.Context, sites []domain.Site, addedBy string) ([]domain.Site, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin add sites: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	var added []domain.Site
	for _, site := range sites {
		if site.Name == "" || site.URL == "" {
			continue
		}
		if site.Category == "" {
			site.Category = domain.CategoryOf(site.Name)
		}
		if site.MaxRedirects <= 0 {
			site.MaxRedirects = domain.DefaultMaxRedirects
		}
		tag, err := tx.Exec(ctx, `
INSERT INTO sites (site_name, url, category, is_active, max_redirects, added_by, created_at)
VALUES ($1, $2, $3, TRUE, $4, $5, $6)
ON CONFLICT (site_name) DO NOTHING`,
			site.Name, site.URL, site.Category, site.MaxRedirects, addedBy, now)
		if err != nil {
			return nil, fmt.Errorf("insert site %s: %w", site.Name, err)
		}
		if tag.RowsAffected() > 0 {
			site.Active = true
			site.LastChecked = nil
			site.AddedBy = addedBy
			site.CreatedAt = now
			added = append(added, site)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit add sites: %w", err)
	}
	return added, nil
}

func (s *Store) NextDueSites(ctx context.Context, limit int) ([]domain.Site, error) {
	if limit <= 0 {
		limit = s.policy.BatchSize
	}
	now := time.Now().UTC()
	downCutoff := now.Add(-s.policy.DownRecheck)
	upCutoff := now.Add(-s.policy.UpRecheck)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin due selection: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
WITH latest AS (
	SELECT DISTINCT ON (r.site_name) r.site_name, r.is_up
	FROM check_results r
	ORDER BY r.site_name, r."timestamp" DESC, r.id DESC
)
SELECT s.site_name, s.url, s.category, s.is_active, s.max_redirects, s.last_checked, s.added_by, s.created_at,
       CASE WHEN l.is_up = FALSE AND s.last_checked IS NOT NULL AND s.last_checked <= $1
            THEN 1 ELSE 2 END AS tier
FROM sites s
LEFT JOIN latest l ON l.site_name = s.site_name
WHERE s.is_active
  AND (
        (l.is_up = FALSE AND s.last_checked IS NOT NULL AND s.last_checked <= $1)
     OR s.last_checked IS NULL
     OR s.last_checked <= $2
  )
ORDER BY tier, s.last_checked NULLS FIRST
LIMIT $3
FOR UPDATE OF s SKIP LOCKED`, downCutoff, upCutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("select due sites: %w", err)
	}
	var out []domain.Site
	for rows.Next() {
		var (
			site domain.Site
			tier int
		)
		if err := rows.Scan(&site.Name, &site.URL, &site.Category, &site.Active,
			&site.MaxRedirects, &site.LastChecked, &site.AddedBy, &site.CreatedAt, &tier); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan due site: %w", err)
		}
		out = append(out, site)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due sites: %w", err)
	}
	if len(out) == 0 {
		return nil, tx.Commit(ctx)
	}

	names := make([]string, 0, len(out))
	for _, site := range out {
		names = append(names, site.Name)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE sites SET last_checked = $1 WHERE site_name = ANY($2)`, now, names); err != nil {
		return nil, fmt.Errorf("stamp due sites: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit due selection: %w", err)
	}

	stamp := now
	for i := range out {
		out[i].LastChecked = &stamp
	}
	return out, nil
}

func (s *Store) CountDueSites(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	var n int
	err := s.pool.QueryRow(ctx, `
WITH latest AS (
	SELECT DISTINCT ON (r.site_name) r.site_name, r.is_up
	FROM check_results r
	ORDER BY r.site_name, r."timestamp" DESC, r.id DESC
)
SELECT COUNT(*)
FROM sites s
LEFT JOIN latest l ON l.site_name = s.site_name
WHERE s.is_active
  AND (
        (l.is_up = FALSE AND s.last_checked IS NOT NULL AND s.last_checked <= $1)
     OR s.last_checked IS NULL
     OR s.last_checked <= $2
  )`, now.Add(-s.policy.DownRecheck), now.Add(-s.policy.UpRecheck)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count due sites: %w", err)
	}
	return n, nil
}

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := s.pool.Query(ctx, `
SELECT site_name, url, category, is_active, max_redirects, last_checked, added_by, created_at
FROM sites ORDER BY created_at, site_name`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []domain.Site
	for rows.Next() {
		var site domain.Site
		if err := rows.Scan(&site.Name, &site.URL, &site.Category, &site.Active,
			&site.MaxRedirects, &site.LastChecked, &site.AddedBy, &site.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateSite(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE sites SET is_active = FALSE WHERE site_name = $1`, name)
	if err != nil {
		return fmt.Errorf("deactivate site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- ResultStore ----

func (s *Store) RecordResults(ctx context.Context, results []domain.CheckResult, checkedBy string) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record results: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, r := range results {
		ts := r.Timestamp
		if ts.IsZero() {
			ts = now
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO check_results (site_name, status_code, response_time, is_up, error_message, "timestamp", checked_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.SiteName, r.StatusCode, r.ResponseTime, r.Up, r.ErrorMessage, ts, checkedBy); err != nil {
			var pgErr *pgconn.PgError
			// 23503: foreign_key_violation
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return fmt.Errorf("unknown site %s: %w", r.SiteName, store.ErrNotFound)
			}
			return fmt.Errorf("insert result for %s: %w", r.SiteName, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record results: %w", err)
	}
	return nil
}

func (s *Store) LatestStatus(ctx context.Context) ([]domain.CheckResult, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT ON (r.site_name)
       r.site_name, s.url, s.category, r.status_code, r.response_time, r.is_up,
       r.error_message, r."timestamp", r.checked_by
FROM check_results r
JOIN sites s ON s.site_name = r.site_name
ORDER BY r.site_name, r."timestamp" DESC, r.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("latest status: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckResult
	for rows.Next() {
		var r domain.CheckResult
		if err := rows.Scan(&r.SiteName, &r.URL, &r.Category, &r.StatusCode, &r.ResponseTime,
			&r.Up, &r.ErrorMessage, &r.Timestamp, &r.CheckedBy); err != nil {
			return nil, fmt.Errorf("scan latest row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- PrincipalStore ----

func (s *Store) CreatePrincipal(ctx context.Context, username string) (*domain.Principal, error) {
	now := time.Now().UTC()
	p := &domain.Principal{
		Username:  username,
		APIKey:    uuid.NewString(),
		Active:    true,
		CreatedAt: now,
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO principals (username, api_key, is_active, created_at)
VALUES ($1, $2, TRUE, $3)
ON CONFLICT (username) DO NOTHING`, p.Username, p.APIKey, now)
	if err != nil {
		return nil, fmt.Errorf("insert principal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrDuplicate
	}
	return p, nil
}

func (s *Store) PrincipalByKey(ctx context.Context, apiKey string) (*domain.Principal, error) {
	var p domain.Principal
	err := s.pool.QueryRow(ctx, `
UPDATE principals SET last_active = NOW()
WHERE api_key = $1 AND is_active
RETURNING username, api_key, is_active, last_active, created_at`, apiKey).
		Scan(&p.Username, &p.APIKey, &p.Active, &p.LastActive, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", err)
	}
	return &p, nil
}

// ---- AlertStore ----

func (s *Store) AlertState(ctx context.Context, siteName string) (*domain.AlertState, error) {
	var a domain.AlertState
	err := s.pool.QueryRow(ctx, `
SELECT site_name, last_up, last_sent_at FROM alert_states WHERE site_name = $1`, siteName).
		Scan(&a.SiteName, &a.LastUp, &a.LastSentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("alert state: %w", err)
	}
	return &a, nil
}

func (s *Store) SetAlertState(ctx context.Context, siteName string, up bool, sentAt time.Time) error {
	var sent *time.Time
	if !sentAt.IsZero() {
		sent = &sentAt
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO alert_states (site_name, last_up, last_sent_at)
VALUES ($1, $2, $3)
ON CONFLICT (site_name) DO UPDATE SET
	last_up = EXCLUDED.last_up,
	last_sent_at = COALESCE(EXCLUDED.last_sent_at, alert_states.last_sent_at)`,
		siteName, up, sent)
	if err != nil {
		return fmt.Errorf("set alert state: %w", err)
	}
	return nil
}
