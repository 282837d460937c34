package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/imertz/greek-sites-monitor/internal/domain"
	"github.com/imertz/greek-sites-monitor/internal/store"
)

var (
	_ store.SiteStore      = (*Store)(nil)
	_ store.ResultStore    = (*Store)(nil)
	_ store.PrincipalStore = (*Store)(nil)
	_ store.AlertStore     = (*Store)(nil)
)

// Store is the default durable adapter. Timestamps are stored as integer
// Unix milliseconds so cutoff comparisons stay exact in SQL.
type Store struct {
	db     *sql.DB
	policy store.Policy
}

// New opens (or creates) the database file and applies the schema.
// WAL keeps readers unblocked during result appends; a single write
// connection serializes the select+stamp transaction.
func New(ctx context.Context, path string, policy store.Policy) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, policy: policy}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS sites (
	site_name     TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	category      TEXT NOT NULL,
	is_active     INTEGER NOT NULL DEFAULT 1,
	max_redirects INTEGER NOT NULL DEFAULT 5,
	last_checked  INTEGER,
	added_by      TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sites_active_last_checked ON sites (is_active, last_checked);

CREATE TABLE IF NOT EXISTS check_results (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	site_name     TEXT NOT NULL REFERENCES sites(site_name),
	status_code   INTEGER,
	response_time REAL,
	is_up         INTEGER NOT NULL,
	error_message TEXT,
	timestamp     INTEGER NOT NULL,
	checked_by    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_results_site_ts ON check_results (site_name, timestamp DESC, id DESC);

CREATE TABLE IF NOT EXISTS principals (
	username    TEXT PRIMARY KEY,
	api_key     TEXT NOT NULL UNIQUE,
	is_active   INTEGER NOT NULL DEFAULT 1,
	last_active INTEGER,
	created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_states (
	site_name    TEXT PRIMARY KEY REFERENCES sites(site_name),
	last_up      INTEGER NOT NULL,
	last_sent_at INTEGER
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// ---- time helpers ----

func ms(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMS(v.Int64)
	return &t
}

// ---- SiteStore ----

func (s *Store) AddSites(ctx context.Context, sites []domain.Site, addedBy string) ([]domain.Site, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add sites: %w", err)
	}
	defer tx.Rollback()

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
		res, err := tx.ExecContext(ctx, `
INSERT INTO sites (site_name, url, category, is_active, max_redirects, added_by, created_at)
VALUES (?, ?, ?, 1, ?, ?, ?)
ON CONFLICT(site_name) DO NOTHING`,
			site.Name, site.URL, site.Category, site.MaxRedirects, addedBy, ms(now))
		if err != nil {
			return nil, fmt.Errorf("insert site %s: %w", site.Name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			site.Active = true
			site.LastChecked = nil
			site.AddedBy = addedBy
			site.CreatedAt = now
			added = append(added, site)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add sites: %w", err)
	}
	return added, nil
}

// dueQuery selects eligible sites with their priority tier. A site whose
// latest recorded result is down and whose stamp is older than the down
// cutoff is tier 1; anything unstamped or older than the routine cutoff is
// tier 2. Never-checked sites sort before everything else in their tier.
const dueQuery = `
SELECT site_name, url, category, is_active, max_redirects, last_checked, added_by, created_at, tier
FROM (
	SELECT s.*,
	       CASE WHEN (
	             SELECT r.is_up FROM check_results r
	             WHERE r.site_name = s.site_name
	             ORDER BY r.timestamp DESC, r.id DESC LIMIT 1
	           ) = 0
	           AND s.last_checked IS NOT NULL
	           AND s.last_checked <= ?
	       THEN 1 ELSE 2 END AS tier
	FROM sites s
	WHERE s.is_active = 1
	  AND (
	        ((
	          SELECT r.is_up FROM check_results r
	          WHERE r.site_name = s.site_name
	          ORDER BY r.timestamp DESC, r.id DESC LIMIT 1
	        ) = 0 AND s.last_checked IS NOT NULL AND s.last_checked <= ?)
	     OR s.last_checked IS NULL
	     OR s.last_checked <= ?
	  )
)
ORDER BY tier, last_checked IS NOT NULL, last_checked
LIMIT ?`

// NextDueSites runs selection and the last_checked stamp in one
// transaction, which is what keeps two overlapping schedulers (local cycle
// plus a remote agent pulling over the API) from receiving the same site.
func (s *Store) NextDueSites(ctx context.Context, limit int) ([]domain.Site, error) {
	if limit <= 0 {
		limit = s.policy.BatchSize
	}
	now := time.Now().UTC()
	downCutoff := ms(now.Add(-s.policy.DownRecheck))
	upCutoff := ms(now.Add(-s.policy.UpRecheck))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin due selection: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, dueQuery, downCutoff, downCutoff, upCutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("select due sites: %w", err)
	}
	var out []domain.Site
	for rows.Next() {
		var (
			site        domain.Site
			active      int
			lastChecked sql.NullInt64
			createdAt   int64
			tier        int
		)
		if err := rows.Scan(&site.Name, &site.URL, &site.Category, &active,
			&site.MaxRedirects, &lastChecked, &site.AddedBy, &createdAt, &tier); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan due site: %w", err)
		}
		site.Active = active == 1
		site.LastChecked = timePtr(lastChecked)
		site.CreatedAt = fromMS(createdAt)
		out = append(out, site)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due sites: %w", err)
	}
	if len(out) == 0 {
		return nil, tx.Commit()
	}

	// stamp the whole batch before anyone else can select it
	args := make([]any, 0, len(out)+1)
	args = append(args, ms(now))
	ph := make([]string, 0, len(out))
	for _, site := range out {
		ph = append(ph, "?")
		args = append(args, site.Name)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sites SET last_checked = ? WHERE site_name IN (`+strings.Join(ph, ",")+`)`,
		args...); err != nil {
		return nil, fmt.Errorf("stamp due sites: %w", err)
	}
	if err := tx.Commit(); err != nil {
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
	downCutoff := ms(now.Add(-s.policy.DownRecheck))
	upCutoff := ms(now.Add(-s.policy.UpRecheck))

	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM sites s
WHERE s.is_active = 1
  AND (
        ((
          SELECT r.is_up FROM check_results r
          WHERE r.site_name = s.site_name
          ORDER BY r.timestamp DESC, r.id DESC LIMIT 1
        ) = 0 AND s.last_checked IS NOT NULL AND s.last_checked <= ?)
     OR s.last_checked IS NULL
     OR s.last_checked <= ?
  )`, downCutoff, upCutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count due sites: %w", err)
	}
	return n, nil
}

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT site_name, url, category, is_active, max_redirects, last_checked, added_by, created_at
FROM sites ORDER BY created_at, site_name`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []domain.Site
	for rows.Next() {
		var (
			site        domain.Site
			active      int
			lastChecked sql.NullInt64
			createdAt   int64
		)
		if err := rows.Scan(&site.Name, &site.URL, &site.Category, &active,
			&site.MaxRedirects, &lastChecked, &site.AddedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		site.Active = active == 1
		site.LastChecked = timePtr(lastChecked)
		site.CreatedAt = fromMS(createdAt)
		out = append(out, site)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateSite(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sites SET is_active = 0 WHERE site_name = ?`, name)
	if err != nil {
		return fmt.Errorf("deactivate site: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- ResultStore ----

// RecordResults appends the batch inside one transaction: a single bad row
// (unknown site_name trips the foreign key) rolls back the whole batch and
// reports store.ErrNotFound.
func (s *Store) RecordResults(ctx context.Context, results []domain.CheckResult, checkedBy string) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record results: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, r := range results {
		ts := r.Timestamp
		if ts.IsZero() {
			ts = now
		}
		up := 0
		if r.Up {
			up = 1
		}
		var code, rt, msg any
		if r.StatusCode != nil {
			code = *r.StatusCode
		}
		if r.ResponseTime != nil {
			rt = *r.ResponseTime
		}
		if r.ErrorMessage != nil {
			msg = *r.ErrorMessage
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO check_results (site_name, status_code, response_time, is_up, error_message, timestamp, checked_by)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.SiteName, code, rt, up, msg, ms(ts), checkedBy); err != nil {
			if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
				return fmt.Errorf("unknown site %s: %w", r.SiteName, store.ErrNotFound)
			}
			return fmt.Errorf("insert result for %s: %w", r.SiteName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record results: %w", err)
	}
	return nil
}

func (s *Store) LatestStatus(ctx context.Context) ([]domain.CheckResult, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT r.site_name, s.url, s.category, r.status_code, r.response_time, r.is_up,
       r.error_message, r.timestamp, r.checked_by
FROM check_results r
JOIN sites s ON s.site_name = r.site_name
WHERE r.id = (
	SELECT r2.id FROM check_results r2
	WHERE r2.site_name = r.site_name
	ORDER BY r2.timestamp DESC, r2.id DESC LIMIT 1
)
ORDER BY r.site_name`)
	if err != nil {
		return nil, fmt.Errorf("latest status: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckResult
	for rows.Next() {
		var (
			r    domain.CheckResult
			code sql.NullInt64
			rt   sql.NullFloat64
			up   int
			msg  sql.NullString
			ts   int64
		)
		if err := rows.Scan(&r.SiteName, &r.URL, &r.Category, &code, &rt, &up, &msg, &ts, &r.CheckedBy); err != nil {
			return nil, fmt.Errorf("scan latest row: %w", err)
		}
		if code.Valid {
			v := int(code.Int64)
			r.StatusCode = &v
		}
		if rt.Valid {
			v := rt.Float64
			r.ResponseTime = &v
		}
		if msg.Valid {
			v := msg.String
			r.ErrorMessage = &v
		}
		r.Up = up == 1
		r.Timestamp = fromMS(ts)
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
	res, err := s.db.ExecContext(ctx, `
INSERT INTO principals (username, api_key, is_active, created_at)
VALUES (?, ?, 1, ?)
ON CONFLICT(username) DO NOTHING`,
		p.Username, p.APIKey, ms(now))
	if err != nil {
		return nil, fmt.Errorf("insert principal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrDuplicate
	}
	return p, nil
}

func (s *Store) PrincipalByKey(ctx context.Context, apiKey string) (*domain.Principal, error) {
	var (
		p          domain.Principal
		active     int
		lastActive sql.NullInt64
		createdAt  int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT username, api_key, is_active, last_active, created_at
FROM principals WHERE api_key = ? AND is_active = 1`, apiKey).
		Scan(&p.Username, &p.APIKey, &active, &lastActive, &createdAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", err)
	}
	p.Active = active == 1
	p.CreatedAt = fromMS(createdAt)

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE principals SET last_active = ? WHERE username = ?`, ms(now), p.Username); err != nil {
		return nil, fmt.Errorf("touch principal: %w", err)
	}
	p.LastActive = &now
	return &p, nil
}

// ---- AlertStore ----

func (s *Store) AlertState(ctx context.Context, siteName string) (*domain.AlertState, error) {
	var (
		a      domain.AlertState
		up     int
		sentAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT site_name, last_up, last_sent_at FROM alert_states WHERE site_name = ?`, siteName).
		Scan(&a.SiteName, &up, &sentAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("alert state: %w", err)
	}
	a.LastUp = up == 1
	a.LastSentAt = timePtr(sentAt)
	return &a, nil
}

func (s *Store) SetAlertState(ctx context.Context, siteName string, up bool, sentAt time.Time) error {
	upI := 0
	if up {
		upI = 1
	}
	var sent any
	if !sentAt.IsZero() {
		sent = ms(sentAt)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO alert_states (site_name, last_up, last_sent_at)
VALUES (?, ?, ?)
ON CONFLICT(site_name) DO UPDATE SET
	last_up = excluded.last_up,
	last_sent_at = COALESCE(excluded.last_sent_at, alert_states.last_sent_at)`,
		siteName, upI, sent)
	if err != nil {
		return fmt.Errorf("set alert state: %w", err)
	}
	return nil
}
