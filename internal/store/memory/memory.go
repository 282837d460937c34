package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imertz/greek-sites-monitor/internal/domain"
	"github.com/imertz/greek-sites-monitor/internal/store"
)

var (
	_ store.SiteStore      = (*Store)(nil)
	_ store.ResultStore    = (*Store)(nil)
	_ store.PrincipalStore = (*Store)(nil)
	_ store.AlertStore     = (*Store)(nil)
)

type storedResult struct {
	domain.CheckResult
	seq int64 // insertion order, tie-breaker for equal timestamps
}

// Store is the in-memory adapter. It backs tests and runs the server
// without a DATABASE_URL; everything is lost on restart.
type Store struct {
	mu         sync.Mutex
	policy     store.Policy
	sites      map[string]*domain.Site
	order      []string // site insertion order, keeps listings stable
	results    []storedResult
	principals map[string]*domain.Principal // by username
	byKey      map[string]string            // api key -> username
	alerts     map[string]*domain.AlertState
	seq        int64

	// Now is the clock used for stamping; tests override it.
	Now func() time.Time
}

func New(policy store.Policy) *Store {
	return &Store{
		policy:     policy,
		sites:      make(map[string]*domain.Site),
		principals: make(map[string]*domain.Principal),
		byKey:      make(map[string]string),
		alerts:     make(map[string]*domain.AlertState),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// ---- SiteStore ----

func (m *Store) AddSites(ctx context.Context, sites []domain.Site, addedBy string) ([]domain.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	var added []domain.Site
	for _, s := range sites {
		if s.Name == "" || s.URL == "" {
			continue
		}
		if _, exists := m.sites[s.Name]; exists {
			continue // idempotent re-add
		}
		cp := s
		cp.Active = true
		cp.LastChecked = nil
		cp.AddedBy = addedBy
		cp.CreatedAt = now
		if cp.Category == "" {
			cp.Category = domain.CategoryOf(cp.Name)
		}
		if cp.MaxRedirects <= 0 {
			cp.MaxRedirects = domain.DefaultMaxRedirects
		}
		m.sites[cp.Name] = &cp
		m.order = append(m.order, cp.Name)
		added = append(added, cp)
	}
	return added, nil
}

// NextDueSites selects and stamps under one lock acquisition, which is the
// in-memory equivalent of the SQL adapters' select+update transaction.
func (m *Store) NextDueSites(ctx context.Context, limit int) ([]domain.Site, error) {
	if limit <= 0 {
		limit = m.policy.BatchSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	latest := m.latestUpLocked()

	type candidate struct {
		site *domain.Site
		tier int
	}
	var due []candidate
	for _, name := range m.order {
		s := m.sites[name]
		tier, ok := m.policy.Due(s, latest[name], now)
		if !ok {
			continue
		}
		due = append(due, candidate{site: s, tier: tier})
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].tier != due[j].tier {
			return due[i].tier < due[j].tier
		}
		li, lj := due[i].site.LastChecked, due[j].site.LastChecked
		if li == nil || lj == nil {
			return li == nil && lj != nil
		}
		return li.Before(*lj)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]domain.Site, 0, len(due))
	for _, c := range due {
		stamp := now
		c.site.LastChecked = &stamp
		cp := *c.site
		out = append(out, cp)
	}
	return out, nil
}

func (m *Store) CountDueSites(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	latest := m.latestUpLocked()
	n := 0
	for name, s := range m.sites {
		if _, ok := m.policy.Due(s, latest[name], now); ok {
			n++
		}
	}
	return n, nil
}

func (m *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Site, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, *m.sites[name])
	}
	return out, nil
}

func (m *Store) DeactivateSite(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sites[name]
	if !ok {
		return store.ErrNotFound
	}
	s.Active = false
	return nil
}

// latestUpLocked collapses the history to the most recent up/down flag per
// site. Caller holds the lock.
func (m *Store) latestUpLocked() map[string]*bool {
	type top struct {
		up  bool
		ts  time.Time
		seq int64
	}
	best := make(map[string]top)
	for _, r := range m.results {
		cur, ok := best[r.SiteName]
		if !ok || r.Timestamp.After(cur.ts) || (r.Timestamp.Equal(cur.ts) && r.seq > cur.seq) {
			best[r.SiteName] = top{up: r.Up, ts: r.Timestamp, seq: r.seq}
		}
	}
	out := make(map[string]*bool, len(best))
	for name, t := range best {
		up := t.up
		out[name] = &up
	}
	return out
}

// ---- ResultStore ----

func (m *Store) RecordResults(ctx context.Context, results []domain.CheckResult, checkedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// validate the whole batch before touching anything: all or nothing
	for _, r := range results {
		if _, ok := m.sites[r.SiteName]; !ok {
			return store.ErrNotFound
		}
	}
	now := m.Now()
	for _, r := range results {
		if r.Timestamp.IsZero() {
			r.Timestamp = now
		}
		r.CheckedBy = checkedBy
		m.seq++
		m.results = append(m.results, storedResult{CheckResult: r, seq: m.seq})
	}
	return nil
}

func (m *Store) LatestStatus(ctx context.Context) ([]domain.CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	best := make(map[string]storedResult)
	for _, r := range m.results {
		cur, ok := best[r.SiteName]
		if !ok || r.Timestamp.After(cur.Timestamp) ||
			(r.Timestamp.Equal(cur.Timestamp) && r.seq > cur.seq) {
			best[r.SiteName] = r
		}
	}

	out := make([]domain.CheckResult, 0, len(best))
	for _, name := range m.order {
		r, ok := best[name]
		if !ok {
			continue
		}
		cr := r.CheckResult
		if s := m.sites[name]; s != nil {
			cr.URL = s.URL
			cr.Category = s.Category
		}
		out = append(out, cr)
	}
	return out, nil
}

// ---- PrincipalStore ----

func (m *Store) CreatePrincipal(ctx context.Context, username string) (*domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.principals[username]; exists {
		return nil, store.ErrDuplicate
	}
	p := &domain.Principal{
		Username:  username,
		APIKey:    uuid.NewString(),
		Active:    true,
		CreatedAt: m.Now(),
	}
	m.principals[username] = p
	m.byKey[p.APIKey] = username
	cp := *p
	return &cp, nil
}

func (m *Store) PrincipalByKey(ctx context.Context, apiKey string) (*domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	username, ok := m.byKey[apiKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	p := m.principals[username]
	if !p.Active {
		return nil, store.ErrNotFound
	}
	now := m.Now()
	p.LastActive = &now
	cp := *p
	return &cp, nil
}

// ---- AlertStore ----

func (m *Store) AlertState(ctx context.Context, siteName string) (*domain.AlertState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[siteName]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *Store) SetAlertState(ctx context.Context, siteName string, up bool, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := &domain.AlertState{SiteName: siteName, LastUp: up}
	if !sentAt.IsZero() {
		t := sentAt
		a.LastSentAt = &t
	} else if prev, ok := m.alerts[siteName]; ok {
		a.LastSentAt = prev.LastSentAt
	}
	m.alerts[siteName] = a
	return nil
}
