package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imertz/greek-sites-monitor/internal/domain"
	"github.com/imertz/greek-sites-monitor/internal/store"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	s := New(store.DefaultPolicy())
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }
	return s, &now
}

func addSite(t *testing.T, s *Store, name, url string) {
	t.Helper()
	added, err := s.AddSites(context.Background(), []domain.Site{{Name: name, URL: url}}, "tester")
	if err != nil {
		t.Fatalf("AddSites(%s): %v", name, err)
	}
	if len(added) != 1 {
		t.Fatalf("AddSites(%s): want 1 added, got %d", name, len(added))
	}
}

func recordDown(t *testing.T, s *Store, name string, at time.Time) {
	t.Helper()
	msg := "Connection refused"
	err := s.RecordResults(context.Background(), []domain.CheckResult{{
		SiteName:     name,
		Up:           false,
		ErrorMessage: &msg,
		Timestamp:    at,
	}}, "tester")
	if err != nil {
		t.Fatalf("RecordResults(%s): %v", name, err)
	}
}

func recordUp(t *testing.T, s *Store, name string, at time.Time) {
	t.Helper()
	code := 200
	rt := 0.42
	err := s.RecordResults(context.Background(), []domain.CheckResult{{
		SiteName:     name,
		StatusCode:   &code,
		ResponseTime: &rt,
		Up:           true,
		Timestamp:    at,
	}}, "tester")
	if err != nil {
		t.Fatalf("RecordResults(%s): %v", name, err)
	}
}

func TestAddSites_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	added, err := s.AddSites(ctx, []domain.Site{
		{Name: "gov.gr", URL: "https://www.gov.gr"},
		{Name: "emy", URL: "http://www.emy.gr"},
	}, "tester")
	if err != nil || len(added) != 2 {
		t.Fatalf("first add: %v, added=%d", err, len(added))
	}
	if added[0].Category != domain.CategoryGovernment {
		t.Fatalf("category not derived: %+v", added[0])
	}

	// re-add is a silent no-op, not an error
	again, err := s.AddSites(ctx, []domain.Site{{Name: "gov.gr", URL: "https://dup"}}, "tester")
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("re-add should return no newly-added sites, got %d", len(again))
	}
	sites, _ := s.ListSites(ctx)
	if len(sites) != 2 {
		t.Fatalf("registry duplicated: %d sites", len(sites))
	}
}

func TestNextDueSites_TierOrdering(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()
	t0 := *now

	// "A": checked 2 minutes ago, latest result down -> tier 1
	addSite(t, s, "A", "https://a.example")
	*now = t0.Add(-2 * time.Minute)
	if _, err := s.NextDueSites(ctx, 5); err != nil { // stamps A at t0-2m
		t.Fatalf("prime A: %v", err)
	}
	recordDown(t, s, "A", t0.Add(-2*time.Minute))

	// "B": never checked -> tier 2
	*now = t0
	addSite(t, s, "B", "https://b.example")

	batch, err := s.NextDueSites(ctx, 5)
	if err != nil {
		t.Fatalf("NextDueSites: %v", err)
	}
	if len(batch) != 2 || batch[0].Name != "A" || batch[1].Name != "B" {
		t.Fatalf("want [A B], got %+v", batch)
	}
}

func TestNextDueSites_LimitAndInactive(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, n := range []string{"s1", "s2", "s3", "s4"} {
		addSite(t, s, n, "https://"+n)
	}
	if err := s.DeactivateSite(ctx, "s4"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	batch, err := s.NextDueSites(ctx, 2)
	if err != nil {
		t.Fatalf("NextDueSites: %v", err)
	}
	if len(batch) > 2 {
		t.Fatalf("limit violated: %d", len(batch))
	}
	for _, site := range batch {
		if site.Name == "s4" {
			t.Fatalf("inactive site selected")
		}
	}
}

func TestNextDueSites_NoOverlapOnSuccessiveCalls(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, n := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
		addSite(t, s, n, "https://"+n)
	}

	first, _ := s.NextDueSites(ctx, 3)
	second, _ := s.NextDueSites(ctx, 3)

	seen := map[string]bool{}
	for _, site := range first {
		seen[site.Name] = true
	}
	for _, site := range second {
		if seen[site.Name] {
			t.Fatalf("site %q handed out twice", site.Name)
		}
	}
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("want 3+3, got %d+%d", len(first), len(second))
	}
}

func TestCountDueSites_ZeroAfterFullSweep(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, n := range []string{"s1", "s2", "s3"} {
		addSite(t, s, n, "https://"+n)
	}
	if n, _ := s.CountDueSites(ctx); n != 3 {
		t.Fatalf("want 3 due, got %d", n)
	}

	batch, _ := s.NextDueSites(ctx, 10)
	if len(batch) != 3 {
		t.Fatalf("sweep incomplete: %d", len(batch))
	}
	for _, site := range batch {
		recordUp(t, s, site.Name, s.Now())
	}

	if n, _ := s.CountDueSites(ctx); n != 0 {
		t.Fatalf("want 0 due right after a full sweep, got %d", n)
	}
}

func TestDownSiteBecomesDueAfterDownRecheck(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()
	t0 := *now

	addSite(t, s, "A", "https://a.example")
	if _, err := s.NextDueSites(ctx, 5); err != nil { // stamp at t0
		t.Fatalf("prime: %v", err)
	}
	recordDown(t, s, "A", t0)

	// 30s later: inside the down grace window, not yet eligible
	*now = t0.Add(30 * time.Second)
	if n, _ := s.CountDueSites(ctx); n != 0 {
		t.Fatalf("due too early: %d", n)
	}

	// 61s later: tier-1 recovery check
	*now = t0.Add(61 * time.Second)
	batch, _ := s.NextDueSites(ctx, 5)
	if len(batch) != 1 || batch[0].Name != "A" {
		t.Fatalf("want recovery batch [A], got %+v", batch)
	}
}

func TestRecordResults_AtomicOnInvalidReference(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	addSite(t, s, "A", "https://a.example")

	err := s.RecordResults(ctx, []domain.CheckResult{
		{SiteName: "A", Up: true, Timestamp: s.Now()},
		{SiteName: "ghost", Up: true, Timestamp: s.Now()},
	}, "tester")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	rows, _ := s.LatestStatus(ctx)
	if len(rows) != 0 {
		t.Fatalf("partial batch committed: %+v", rows)
	}
}

func TestLatestStatus_OneRowMaxTimestamp(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()
	t0 := *now

	addSite(t, s, "A", "https://a.example")
	recordDown(t, s, "A", t0.Add(-2*time.Minute))
	recordUp(t, s, "A", t0)

	rows, err := s.LatestStatus(ctx)
	if err != nil {
		t.Fatalf("LatestStatus: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("want one row per site, got %d", len(rows))
	}
	r := rows[0]
	if !r.Up || r.StatusCode == nil || *r.StatusCode != 200 {
		t.Fatalf("latest row is not the newest result: %+v", r)
	}
	if r.URL != "https://a.example" || r.Category == "" {
		t.Fatalf("missing site join fields: %+v", r)
	}
	if !r.Timestamp.Equal(t0) {
		t.Fatalf("timestamp mismatch: %v", r.Timestamp)
	}
}

func TestLatestStatus_TimestampTieBreaksOnInsertionOrder(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()
	addSite(t, s, "A", "https://a.example")

	ts := *now
	recordDown(t, s, "A", ts)
	recordUp(t, s, "A", ts) // same timestamp, inserted later

	rows, _ := s.LatestStatus(ctx)
	if len(rows) != 1 || !rows[0].Up {
		t.Fatalf("tie not broken by insertion order: %+v", rows)
	}
}

func TestRoundTrip_AddCheckRecordReadd(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	addSite(t, s, "gov.gr", "https://www.gov.gr")

	batch, _ := s.NextDueSites(ctx, 5)
	if len(batch) != 1 || batch[0].Name != "gov.gr" {
		t.Fatalf("due batch wrong: %+v", batch)
	}
	recordUp(t, s, "gov.gr", s.Now())

	// identical re-add is a no-op
	again, err := s.AddSites(ctx, []domain.Site{{Name: "gov.gr", URL: "https://www.gov.gr"}}, "tester")
	if err != nil || len(again) != 0 {
		t.Fatalf("re-add: err=%v added=%d", err, len(again))
	}
	rows, _ := s.LatestStatus(ctx)
	if len(rows) != 1 {
		t.Fatalf("latest lists site %d times", len(rows))
	}
}

func TestPrincipals(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePrincipal(ctx, "monitor-client-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.APIKey == "" {
		t.Fatalf("no api key issued")
	}

	if _, err := s.CreatePrincipal(ctx, "monitor-client-1"); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}

	got, err := s.PrincipalByKey(ctx, p.APIKey)
	if err != nil {
		t.Fatalf("by key: %v", err)
	}
	if got.Username != "monitor-client-1" || got.LastActive == nil {
		t.Fatalf("principal lookup wrong: %+v", got)
	}

	if _, err := s.PrincipalByKey(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown key, got %v", err)
	}
}

func TestAlertState(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()

	if a, err := s.AlertState(ctx, "A"); err != nil || a != nil {
		t.Fatalf("empty state: %v %v", a, err)
	}
	if err := s.SetAlertState(ctx, "A", false, *now); err != nil {
		t.Fatalf("set: %v", err)
	}
	a, _ := s.AlertState(ctx, "A")
	if a == nil || a.LastUp || a.LastSentAt == nil {
		t.Fatalf("state wrong: %+v", a)
	}

	// zero sentAt keeps the previous send time
	if err := s.SetAlertState(ctx, "A", true, time.Time{}); err != nil {
		t.Fatalf("set 2: %v", err)
	}
	a, _ = s.AlertState(ctx, "A")
	if a == nil || !a.LastUp || a.LastSentAt == nil {
		t.Fatalf("state after recovery wrong: %+v", a)
	}
}
