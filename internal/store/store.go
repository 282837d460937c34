package store

import (
	"context"
	"errors"
	"time"

	"github.com/imertz/greek-sites-monitor/internal/domain"
)

var (
	// ErrDuplicate is returned when a unique constraint is violated
	// (principal usernames; site adds report duplicates by omission instead).
	ErrDuplicate = errors.New("duplicate")
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// Policy carries the scheduling knobs shared by every adapter.
type Policy struct {
	BatchSize   int           // max sites handed out per selection
	DownRecheck time.Duration // re-verify cadence for sites currently down
	UpRecheck   time.Duration // routine cadence for everything else
}

// DefaultPolicy mirrors the deployment defaults: batches of 5, down sites
// re-verified after a minute, healthy sites after five.
func DefaultPolicy() Policy {
	return Policy{
		BatchSize:   5,
		DownRecheck: time.Minute,
		UpRecheck:   5 * time.Minute,
	}
}

// Due reports whether a site is eligible at instant now, and if so which
// priority tier it lands in (1 = recovery, 2 = routine). latestUp is the
// site's most recent recorded state; nil when the site has no history.
// This is the one copy of the eligibility rule; the SQL adapters encode
// the same predicate in their selection queries.
func (p Policy) Due(s *domain.Site, latestUp *bool, now time.Time) (int, bool) {
	if !s.Active {
		return 0, false
	}
	if latestUp != nil && !*latestUp &&
		s.LastChecked != nil && !s.LastChecked.After(now.Add(-p.DownRecheck)) {
		return 1, true
	}
	if s.LastChecked == nil || !s.LastChecked.After(now.Add(-p.UpRecheck)) {
		return 2, true
	}
	return 0, false
}

// Ports (interfaces) — swap in any DB adapter later.

// SiteStore owns the registry of monitored sites and the due-site
// selection. NextDueSites must stamp last_checked on the returned sites
// atomically with the selection, so overlapping callers never receive the
// same site twice inside an eligibility window.
type SiteStore interface {
	AddSites(ctx context.Context, sites []domain.Site, addedBy string) ([]domain.Site, error)
	NextDueSites(ctx context.Context, limit int) ([]domain.Site, error)
	CountDueSites(ctx context.Context) (int, error)
	ListSites(ctx context.Context) ([]domain.Site, error)
	DeactivateSite(ctx context.Context, name string) error
}

// ResultStore owns the append-only check history and its latest-per-site
// collapse. RecordResults commits the whole batch or nothing.
type ResultStore interface {
	RecordResults(ctx context.Context, results []domain.CheckResult, checkedBy string) error
	LatestStatus(ctx context.Context) ([]domain.CheckResult, error)
}

// PrincipalStore owns API credentials. PrincipalByKey returns ErrNotFound
// for unknown or inactive keys and touches last_active on success.
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, username string) (*domain.Principal, error)
	PrincipalByKey(ctx context.Context, apiKey string) (*domain.Principal, error)
}

// AlertStore persists per-site alerter state between scans.
type AlertStore interface {
	// AlertState returns nil, nil when there is no record yet.
	AlertState(ctx context.Context, siteName string) (*domain.AlertState, error)
	// SetAlertState upserts the record. A zero sentAt stores NULL.
	SetAlertState(ctx context.Context, siteName string, up bool, sentAt time.Time) error
}
