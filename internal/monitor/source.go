package monitor

import (
	"context"
	"fmt"

	"github.com/imertz/greek-sites-monitor/internal/domain"
	"github.com/imertz/greek-sites-monitor/internal/snapshot"
	"github.com/imertz/greek-sites-monitor/internal/store"
)

// LocalSource feeds the cycle straight from the store, for the
// single-process deployment. Recording also refreshes the status
// snapshot, the same side effect the API's result push has.
type LocalSource struct {
	Sites     store.SiteStore
	Results   store.ResultStore
	Snapshot  *snapshot.Writer
	Principal string // attribution for locally recorded results
	BatchSize int
}

var _ Batcher = (*LocalSource)(nil)

func (s *LocalSource) NextBatch(ctx context.Context) ([]domain.Site, error) {
	// cheap existence probe first, so an idle tick costs one count query
	n, err := s.Sites.CountDueSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("count due sites: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.Sites.NextDueSites(ctx, s.BatchSize)
}

func (s *LocalSource) Record(ctx context.Context, results []domain.CheckResult) error {
	if len(results) == 0 {
		return nil
	}
	if err := s.Results.RecordResults(ctx, results, s.Principal); err != nil {
		return fmt.Errorf("record results: %w", err)
	}
	if s.Snapshot != nil {
		if err := s.Snapshot.Write(results); err != nil {
			// the history committed; a stale snapshot is re-rendered next tick
			return fmt.Errorf("refresh snapshot: %w", err)
		}
	}
	return nil
}
