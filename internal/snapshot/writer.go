// Package snapshot maintains the derived status document a static page
// reads. It is a side-channel read model, never the source of truth.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/imertz/greek-sites-monitor/internal/domain"
)

// Document is the on-disk shape of status.json.
type Document struct {
	LastUpdated time.Time  `json:"lastUpdated"`
	Sites       []SiteView `json:"sites"`
}

// SiteView is one rendered row of the snapshot.
type SiteView struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	IsUp         bool      `json:"isUp"`
	ResponseTime *float64  `json:"responseTime"`
	StatusCode   *int      `json:"statusCode"`
	Error        *string   `json:"error"`
	LastChecked  time.Time `json:"lastChecked"`
	Category     string    `json:"category"`
}

// Writer renders the batch just recorded into the snapshot file. Writes
// are temp-file-then-rename so a reader never observes a torn document.
type Writer struct {
	mu   sync.Mutex
	path string
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write replaces the snapshot with the given results.
func (w *Writer) Write(results []domain.CheckResult) error {
	doc := Document{
		LastUpdated: time.Now().UTC(),
		Sites:       make([]SiteView, 0, len(results)),
	}
	for _, r := range results {
		category := r.Category
		if category == "" {
			category = domain.CategoryOf(r.SiteName)
		}
		doc.Sites = append(doc.Sites, SiteView{
			Name:         r.SiteName,
			URL:          r.URL,
			IsUp:         r.Up,
			ResponseTime: r.ResponseTime,
			StatusCode:   r.StatusCode,
			Error:        r.ErrorMessage,
			LastChecked:  r.Timestamp,
			Category:     category,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".status-*.json")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}
