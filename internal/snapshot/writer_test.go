package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/imertz/greek-sites-monitor/internal/domain"
)

func TestWrite_RendersBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	w := NewWriter(path)

	code := 200
	rt := 0.123
	msg := "Connection refused"
	results := []domain.CheckResult{
		{
			SiteName: "gov.gr", URL: "https://www.gov.gr", Up: true,
			StatusCode: &code, ResponseTime: &rt,
			Timestamp: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		},
		{
			SiteName: "dei", URL: "https://www.dei.gr", Up: false,
			ErrorMessage: &msg,
			Timestamp:    time.Date(2025, 3, 10, 12, 0, 1, 0, time.UTC),
		},
	}
	if err := w.Write(results); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.LastUpdated.IsZero() || len(doc.Sites) != 2 {
		t.Fatalf("document wrong: %+v", doc)
	}
	if doc.Sites[0].Category != domain.CategoryGovernment {
		t.Fatalf("category not derived: %+v", doc.Sites[0])
	}
	if doc.Sites[1].IsUp || doc.Sites[1].Error == nil || *doc.Sites[1].Error != msg {
		t.Fatalf("down row wrong: %+v", doc.Sites[1])
	}
	if doc.Sites[1].StatusCode != nil || doc.Sites[1].ResponseTime != nil {
		t.Fatalf("nulls not preserved: %+v", doc.Sites[1])
	}
}

func TestWrite_ReplacesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	w := NewWriter(path)

	if err := w.Write([]domain.CheckResult{{SiteName: "a", URL: "https://a", Up: true}}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := w.Write([]domain.CheckResult{{SiteName: "b", URL: "https://b", Up: false}}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, _ := os.ReadFile(path)
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Sites) != 1 || doc.Sites[0].Name != "b" {
		t.Fatalf("snapshot not replaced: %+v", doc)
	}

	// no leftover temp files
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("stray files: %v", entries)
	}
}
