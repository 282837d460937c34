package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/imertz/greek-sites-monitor/internal/domain"
)

func TestNextBatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/sites/batch" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "k123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"site_name":"gov.gr","url":"https://www.gov.gr","category":"government","max_redirects":5},
			{"site_name":"emy","url":"http://www.emy.gr","category":"weather"}
		]`)
	}))
	defer ts.Close()

	c := New(ts.URL, "k123", 5*time.Second)
	sites, err := c.NextBatch(context.Background())
	if err != nil {
		t.Fatalf("NextBatch: %v", err)
	}
	if len(sites) != 2 || sites[0].Name != "gov.gr" || sites[0].Category != "government" {
		t.Fatalf("batch wrong: %+v", sites)
	}
	if sites[1].MaxRedirects != 0 {
		t.Fatalf("absent override must stay zero: %+v", sites[1])
	}
}

func TestNextBatch_Unauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"unauthorized"}`)
	}))
	defer ts.Close()

	c := New(ts.URL, "bad", 5*time.Second)
	if _, err := c.NextBatch(context.Background()); err == nil {
		t.Fatalf("want error on 401")
	} else if !strings.Contains(err.Error(), "401") {
		t.Fatalf("status missing from error: %v", err)
	}
}

func TestRecord(t *testing.T) {
	var got []domain.CheckResult
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/status" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := New(ts.URL, "k123", 5*time.Second)
	code := 200
	err := c.Record(context.Background(), []domain.CheckResult{
		{SiteName: "gov.gr", URL: "https://www.gov.gr", Up: true, StatusCode: &code, Timestamp: time.Now().UTC()},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(got) != 1 || got[0].SiteName != "gov.gr" || !got[0].Up {
		t.Fatalf("payload wrong: %+v", got)
	}
}

func TestRecord_EmptyIsNoRequest(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	c := New(ts.URL, "k", 5*time.Second)
	if err := c.Record(context.Background(), nil); err != nil {
		t.Fatalf("Record(nil): %v", err)
	}
	if called {
		t.Fatalf("empty result set must not hit the server")
	}
}

func TestRecord_ServerFailureSurfaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"storage failure"}`, http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := New(ts.URL, "k", 5*time.Second)
	if err := c.Record(context.Background(), []domain.CheckResult{{SiteName: "a"}}); err == nil {
		t.Fatalf("want error on 500")
	}
}
