package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/imertz/greek-sites-monitor/internal/domain"
	"github.com/imertz/greek-sites-monitor/internal/httpapi/middleware"
	"github.com/imertz/greek-sites-monitor/internal/snapshot"
	"github.com/imertz/greek-sites-monitor/internal/store"
)

// Server exposes the monitoring API: agents pull due batches and push
// results, dashboards read the latest status, operators register sites
// and principals.
type Server struct {
	Logger     *zap.Logger
	Sites      store.SiteStore
	Results    store.ResultStore
	Principals store.PrincipalStore
	Snapshot   *snapshot.Writer

	BatchSize        int
	RateLimitPerMin  int
	AllowRemoteAdmin bool
}

func NewServer(l *zap.Logger, sites store.SiteStore, results store.ResultStore, principals store.PrincipalStore) *Server {
	return &Server{
		Logger:     l,
		Sites:      sites,
		Results:    results,
		Principals: principals,
		BatchSize:  store.DefaultPolicy().BatchSize,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Use(middleware.RateLimit(s.RateLimitPerMin))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoopbackOnly(s.AllowRemoteAdmin))
		r.Post("/api/users", s.handleCreateUser)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequirePrincipal(s.Principals, s.Logger))
		r.Get("/api/status", s.handleLatestStatus)
		r.Post("/api/status", s.handlePushResults)
		r.Get("/api/sites", s.handleListSites)
		r.Post("/api/sites", s.handleAddSites)
		r.Get("/api/sites/batch", s.handleNextBatch)
	})

	return r
}

type userPayload struct {
	Username string `json:"username"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var p userPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	principal, err := s.Principals.CreatePrincipal(r.Context(), p.Username)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "username already taken")
			return
		}
		s.Logger.Error("create_principal_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create user")
		return
	}

	s.Logger.Info("principal_created", zap.String("username", principal.Username))
	writeJSON(w, http.StatusCreated, map[string]string{
		"username": principal.Username,
		"apiKey":   principal.APIKey,
	})
}

// handlePushResults accepts either a single result object or an array,
// matching what agents of different vintages send. The whole batch is
// committed or nothing is.
func (s *Server) handlePushResults(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var results []domain.CheckResult
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(body, &results)
	} else {
		var one domain.CheckResult
		err = json.Unmarshal(body, &one)
		results = []domain.CheckResult{one}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	now := time.Now().UTC()
	for i := range results {
		if results[i].SiteName == "" {
			writeError(w, http.StatusBadRequest, "site_name is required")
			return
		}
		if results[i].Timestamp.IsZero() {
			results[i].Timestamp = now
		}
	}

	principal := middleware.PrincipalFrom(r.Context())
	if err := s.Results.RecordResults(r.Context(), results, principal.Username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "unknown site in batch")
			return
		}
		s.Logger.Error("record_results_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not record results")
		return
	}

	if s.Snapshot != nil {
		if err := s.Snapshot.Write(results); err != nil {
			s.Logger.Warn("snapshot_write_error", zap.Error(err))
		}
	}

	s.Logger.Info("results_recorded",
		zap.Int("count", len(results)),
		zap.String("checked_by", principal.Username),
	)
	writeJSON(w, http.StatusOK, map[string]int{"recorded": len(results)})
}

func (s *Server) handleLatestStatus(w http.ResponseWriter, r *http.Request) {
	latest, err := s.Results.LatestStatus(r.Context())
	if err != nil {
		s.Logger.Error("latest_status_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read status")
		return
	}
	if latest == nil {
		latest = []domain.CheckResult{}
	}
	writeJSON(w, http.StatusOK, latest)
}

// batchItem is the wire shape agents consume; it deliberately carries
// only what a probe needs.
type batchItem struct {
	SiteName     string `json:"site_name"`
	URL          string `json:"url"`
	Category     string `json:"category"`
	MaxRedirects int    `json:"max_redirects"`
}

func (s *Server) handleNextBatch(w http.ResponseWriter, r *http.Request) {
	sites, err := s.Sites.NextDueSites(r.Context(), s.BatchSize)
	if err != nil {
		s.Logger.Error("next_batch_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not select batch")
		return
	}

	items := make([]batchItem, 0, len(sites))
	for _, site := range sites {
		items = append(items, batchItem{
			SiteName:     site.Name,
			URL:          site.URL,
			Category:     site.Category,
			MaxRedirects: site.MaxRedirects,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.Sites.ListSites(r.Context())
	if err != nil {
		s.Logger.Error("list_sites_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list sites")
		return
	}
	if sites == nil {
		sites = []domain.Site{}
	}
	writeJSON(w, http.StatusOK, sites)
}

type siteInput struct {
	SiteName     string `json:"site_name"`
	URL          string `json:"url"`
	Category     string `json:"category"`
	MaxRedirects int    `json:"max_redirects"`
}

type addSitesPayload struct {
	Sites []siteInput `json:"sites"`
}

func (s *Server) handleAddSites(w http.ResponseWriter, r *http.Request) {
	var p addSitesPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || len(p.Sites) == 0 {
		writeError(w, http.StatusBadRequest, "sites list is required")
		return
	}

	now := time.Now().UTC()
	sites := make([]domain.Site, 0, len(p.Sites))
	for _, in := range p.Sites {
		if in.SiteName == "" || in.URL == "" {
			writeError(w, http.StatusBadRequest, "each site needs site_name and url")
			return
		}
		category := in.Category
		if category == "" {
			category = domain.CategoryOf(in.SiteName)
		}
		maxRedirects := in.MaxRedirects
		if maxRedirects <= 0 {
			maxRedirects = domain.DefaultMaxRedirects
		}
		sites = append(sites, domain.Site{
			Name:         in.SiteName,
			URL:          in.URL,
			Category:     category,
			Active:       true,
			MaxRedirects: maxRedirects,
			CreatedAt:    now,
		})
	}

	principal := middleware.PrincipalFrom(r.Context())
	added, err := s.Sites.AddSites(r.Context(), sites, principal.Username)
	if err != nil {
		s.Logger.Error("add_sites_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add sites")
		return
	}
	if added == nil {
		added = []domain.Site{}
	}

	s.Logger.Info("sites_added",
		zap.Int("requested", len(sites)),
		zap.Int("added", len(added)),
		zap.String("added_by", principal.Username),
	)
	writeJSON(w, http.StatusCreated, map[string]any{"added": added})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
