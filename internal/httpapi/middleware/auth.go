package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/imertz/greek-sites-monitor/internal/domain"
	"github.com/imertz/greek-sites-monitor/internal/store"
)

type principalCtxKey struct{}

// PrincipalFrom returns the authenticated principal stashed by
// RequirePrincipal, or nil on unauthenticated routes.
func PrincipalFrom(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(principalCtxKey{}).(*domain.Principal)
	return p
}

func readKey(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return strings.TrimSpace(k)
	}
	return ""
}

// RequirePrincipal authenticates the caller's API key against the
// principal registry. A missing or unknown key is a 401; it never
// reaches the handler, so no partial processing can happen.
func RequirePrincipal(principals store.PrincipalStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := readKey(r)
			if key == "" {
				unauthorized(w)
				return
			}
			p, err := principals.PrincipalByKey(r.Context(), key)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					logger.Warn("auth_lookup_error", zap.Error(err))
				}
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), principalCtxKey{}, p)))
		})
	}
}

// LoopbackOnly gates administrative routes to local callers unless the
// deployment explicitly opens them up.
func LoopbackOnly(allowRemote bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if allowRemote {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			ip := net.ParseIP(host)
			if ip == nil || !ip.IsLoopback() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
