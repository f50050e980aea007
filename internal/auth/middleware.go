package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/jellydator/ttlcache/v3"
	"github.com/sirupsen/logrus"
)

const (
	// SessionCookieName is the login cookie the browser carries.
	SessionCookieName = "vm_session"

	RoleAdmin  = "admin"
	RoleViewer = "viewer"

	// APITokenUsername identifies requests authenticated by the static API
	// token rather than a session.
	APITokenUsername = "api-token"

	sessionCacheTTL = time.Minute
)

type contextKey string

const userContextKey contextKey = "fleetver-session-user"

// UserFromContext returns the authenticated user the gate attached.
func UserFromContext(ctx context.Context) (api.SessionUser, bool) {
	user, ok := ctx.Value(userContextKey).(api.SessionUser)
	return user, ok
}

// Gate authenticates requests. A configured API token short-circuits to a
// virtual admin; otherwise the session cookie is resolved through the
// store behind a one-minute cache so dashboards do not hammer the DB.
type Gate struct {
	store    store.Store
	apiToken string
	cache    *ttlcache.Cache[string, api.SessionUser]
	log      logrus.FieldLogger
}

func NewGate(st store.Store, apiToken string, log logrus.FieldLogger) *Gate {
	cache := ttlcache.New[string, api.SessionUser](
		ttlcache.WithTTL[string, api.SessionUser](sessionCacheTTL),
	)
	go cache.Start()
	return &Gate{
		store:    st,
		apiToken: apiToken,
		cache:    cache,
		log:      log,
	}
}

// Authenticate resolves the request's credentials. The returned token is
// the session token when a cookie authenticated the request, empty for the
// API token path.
func (g *Gate) Authenticate(r *http.Request) (*api.SessionUser, string) {
	if g.apiToken != "" {
		presented := r.Header.Get("X-Api-Token")
		if presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(g.apiToken)) == 1 {
			return &api.SessionUser{Username: APITokenUsername, Role: RoleAdmin}, ""
		}
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, ""
	}
	token := cookie.Value

	if item := g.cache.Get(token); item != nil {
		user := item.Value()
		return &user, token
	}
	user, err := g.store.Session().Resolve(r.Context(), token)
	if err != nil {
		return nil, ""
	}
	sessionUser := user.ToSessionUser()
	g.cache.Set(token, sessionUser, ttlcache.DefaultTTL)
	return &sessionUser, token
}

// Invalidate drops a session token from the cache. Called on logout so a
// deleted session stops authenticating immediately.
func (g *Gate) Invalidate(token string) {
	if token != "" {
		g.cache.Delete(token)
	}
}

// RequireLogin rejects unauthenticated requests with 401.
func (g *Gate) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := g.Authenticate(r)
		if user == nil {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, *user)))
	})
}

// RequireAdmin additionally rejects non-admin users with 403.
func (g *Gate) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := g.Authenticate(r)
		if user == nil {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if user.Role != RoleAdmin {
			writeAuthError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, *user)))
	})
}

func writeAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
