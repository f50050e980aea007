package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	api "github.com/fleetver/fleetver/api/v1"
	"github.com/fleetver/fleetver/internal/auth"
	"github.com/fleetver/fleetver/internal/config"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/fleetver/fleetver/internal/store/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newGateFixture(t *testing.T, apiToken string) (store.Store, *auth.Gate, string) {
	t.Helper()
	ctx := context.Background()
	cfg := config.NewDefault()
	cfg.Database.File = filepath.Join(t.TempDir(), "test.db")
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	db, err := store.InitDB(cfg, log)
	require.NoError(t, err)
	s := store.NewStore(db, log)
	require.NoError(t, s.InitialMigration())
	t.Cleanup(func() { _ = s.Close() })

	userID, err := s.User().Create(ctx, &model.User{
		Username:     "admin",
		PasswordSalt: "salt",
		PasswordHash: "hash",
		Role:         auth.RoleAdmin,
	})
	require.NoError(t, err)
	token, err := auth.NewSessionToken()
	require.NoError(t, err)
	require.NoError(t, s.Session().Create(ctx, userID, token, time.Hour))

	return s, auth.NewGate(s, apiToken, log), token
}

func sessionRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	if token != "" {
		r.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})
	}
	return r
}

func TestAuthenticateSessionCookie(t *testing.T) {
	_, gate, token := newGateFixture(t, "")

	user, gotToken := gate.Authenticate(sessionRequest(token))
	require.NotNil(t, user)
	require.Equal(t, "admin", user.Username)
	require.Equal(t, auth.RoleAdmin, user.Role)
	require.Equal(t, token, gotToken)

	user, _ = gate.Authenticate(sessionRequest("bogus"))
	require.Nil(t, user)

	user, _ = gate.Authenticate(sessionRequest(""))
	require.Nil(t, user)
}

func TestAuthenticateAPIToken(t *testing.T) {
	_, gate, _ := newGateFixture(t, "static-secret")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	r.Header.Set("X-Api-Token", "static-secret")
	user, token := gate.Authenticate(r)
	require.NotNil(t, user)
	require.Equal(t, auth.APITokenUsername, user.Username)
	require.Equal(t, auth.RoleAdmin, user.Role)
	require.Empty(t, token)

	r.Header.Set("X-Api-Token", "wrong")
	user, _ = gate.Authenticate(r)
	require.Nil(t, user)
}

func TestAuthenticateCachesAndInvalidates(t *testing.T) {
	s, gate, token := newGateFixture(t, "")
	ctx := context.Background()

	user, _ := gate.Authenticate(sessionRequest(token))
	require.NotNil(t, user)

	// The cache keeps answering after the session row is gone...
	require.NoError(t, s.Session().Delete(ctx, token))
	user, _ = gate.Authenticate(sessionRequest(token))
	require.NotNil(t, user)

	// ...until logout invalidates the token.
	gate.Invalidate(token)
	user, _ = gate.Authenticate(sessionRequest(token))
	require.Nil(t, user)
}

func TestRequireLoginAndAdmin(t *testing.T) {
	s, gate, adminToken := newGateFixture(t, "")
	ctx := context.Background()

	viewerID, err := s.User().Create(ctx, &model.User{
		Username:     "viewer",
		PasswordSalt: "salt",
		PasswordHash: "hash",
		Role:         auth.RoleViewer,
	})
	require.NoError(t, err)
	viewerToken, err := auth.NewSessionToken()
	require.NoError(t, err)
	require.NoError(t, s.Session().Create(ctx, viewerID, viewerToken, time.Hour))

	var gotUser api.SessionUser
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.UserFromContext(r.Context())
		require.True(t, ok)
		gotUser = user
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		middleware func(http.Handler) http.Handler
		token      string
		wantStatus int
	}{
		{"login with session", gate.RequireLogin, adminToken, http.StatusNoContent},
		{"login anonymous", gate.RequireLogin, "", http.StatusUnauthorized},
		{"admin as admin", gate.RequireAdmin, adminToken, http.StatusNoContent},
		{"admin as viewer", gate.RequireAdmin, viewerToken, http.StatusForbidden},
		{"admin anonymous", gate.RequireAdmin, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.middleware(next).ServeHTTP(w, sessionRequest(tt.token))
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusNoContent {
				require.NotEmpty(t, gotUser.Username)
			}
		})
	}
}
