package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"concierge/pkg/auth"
	"concierge/pkg/client"
	"concierge/pkg/config"
	"concierge/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routes func(*httprouter.Router)

func (f routes) RegisterRoutes(r *httprouter.Router) { f(r) }

func newTestApplication(t *testing.T) *Application {
	t.Helper()
	cfg := &config.Config{
		Port:              "0",
		JWTSecret:         "app-secret",
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
		RequestTimeout:    time.Second,
		IdempotencyTTL:    time.Minute,
		MaxRequestSize:    1024,
		ReadTimeout:       time.Second,
		WriteTimeout:      time.Second,
		IdleTimeout:       time.Second,
		ShutdownTimeout:   time.Second,
		Log:               logger.Discard(),
		Client:            client.NewClient(),
	}

	health := routes(func(r *httprouter.Router) {
		r.GET("/health", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) { w.WriteHeader(http.StatusOK) })
	})
	api := routes(func(r *httprouter.Router) {
		r.GET("/api/v1/requests", func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
			id, ok := auth.FromContext(req.Context())
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(id.Subject))
		})
	})

	a := NewApplication()
	a.SetApp(cfg, health, api, auth.NewJWTResolver(cfg.JWTSecret))
	t.Cleanup(func() {
		a.idempotencyStore.Stop()
		a.rateLimiter.Stop()
	})
	return a
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestApplication_HealthSkipsAuth(t *testing.T) {
	a := newTestApplication(t)
	assert.Equal(t, http.StatusOK, get(a.Handler(), "/health", "").Code)
}

func TestApplication_APIRequiresToken(t *testing.T) {
	a := newTestApplication(t)
	assert.Equal(t, http.StatusUnauthorized, get(a.Handler(), "/api/v1/requests", "").Code)

	token, err := auth.IssueToken("app-secret", "owner-1", []string{"est-a"}, time.Hour)
	require.NoError(t, err)

	rec := get(a.Handler(), "/api/v1/requests", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner-1", rec.Body.String())
}

func TestApplication_RateLimitsPerIdentity(t *testing.T) {
	a := newTestApplication(t)
	token, err := auth.IssueToken("app-secret", "owner-1", []string{"est-a"}, time.Hour)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, get(a.Handler(), "/api/v1/requests", token).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(a.Handler(), "/api/v1/requests", token).Code)

	other, err := auth.IssueToken("app-secret", "owner-2", []string{"est-b"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(a.Handler(), "/api/v1/requests", other).Code)
}
