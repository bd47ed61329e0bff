package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "bizreg/internal/jwt_token"
)

func TestRequireAdmin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := jwttoken.NewJWTService("secret", "bizreg")
	withScope, err := tokens.GenerateAdminToken("ops", []string{jwttoken.ScopeImport}, time.Hour)
	require.NoError(t, err)
	withoutScope, err := tokens.GenerateAdminToken("ops", []string{"registry:read"}, time.Hour)
	require.NoError(t, err)

	guarded := RequireAdmin("static-token", tokens, jwttoken.ScopeImport, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{name: "static token", headers: map[string]string{"X-Admin-Token": "static-token"}, want: http.StatusNoContent},
		{name: "wrong static token", headers: map[string]string{"X-Admin-Token": "nope"}, want: http.StatusUnauthorized},
		{name: "scoped bearer", headers: map[string]string{"Authorization": "Bearer " + withScope}, want: http.StatusNoContent},
		{name: "bearer without scope", headers: map[string]string{"Authorization": "Bearer " + withoutScope}, want: http.StatusForbidden},
		{name: "garbage bearer", headers: map[string]string{"Authorization": "Bearer abc"}, want: http.StatusUnauthorized},
		{name: "no credentials", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/import", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireAdminDisabledCredentials(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guarded := RequireAdmin("", nil, jwttoken.ScopeImport, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	req := httptest.NewRequest(http.MethodPost, "/admin/import", nil)
	req.Header.Set("X-Admin-Token", "")
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdminSetsActor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := jwttoken.NewJWTService("secret", "bizreg")
	bearer, err := tokens.GenerateAdminToken("ops@example.com", []string{jwttoken.ScopeImport}, time.Hour)
	require.NoError(t, err)

	var actor string
	guarded := RequireAdmin("static-token", tokens, jwttoken.ScopeImport, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor = GetActor(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

	req := httptest.NewRequest(http.MethodPost, "/admin/import", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	guarded.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "ops@example.com", actor)

	req = httptest.NewRequest(http.MethodPost, "/admin/import", nil)
	req.Header.Set("X-Admin-Token", "static-token")
	guarded.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, StaticTokenActor, actor)
}
