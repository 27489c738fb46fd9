package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"srwa/pkg/requestcontext"
)

type stubValidator map[string]*JWTClaims

func (s stubValidator) ValidateToken(token string) (*JWTClaims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func chain(roles ...string) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator := stubValidator{
		"admin-token":    {Subject: "alice", Role: "admin"},
		"operator-token": {Subject: "bob", Role: "operator"},
	}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(requestcontext.Actor(r.Context())))
	})
	return RequireAuth(validator, logger)(RequireRole(logger, roles...)(final))
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/admin/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	h := chain("admin")

	t.Run("missing token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	})
	t.Run("invalid token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(h, "nope").Code)
	})
	t.Run("wrong role", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, serve(h, "operator-token").Code)
	})
	t.Run("admin passes with actor in context", func(t *testing.T) {
		rec := serve(h, "admin-token")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", rec.Body.String())
	})
}
