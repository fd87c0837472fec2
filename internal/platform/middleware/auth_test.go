package middleware_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "carbonledger/internal/jwt_token"
	"carbonledger/internal/platform/middleware"
	id "carbonledger/pkg/domain"
	"carbonledger/pkg/requestcontext"
	"carbonledger/pkg/testutil"
)

func TestRequireAuth(t *testing.T) {
	jwtService := jwttoken.NewJWTService("test-signing-key", "test-issuer", "test-audience")
	validator := jwttoken.NewJWTServiceAdapter(jwtService)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var gotCaller id.Identity
	protected := middleware.RequireAuth(validator, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotCaller = requestcontext.Caller(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

	testutil.Given(t, "a valid bearer token", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken("did:key:operator", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/facilities", nil)
		req = testutil.WithRequestID(req, "req-42")
		req.Header.Set("Authorization", "Bearer "+token)

		testutil.Then(t, "the caller identity reaches the handler", func(t *testing.T) {
			w := httptest.NewRecorder()
			protected.ServeHTTP(w, req)
			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, id.Identity("did:key:operator"), gotCaller)
		})
	})

	testutil.Given(t, "no authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/facilities", nil)

		testutil.Then(t, "the request is rejected with 401", func(t *testing.T) {
			w := httptest.NewRecorder()
			protected.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t,
				`{"error":"unauthorized","error_description":"Missing or invalid Authorization header"}`,
				w.Body.String())
		})
	})

	testutil.Given(t, "a garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/facilities", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")

		testutil.Then(t, "the request is rejected with 401", func(t *testing.T) {
			w := httptest.NewRecorder()
			protected.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	})

	testutil.Given(t, "a token signed with another key", func(t *testing.T) {
		other := jwttoken.NewJWTService("other-key", "test-issuer", "test-audience")
		token, err := other.GenerateAccessToken("did:key:operator", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/facilities", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		testutil.Then(t, "the request is rejected with 401", func(t *testing.T) {
			w := httptest.NewRecorder()
			protected.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	})
}

func TestRequestContext(t *testing.T) {
	var gotRequestID string
	var gotTime time.Time
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = requestcontext.RequestID(r.Context())
		gotTime = requestcontext.Now(r.Context())
	})
	stamped := middleware.RequestContext(next)

	t.Run("generates an id when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		stamped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/registry/total", nil))

		assert.NotEmpty(t, gotRequestID)
		assert.Equal(t, gotRequestID, w.Header().Get("X-Request-ID"))
		assert.WithinDuration(t, time.Now(), gotTime, time.Minute)
	})

	t.Run("honors an inbound id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/registry/total", nil)
		req.Header.Set("X-Request-ID", "upstream-7")
		w := httptest.NewRecorder()
		stamped.ServeHTTP(w, req)

		assert.Equal(t, "upstream-7", gotRequestID)
		assert.Equal(t, "upstream-7", w.Header().Get("X-Request-ID"))
	})
}
