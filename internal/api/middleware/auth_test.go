package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/storefront/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key", 15*time.Minute, 7*24*time.Hour)
}

func claimsCapturingHandler(captured **auth.Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := r.Context().Value(UserContextKey).(*auth.Claims); ok {
			*captured = claims
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	jwtService := newTestJWTService()
	token, _, err := jwtService.GenerateAccessToken("user-123", "test@example.com", "customer")
	require.NoError(t, err)

	t.Run("authorization header", func(t *testing.T) {
		var captured *auth.Claims
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		AuthMiddleware(jwtService)(claimsCapturingHandler(&captured)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, captured)
		assert.Equal(t, "user-123", captured.UserID)
		assert.Equal(t, "test@example.com", captured.Email)
	})

	t.Run("cookie", func(t *testing.T) {
		var captured *auth.Claims
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
		rec := httptest.NewRecorder()

		AuthMiddleware(jwtService)(claimsCapturingHandler(&captured)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, captured)
		assert.Equal(t, "user-123", captured.UserID)
	})

	t.Run("cookie wins over header", func(t *testing.T) {
		cookieToken, _, _ := jwtService.GenerateAccessToken("cookie-user", "c@example.com", "customer")
		var captured *auth.Claims
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: cookieToken})
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		AuthMiddleware(jwtService)(claimsCapturingHandler(&captured)).ServeHTTP(rec, req)

		require.NotNil(t, captured)
		assert.Equal(t, "cookie-user", captured.UserID)
	})
}

func TestAuthMiddlewareRejections(t *testing.T) {
	jwtService := newTestJWTService()
	otherService := auth.NewJWTService("other-secret", 15*time.Minute, time.Hour)
	foreignToken, _, _ := otherService.GenerateAccessToken("user-123", "t@example.com", "customer")

	shortService := auth.NewJWTService("test-secret-key", time.Millisecond, time.Hour)
	expiredToken, _, _ := shortService.GenerateAccessToken("user-123", "t@example.com", "customer")
	time.Sleep(10 * time.Millisecond)

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no token", func(r *http.Request) {}},
		{"garbage token", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer not-a-jwt")
		}},
		{"wrong signature", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+foreignToken)
		}},
		{"expired token", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+expiredToken)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			AuthMiddleware(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			})).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	jwtService := newTestJWTService()

	t.Run("valid token attaches claims", func(t *testing.T) {
		token, _, _ := jwtService.GenerateAccessToken("user-123", "t@example.com", "customer")
		var captured *auth.Claims
		req := httptest.NewRequest(http.MethodGet, "/optional", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		OptionalAuthMiddleware(jwtService)(claimsCapturingHandler(&captured)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, captured)
	})

	t.Run("missing or bad token passes through anonymously", func(t *testing.T) {
		for _, token := range []string{"", "garbage"} {
			var captured *auth.Claims
			req := httptest.NewRequest(http.MethodGet, "/optional", nil)
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rec := httptest.NewRecorder()

			OptionalAuthMiddleware(jwtService)(claimsCapturingHandler(&captured)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Nil(t, captured)
		}
	})
}

func TestSessionMiddleware(t *testing.T) {
	var captured string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetSessionID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("header", func(t *testing.T) {
		captured = ""
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set("X-Session-ID", "sess-abc")
		SessionMiddleware(handler).ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "sess-abc", captured)
	})

	t.Run("cookie fallback", func(t *testing.T) {
		captured = ""
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-cookie"})
		SessionMiddleware(handler).ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "sess-cookie", captured)
	})

	t.Run("absent", func(t *testing.T) {
		captured = "sentinel"
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		SessionMiddleware(handler).ServeHTTP(httptest.NewRecorder(), req)
		assert.Empty(t, captured)
	})
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	withClaims := func(role string) *http.Request {
		claims := &auth.Claims{UserID: "user-123", Role: role}
		ctx := context.WithValue(context.Background(), UserContextKey, claims)
		return httptest.NewRequest(http.MethodGet, "/admin", nil).WithContext(ctx)
	}

	t.Run("matching role", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireRole("admin")(ok).ServeHTTP(rec, withClaims("admin"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong role", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireRole("admin")(ok).ServeHTTP(rec, withClaims("customer"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no claims", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireRole("admin")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetUserID(t *testing.T) {
	claims := &auth.Claims{UserID: "user-123"}
	ctx := context.WithValue(context.Background(), UserContextKey, claims)
	assert.Equal(t, "user-123", GetUserID(ctx))
	assert.Empty(t, GetUserID(context.Background()))
}
