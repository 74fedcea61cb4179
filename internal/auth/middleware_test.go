package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_DisabledPassesThrough(t *testing.T) {
	m := NewMiddleware("", nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", nil)
	rec := httptest.NewRecorder()
	m.Handler(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected pass-through when auth disabled, got %d", rec.Code)
	}
}

func TestMiddleware_ValidAPIKey(t *testing.T) {
	m := NewMiddleware("secret-key", nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", nil)
	req.Header.Set(APIKeyHeader, "secret-key")
	rec := httptest.NewRecorder()
	m.Handler(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for valid key, got %d", rec.Code)
	}
}

func TestMiddleware_InvalidAPIKey(t *testing.T) {
	m := NewMiddleware("secret-key", nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	rec := httptest.NewRecorder()
	m.Handler(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid key, got %d", rec.Code)
	}
}

func TestMiddleware_MissingCredentials(t *testing.T) {
	m := NewMiddleware("secret-key", nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", nil)
	rec := httptest.NewRecorder()
	m.Handler(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without credentials, got %d", rec.Code)
	}
}

func TestMiddleware_SkipsHealthEndpoints(t *testing.T) {
	m := NewMiddleware("secret-key", nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		m.Handler(okHandler()).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected %s to skip auth, got %d", path, rec.Code)
		}
	}
}

func TestMiddleware_ValidJWT(t *testing.T) {
	manager := NewJWTManager(DefaultJWTConfig("jwt-secret"))
	m := NewMiddleware("", manager)

	token, err := manager.GenerateToken("analyst")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	var gotClient string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClient, _ = ClientFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Handler(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec.Code)
	}
	if gotClient != "analyst" {
		t.Errorf("expected client 'analyst' in context, got %q", gotClient)
	}
}

func TestMiddleware_ExpiredJWT(t *testing.T) {
	cfg := DefaultJWTConfig("jwt-secret")
	cfg.Expiry = -time.Minute
	manager := NewJWTManager(cfg)
	m := NewMiddleware("", manager)

	token, err := manager.GenerateToken("analyst")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Handler(okHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for expired token, got %d", rec.Code)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewJWTManager(DefaultJWTConfig("secret-a"))
	verifier := NewJWTManager(DefaultJWTConfig("secret-b"))

	token, err := issuer.GenerateToken("analyst")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := verifier.ValidateToken(token); err == nil {
		t.Error("expected validation failure with wrong secret")
	}
}
