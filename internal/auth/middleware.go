package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader is the header checked for static API key authentication.
	APIKeyHeader = "X-API-Key"

	// clientContextKey is the context key for the authenticated client name.
	clientContextKey contextKey = "client"
)

// Middleware authenticates HTTP requests with either a static API key or a
// Bearer JWT. When neither credential type is configured it passes every
// request through (development mode).
type Middleware struct {
	apiKey     string
	jwtManager *JWTManager
	skipPaths  map[string]bool
}

// NewMiddleware creates an auth middleware. apiKey may be empty, jwtManager
// may be nil; configure at least one of them to enforce authentication.
func NewMiddleware(apiKey string, jwtManager *JWTManager) *Middleware {
	return &Middleware{
		apiKey:     apiKey,
		jwtManager: jwtManager,
		skipPaths: map[string]bool{
			"/healthz": true,
			"/readyz":  true,
		},
	}
}

// WithSkipPaths adds paths that bypass authentication.
func (m *Middleware) WithSkipPaths(paths ...string) *Middleware {
	for _, p := range paths {
		m.skipPaths[p] = true
	}
	return m
}

// Enabled reports whether any credential type is configured.
func (m *Middleware) Enabled() bool {
	return m.apiKey != "" || m.jwtManager != nil
}

// Handler returns the chi-compatible middleware function.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() || m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if m.apiKey != "" {
			if key := r.Header.Get(APIKeyHeader); key != "" {
				if key == m.apiKey {
					next.ServeHTTP(w, r.WithContext(withClient(r.Context(), "api-key")))
					return
				}
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}
		}

		if m.jwtManager != nil {
			if token := bearerToken(r); token != "" {
				claims, err := m.jwtManager.ValidateToken(token)
				if err != nil {
					http.Error(w, "invalid token", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(withClient(r.Context(), claims.Client)))
				return
			}
		}

		http.Error(w, "authentication required", http.StatusUnauthorized)
	})
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func withClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientContextKey, client)
}

// ClientFromContext returns the authenticated client name, if any.
func ClientFromContext(ctx context.Context) (string, bool) {
	client, ok := ctx.Value(clientContextKey).(string)
	return client, ok
}
