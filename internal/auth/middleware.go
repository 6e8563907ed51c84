package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// FromContext returns the resolved identity, or nil for anonymous
// requests.
func FromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok {
		return id
	}
	return nil
}

// WithIdentity attaches an identity to the context; exported for
// handler tests.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Middleware holds the token verifier; a nil verifier means no issuer
// is configured, so every caller stays anonymous and protected routes
// are denied.
type Middleware struct {
	verifier *Verifier
}

func NewMiddleware(v *Verifier) *Middleware {
	return &Middleware{verifier: v}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// Optional resolves an identity when a valid bearer token is present
// and otherwise lets the request through anonymously. Booking stays
// open to the public.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.verifier != nil {
			if token := bearerToken(r); token != "" {
				if id, err := m.verifier.Verify(token); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), id))
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Required rejects requests without a valid bearer token.
func (m *Middleware) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.verifier == nil {
			deny(w, http.StatusUnauthorized, "authentication is not configured")
			return
		}
		token := bearerToken(r)
		if token == "" {
			deny(w, http.StatusUnauthorized, "not authorized to access this route")
			return
		}
		id, err := m.verifier.Verify(token)
		if err != nil {
			deny(w, http.StatusUnauthorized, "not authorized to access this route")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// AdminOnly is Required plus the admin realm role.
func (m *Middleware) AdminOnly(next http.Handler) http.Handler {
	return m.Required(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if id == nil || !id.IsAdmin() {
			deny(w, http.StatusForbidden, "access denied, admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func deny(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
