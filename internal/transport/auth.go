package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

type contextKey string

const callerKey contextKey = "transport_caller"

// AuthMiddleware enforces either a bearer JWT or a static X-API-Key header
// on /admin/run. There is a single shared operator API key rather than a
// per-user lookup, since tsgraph has no multi-tenant account model.
type AuthMiddleware struct {
	jwtSecret []byte
	apiKey    string
}

// NewAuthMiddleware builds an AuthMiddleware. Either jwtSecret or apiKey
// may be empty, disabling that auth path; if both are empty every request
// is rejected.
func NewAuthMiddleware(jwtSecret, apiKey string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: []byte(jwtSecret), apiKey: apiKey}
}

// ExtractCaller authenticates r via API key first, then JWT, returning a
// caller identifier (the fixed string "api-key", or the JWT's "sub" claim).
func (a *AuthMiddleware) ExtractCaller(r *http.Request) (string, error) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		if a.apiKey == "" {
			return "", fmt.Errorf("API key auth not configured")
		}
		if key != a.apiKey {
			return "", fmt.Errorf("invalid API key")
		}
		return "api-key", nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header or X-API-Key")
	}
	if len(a.jwtSecret) == 0 {
		return "", fmt.Errorf("JWT auth not configured")
	}

	tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid JWT: %w", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid JWT claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("JWT missing sub claim")
	}
	return sub, nil
}

// Middleware authenticates the request and stores the caller in context.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "OPTIONS" {
			next.ServeHTTP(w, r)
			return
		}
		caller, err := a.ExtractCaller(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		ctx := context.WithValue(r.Context(), callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(callerKey).(string)
	return v
}
