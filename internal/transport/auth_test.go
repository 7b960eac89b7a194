package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestExtractCaller_JWT(t *testing.T) {
	secret := "super-secret-jwt-token-with-at-least-32-characters-long"
	claims := jwt.MapClaims{
		"sub": "operator-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}

	auth := NewAuthMiddleware(secret, "")
	req := httptest.NewRequest("POST", "/admin/run", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)

	caller, err := auth.ExtractCaller(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller != "operator-1" {
		t.Errorf("expected operator-1, got %s", caller)
	}
}

func TestExtractCaller_ExpiredJWT(t *testing.T) {
	secret := "super-secret-jwt-token-with-at-least-32-characters-long"
	claims := jwt.MapClaims{"sub": "operator-1", "exp": time.Now().Add(-time.Hour).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, _ := token.SignedString([]byte(secret))

	auth := NewAuthMiddleware(secret, "")
	req := httptest.NewRequest("POST", "/admin/run", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)

	if _, err := auth.ExtractCaller(req); err == nil {
		t.Fatal("expected error for expired JWT")
	}
}

func TestExtractCaller_APIKey(t *testing.T) {
	auth := NewAuthMiddleware("", "op-key-123")
	req := httptest.NewRequest("POST", "/admin/run", nil)
	req.Header.Set("X-API-Key", "op-key-123")

	caller, err := auth.ExtractCaller(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller != "api-key" {
		t.Errorf("expected api-key, got %s", caller)
	}
}

func TestExtractCaller_WrongAPIKey(t *testing.T) {
	auth := NewAuthMiddleware("", "op-key-123")
	req := httptest.NewRequest("POST", "/admin/run", nil)
	req.Header.Set("X-API-Key", "wrong")

	if _, err := auth.ExtractCaller(req); err == nil {
		t.Fatal("expected error for wrong API key")
	}
}

func TestExtractCaller_Missing(t *testing.T) {
	auth := NewAuthMiddleware("secret", "op-key-123")
	req := httptest.NewRequest("POST", "/admin/run", nil)

	if _, err := auth.ExtractCaller(req); err == nil {
		t.Fatal("expected error when no credentials supplied")
	}
}

func TestMiddleware_RejectsUnauthenticated(t *testing.T) {
	auth := NewAuthMiddleware("secret", "op-key-123")
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/admin/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
