package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func protectedEcho(signer *Signer, extra ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	g := e.Group("/api", Middleware(signer))
	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, RoleFromContext(c.Request().Context()))
	}
	g.GET("/ping", handler, extra...)
	return e
}

func TestMiddleware_ValidToken(t *testing.T) {
	signer := NewSigner("test-secret-0123456789", time.Hour, nil)
	e := protectedEcho(signer)

	token, _ := signer.Issue("u1", "asha@clinic.in", RoleReceptionist)
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != RoleReceptionist {
		t.Errorf("expected role on context, got %q", rec.Body.String())
	}
}

func TestMiddleware_MissingHeader(t *testing.T) {
	signer := NewSigner("test-secret-0123456789", time.Hour, nil)
	e := protectedEcho(signer)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_MalformedHeader(t *testing.T) {
	signer := NewSigner("test-secret-0123456789", time.Hour, nil)
	e := protectedEcho(signer)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole_Allows(t *testing.T) {
	signer := NewSigner("test-secret-0123456789", time.Hour, nil)
	e := protectedEcho(signer, RequireRole(RoleDoctor))

	token, _ := signer.Issue("u2", "dr.rao@clinic.in", RoleDoctor)
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Forbids(t *testing.T) {
	signer := NewSigner("test-secret-0123456789", time.Hour, nil)
	e := protectedEcho(signer, RequireRole(RoleDoctor))

	token, _ := signer.Issue("u1", "asha@clinic.in", RoleReceptionist)
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
