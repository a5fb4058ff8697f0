package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, secret string, sub, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func runJWT(t *testing.T, authHeader string, next echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := JWTAuth(testSecret)(next)(c); err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}
	return rec
}

func TestJWTAuthInjectsClaims(t *testing.T) {
	token := mintToken(t, testSecret, "42", RoleCustomer)
	var gotSub, gotRole any
	rec := runJWT(t, "Bearer "+token, func(c echo.Context) error {
		gotSub = c.Get("user_id")
		gotRole = c.Get("role")
		return c.NoContent(http.StatusOK)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotSub != "42" {
		t.Errorf("user_id = %v, want 42", gotSub)
	}
	if gotRole != RoleCustomer {
		t.Errorf("role = %v, want %s", gotRole, RoleCustomer)
	}
}

func TestJWTAuthRejects(t *testing.T) {
	reject := func(c echo.Context) error {
		t.Fatal("next handler must not run")
		return nil
	}
	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + mintToken(t, "other-secret", "42", RoleCustomer)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := runJWT(t, tc.header, reject)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	run := func(role any) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if role != nil {
			c.Set("role", role)
		}
		if err := RequireRole(RoleMerchant)(ok)(c); err != nil {
			t.Fatalf("middleware returned error: %v", err)
		}
		return rec
	}

	if rec := run(RoleMerchant); rec.Code != http.StatusOK {
		t.Errorf("merchant: status = %d, want 200", rec.Code)
	}
	if rec := run(RoleCustomer); rec.Code != http.StatusForbidden {
		t.Errorf("customer: status = %d, want 403", rec.Code)
	}
	if rec := run(nil); rec.Code != http.StatusForbidden {
		t.Errorf("no role: status = %d, want 403", rec.Code)
	}
}
