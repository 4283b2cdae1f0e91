package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"go-inventory-predict/pkg/jwt"

	"github.com/gofiber/fiber/v2"
)

var secret = []byte("middleware-secret")

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Get("/open", RequireAuth(secret), func(c *fiber.Ctx) error {
		return c.SendString(Operator(c))
	})
	app.Get("/restock", RequireAuth(secret), RequireScope(jwt.ScopeRestock), func(c *fiber.Ctx) error {
		return c.SendStatus(204)
	})
	return app
}

func token(t *testing.T, scopes ...string) string {
	t.Helper()
	tok, err := jwt.GenerateToken(secret, "ops", scopes, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestRequireAuth(t *testing.T) {
	app := newApp(t)
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", 401},
		{"bad format", "Token abc", 401},
		{"bad token", "Bearer abc", 401},
		{"valid", "Bearer " + token(t), 200},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/open", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tc.want {
			t.Errorf("%s: status=%d want %d", tc.name, resp.StatusCode, tc.want)
		}
	}
}

func TestRequireScope(t *testing.T) {
	app := newApp(t)

	req := httptest.NewRequest("GET", "/restock", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, jwt.ScopeAggregatorRead))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 403 {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/restock", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, jwt.ScopeRestock))
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 204 {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	if _, err := RateLimit("lots"); err == nil {
		t.Fatal("expected invalid rate error")
	}

	limit, err := RateLimit("2-M")
	if err != nil {
		t.Fatal(err)
	}
	app := fiber.New()
	app.Get("/", limit, func(c *fiber.Ctx) error { return c.SendStatus(200) })

	want := []int{200, 200, 429}
	for i, code := range want {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != code {
			t.Fatalf("request %d: status=%d want %d", i, resp.StatusCode, code)
		}
		if resp.Header.Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("limit header=%q", resp.Header.Get("X-RateLimit-Limit"))
		}
	}
}
