package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	memoryStorage "github.com/gofiber/storage/memory/v2"

	u "outfit2pdf/internal/utils"
)

func TestTokenRateLimitMiddleware(t *testing.T) {
	token := "test-token"
	limit := 2

	u.LoadTokensFromMap(map[string]int{token: limit})

	u.AppConfig.RateLimiter.Interval = time.Hour

	rateLimitStore = memoryStorage.New()
	tokenLimiterCache.Lock()
	tokenLimiterCache.handlers = nil
	tokenLimiterCache.Unlock()

	app := fiber.New()
	app.Use(keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: "api_key",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			return u.ValidateToken(key), nil
		},
	}))
	app.Use(rateLimitMiddleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	makeReq := func() *http.Request {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", token)
		return req
	}

	for i := 0; i < limit; i++ {
		resp, err := app.Test(makeReq(), -1)
		if err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200 but got %d", resp.StatusCode)
		}
	}

	resp, err := app.Test(makeReq(), -1)
	if err != nil {
		t.Fatalf("exceed request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 but got %d", resp.StatusCode)
	}
}

func TestUserRateLimitMiddleware(t *testing.T) {
	cfg := minimalConfig()
	cfg.RateLimiter.UserLimit = 1
	cfg.RateLimiter.Interval = time.Hour

	rateLimitStore = memoryStorage.New()

	app := fiber.New()
	app.Use(userRateLimitMiddleware(cfg))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil), -1)
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestUserRateLimitMiddleware_SkipsAuthenticatedClients(t *testing.T) {
	cfg := minimalConfig()
	cfg.RateLimiter.UserLimit = 1
	cfg.RateLimiter.Interval = time.Hour

	rateLimitStore = memoryStorage.New()

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("api_key", "some-token")
		return c.Next()
	})
	app.Use(userRateLimitMiddleware(cfg))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
		if err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("token-authenticated requests must bypass the user limiter, got %d", resp.StatusCode)
		}
	}
}
