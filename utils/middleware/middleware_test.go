package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockoutFor(t *testing.T) {
	cases := map[int64]time.Duration{
		1:  0,
		4:  0,
		5:  2 * time.Minute,
		9:  2 * time.Minute,
		10: time.Hour,
		24: time.Hour,
		25: 24 * time.Hour,
		99: 24 * time.Hour,
	}
	for attempts, want := range cases {
		assert.Equal(t, want, LockoutFor(attempts), "attempts=%d", attempts)
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)

	token, ok = BearerToken("bearer   xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer a b"} {
		_, ok := BearerToken(header)
		assert.False(t, ok, "header %q", header)
	}
}

func TestCorsConfig(t *testing.T) {
	wildcard := corsConfig("*")
	assert.Equal(t, "*", wildcard.AllowOrigins)
	assert.False(t, wildcard.AllowCredentials)

	empty := corsConfig(" , ")
	assert.Equal(t, "*", empty.AllowOrigins)

	explicit := corsConfig("https://app.example.com, https://admin.example.com")
	assert.Equal(t, "https://app.example.com,https://admin.example.com", explicit.AllowOrigins)
	assert.True(t, explicit.AllowCredentials)
}

func TestRateLimit(t *testing.T) {
	app := fiber.New()
	app.Get("/", RateLimit(2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestBruteForceProtection_NilCacheIsPermissive(t *testing.T) {
	bf := NewBruteForceProtection(nil)

	app := fiber.New()
	app.Post("/login", bf.CheckAndRecordAttempt(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/login", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	assert.NoError(t, bf.RecordFailedAttempt(t.Context(), "1.2.3.4", "a@b.c"))
	count, err := bf.GetAttemptCount(t.Context(), "1.2.3.4")
	require.NoError(t, err)
	assert.Zero(t, count)
}
