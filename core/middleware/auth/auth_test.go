package auth_test

import (
	"net/http/httptest"
	"testing"

	"vitals-manager/core/middleware/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(apiKey string) *fiber.App {
	app := fiber.New()
	app.Use(auth.New(auth.Config{ApiKey: apiKey}))
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	return app
}

func TestAuth(t *testing.T) {
	t.Run("missing key is rejected", func(t *testing.T) {
		app := testApp("secret")
		resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong key is rejected", func(t *testing.T) {
		app := testApp("secret")
		req := httptest.NewRequest("GET", "/ping", nil)
		req.Header.Set("X-API-Key", "nope")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("header key is accepted", func(t *testing.T) {
		app := testApp("secret")
		req := httptest.NewRequest("GET", "/ping", nil)
		req.Header.Set("X-API-Key", "secret")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("bearer token is accepted", func(t *testing.T) {
		app := testApp("secret")
		req := httptest.NewRequest("GET", "/ping", nil)
		req.Header.Set("Authorization", "Bearer secret")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("empty config disables the check", func(t *testing.T) {
		app := testApp("")
		resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}
