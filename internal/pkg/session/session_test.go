package session

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The login flow writes auth keys and the cached plan on one session
// instance with a single Save. Everything set before that Save must be
// readable through GetSessionValue on the next request.
func TestSingleSaveKeepsAllValues(t *testing.T) {
	sessionStore = session.New(session.Config{
		KeyLookup: "cookie:session_id",
	})

	app := fiber.New()
	app.Get("/login", func(c *fiber.Ctx) error {
		sess, err := sessionStore.Get(c)
		require.NoError(t, err)
		sess.Set("AUTH", true)
		sess.Set("USER_ID", uint(7))
		sess.Set("user_plan", "BASIC")
		return sess.Save()
	})
	app.Get("/plan", func(c *fiber.Ctx) error {
		return c.SendString(GetSessionValue(c, "user_plan"))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/login", nil))
	require.NoError(t, err)
	setCookie := resp.Header.Get("Set-Cookie")
	require.NotEmpty(t, setCookie)
	cookie := strings.Split(setCookie, ";")[0]

	req := httptest.NewRequest("GET", "/plan", nil)
	req.Header.Set("Cookie", cookie)
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "BASIC", string(body))
}
