package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_server/pkg/apperr"
)

func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(Recover(), RequestID())
	return app
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestErrorHandlerEnvelope(t *testing.T) {
	app := newTestApp()
	app.Get("/app", func(c *fiber.Ctx) error {
		return apperr.InvalidRequest("no text or files provided")
	})
	app.Get("/fiber", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "too big")
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return errors.New("kaboom")
	})
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("oops")
	})

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{path: "/app", status: 400, code: apperr.CodeInvalidRequest},
		{path: "/fiber", status: 413, code: apperr.CodePayloadTooBig},
		{path: "/plain", status: 500, code: apperr.CodeInternalError},
		{path: "/panic", status: 500, code: apperr.CodeInternalError},
		{path: "/missing", status: 404, code: apperr.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("X-Request-ID", "req-123")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decodeError(t, resp)
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, "req-123", body.RequestID)
			assert.NotEmpty(t, body.Timestamp)
		})
	}
}

func TestRequestIDGenerated(t *testing.T) {
	app := newTestApp()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(RequestIDLocal).(string))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Len(t, string(body), 36)
	assert.Equal(t, string(body), resp.Header.Get("X-Request-ID"))
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTAuth(t *testing.T) {
	const secret = "test-secret"
	app := newTestApp()
	app.Use(JWTAuth(secret))
	app.Get("/", func(c *fiber.Ctx) error {
		subject, _ := c.Locals(SubjectLocal).(string)
		return c.SendString(subject)
	})

	valid := signToken(t, secret, jwt.MapClaims{"sub": "ops-team", "exp": time.Now().Add(time.Hour).Unix()})
	expired := signToken(t, secret, jwt.MapClaims{"sub": "ops-team", "exp": time.Now().Add(-time.Hour).Unix()})
	wrongKey := signToken(t, "other", jwt.MapClaims{"sub": "ops-team"})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid", header: "Bearer " + valid, status: 200},
		{name: "missing", header: "", status: 401},
		{name: "expired", header: "Bearer " + expired, status: 401},
		{name: "wrong key", header: "Bearer " + wrongKey, status: 401},
		{name: "not bearer", header: "Basic abc", status: 401},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == 200 {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, "ops-team", string(body))
			}
		})
	}
}

func TestJWTAuthDisabledWithoutSecret(t *testing.T) {
	app := newTestApp()
	app.Use(JWTAuth(""))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(204) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	app := newTestApp()
	app.Use(rl.Handler())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(204) })

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, 204, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, apperr.CodeRateLimited, decodeError(t, resp).Error.Code)
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	defer rl.Stop()
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	ok, _, _ := rl.allow("1.2.3.4")
	assert.True(t, ok)
	ok, _, _ = rl.allow("1.2.3.4")
	assert.False(t, ok)
	ok, _, _ = rl.allow("5.6.7.8")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, remaining, _ := rl.allow("1.2.3.4")
	assert.True(t, ok)
	assert.Zero(t, remaining)

	rl.cleanup()
	assert.Len(t, rl.requests, 1)
}

func TestRequireContentType(t *testing.T) {
	app := newTestApp()
	app.Post("/", RequireContentType(fiber.MIMEMultipartForm), func(c *fiber.Ctx) error { return c.SendStatus(204) })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
}

func TestNoStore(t *testing.T) {
	app := newTestApp()
	app.Use(NoStore("/api"))
	app.Get("/api/x", func(c *fiber.Ctx) error { return c.SendStatus(204) })
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(204) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/x", nil))
	require.NoError(t, err)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Cache-Control"))
}
