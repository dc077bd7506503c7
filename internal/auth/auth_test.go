package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "helpdesk", time.Minute)

	token, expiresAt, err := tm.GenerateToken("intake", ScopeWrite)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "intake", claims.Service)
	assert.True(t, claims.HasScope(ScopeWrite))
	assert.False(t, claims.HasScope(ScopeRead))
}

func TestParseTokenRejects(t *testing.T) {
	tm := NewTokenManager("secret", "helpdesk", time.Minute)
	valid, _, err := tm.GenerateToken("intake")
	require.NoError(t, err)

	otherSecret, _, err := NewTokenManager("other", "helpdesk", time.Minute).GenerateToken("intake")
	require.NoError(t, err)
	otherIssuer, _, err := NewTokenManager("secret", "elsewhere", time.Minute).GenerateToken("intake")
	require.NoError(t, err)

	expiredManager := NewTokenManager("secret", "helpdesk", time.Minute)
	expiredManager.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := expiredManager.GenerateToken("intake")
	require.NoError(t, err)

	tests := map[string]string{
		"wrong secret": otherSecret,
		"wrong issuer": otherIssuer,
		"expired":      expired,
		"garbage":      "not-a-token",
		"truncated":    valid[:len(valid)-4],
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tm.ParseToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestGenerateTokenRequiresService(t *testing.T) {
	_, _, err := NewTokenManager("secret", "", 0).GenerateToken("")
	assert.Error(t, err)
}

func TestScopeAllGrantsEverything(t *testing.T) {
	claims := &Claims{Service: "ops", Scopes: []string{ScopeAll}}
	assert.True(t, claims.HasScope(ScopeRead))
	assert.True(t, claims.HasScope(ScopeWrite))
}

func newProtectedApp(tm *TokenManager, scope string) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Get("/guarded", NewAuthMiddleware(tm).Handle, RequireScope(scope), func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		actor := principal.Actor()
		if actor.Type != domain.ActorTypeService || actor.ID == nil {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendString(*actor.ID)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", "helpdesk", time.Minute)
	writer, _, err := tm.GenerateToken("intake", ScopeWrite)
	require.NoError(t, err)
	reader, _, err := tm.GenerateToken("dashboard", ScopeRead)
	require.NoError(t, err)

	app := newProtectedApp(tm, ScopeWrite)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "no header", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "missing scope", header: "Bearer " + reader, status: http.StatusForbidden},
		{name: "granted", header: "Bearer " + writer, status: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
