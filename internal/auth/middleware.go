package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Token scopes understood by the internal API.
const (
	ScopeRead  = "sla:read"
	ScopeWrite = "sla:write"
	ScopeAll   = "sla:*"
)

// Principal represents the authenticated calling service.
type Principal struct {
	Service string
	Claims  *Claims
}

// Actor converts the principal into the actor recorded in audit entries.
func (p *Principal) Actor() events.Actor {
	id := p.Service
	return events.Actor{Type: domain.ActorTypeService, ID: &id}
}

// AuthMiddleware validates bearer tokens issued to internal services.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{Service: claims.Service, Claims: claims})
	return c.Next()
}

// RequireScope ensures the authenticated service holds scope.
func RequireScope(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Claims.HasScope(scope) {
			return apperrors.NewForbidden("missing scope " + scope)
		}
		return c.Next()
	}
}

// PrincipalFromContext retrieves the authenticated service.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
