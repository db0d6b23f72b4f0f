// Package middleware provides HTTP middleware for the ledger API: bearer
// token authentication, operator gating and audit request metadata.
package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"campusmarket/internal/models"
	"campusmarket/internal/services/audit"
	"campusmarket/internal/services/auth"
	"campusmarket/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware handles JWT token validation and user authentication.
type AuthMiddleware struct {
	authService auth.Service
	logger      *slog.Logger
}

func NewAuthMiddleware(authService auth.Service, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		authService: authService,
		logger:      logger,
	}
}

// Handler validates the bearer token and stores the claims in the request
// context.
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

	claims, err := m.authService.Authenticate(c.UserContext(), tokenString)
	switch {
	case errors.Is(err, auth.ErrSessionExpired):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "session expired"})
	case errors.Is(err, utils.ErrInvalidToken):
		m.logger.Debug("token rejected", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	case err != nil:
		m.logger.Error("token validation failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not validate token"})
	}

	utils.SetUserClaims(c, claims)
	return c.Next()
}

// AdminAuthMiddleware lets only operator tokens through.
func AdminAuthMiddleware(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid claims"})
	}
	if !claims.IsAdmin() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Insufficient permissions"})
	}
	return c.Next()
}

// HasPermission returns a middleware that checks for a specific permission.
func HasPermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := utils.GetUserClaims(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}
		if claims.Role == models.RoleAdmin || claims.HasPermission(permission) {
			return c.Next()
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Insufficient permissions"})
	}
}

// RequestMeta copies the caller's address and user agent into the request
// context so audit entries written while serving it carry them.
func RequestMeta(c *fiber.Ctx) error {
	ctx := audit.WithRequestMeta(c.UserContext(), audit.RequestMeta{
		IPAddress: c.IP(),
		UserAgent: string(c.Request().Header.UserAgent()),
	})
	c.SetUserContext(ctx)
	return c.Next()
}
