package utils

import (
	"errors"

	"campusmarket/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Fiber locals keys written by the auth middleware.
const (
	ClaimsKey = "claims"
	UserIDKey = "userID"
)

var ErrNoClaims = errors.New("no authenticated claims on request")

// SetUserClaims attaches verified claims to the request.
func SetUserClaims(c *fiber.Ctx, claims *models.UserClaims) {
	c.Locals(ClaimsKey, claims)
	c.Locals(UserIDKey, claims.UserID)
}

// GetUserClaims returns the claims set by SetUserClaims, or ErrNoClaims.
func GetUserClaims(c *fiber.Ctx) (*models.UserClaims, error) {
	claims, ok := c.Locals(ClaimsKey).(*models.UserClaims)
	if !ok || claims == nil || claims.UserID == "" {
		return nil, ErrNoClaims
	}
	return claims, nil
}
