package handlers

import (
	"errors"

	"campusmarket/internal/models"
	"campusmarket/internal/services/auth"
	"campusmarket/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService auth.Service
}

func NewAuthHandler(authService auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login signs an operator in and returns an access token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input loginRequest
	if ok, err := parseBody(c, &input); !ok {
		return err
	}

	op, token, err := h.authService.Login(c.UserContext(), input.Email, input.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return response.Error(c, fiber.StatusUnauthorized, "Invalid email or password")
	}
	if err != nil {
		return response.ServerError(c, "Authentication failed")
	}

	return c.JSON(fiber.Map{
		"access_token": token,
		"operator": fiber.Map{
			"id":          op.ID,
			"email":       op.Email,
			"name":        op.Name,
			"role":        op.Role,
			"permissions": models.GetDefaultPermissions(op.Role),
		},
	})
}

// Logout revokes every token the operator holds.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	if err := h.authService.Logout(c.UserContext(), claims.UserID); err != nil {
		return response.ServerError(c, "Logout failed")
	}
	return response.Success(c, "Logged out", nil)
}

// Me echoes the authenticated identity.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if claims == nil {
		return err
	}
	return c.JSON(fiber.Map{
		"user_id":     claims.UserID,
		"email":       claims.Email,
		"role":        claims.Role,
		"permissions": claims.Permissions,
	})
}
