package handlers

import (
	"campusmarket/internal/models"
	"campusmarket/internal/utils"
	"campusmarket/internal/utils/response"
	"campusmarket/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
)

// parseBody decodes and validates a JSON body. ok is false once an error
// response has been written.
func parseBody(c *fiber.Ctx, out interface{}) (bool, error) {
	if err := c.BodyParser(out); err != nil {
		return false, response.BadRequest(c, "Invalid request body")
	}
	if fields := validation.Struct(out); fields != nil {
		return false, response.ValidationErrors(c, fields)
	}
	return true, nil
}

func claimsOf(c *fiber.Ctx) (*models.UserClaims, error) {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return nil, response.Unauthorized(c)
	}
	return claims, nil
}
