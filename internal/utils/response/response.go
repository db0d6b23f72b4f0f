package response

import (
	"log/slog"

	apperrors "campusmarket/internal/errors"

	"github.com/gofiber/fiber/v2"
)

func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(fiber.Map{
		"message": message,
		"data":    data,
	})
}

func Created(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": message,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message)
}

func ServerError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, message)
}

func Unauthorized(c *fiber.Ctx) error {
	return Error(c, fiber.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, message)
}

// ValidationErrors reports request body problems keyed by field.
func ValidationErrors(c *fiber.Ctx, fields map[string]string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  "validation failed",
		"kind":   string(apperrors.KindValidation),
		"fields": fields,
	})
}

// StatusFor maps a ledger error kind to an HTTP status.
func StatusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation, apperrors.KindCreation:
		return fiber.StatusBadRequest
	case apperrors.KindUnauthorized:
		return fiber.StatusForbidden
	case apperrors.KindNotFound:
		return fiber.StatusNotFound
	case apperrors.KindInvalidTransition, apperrors.KindAlreadyHeld, apperrors.KindIntegrity:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// LedgerError writes err with its kind and diagnostic details. Errors outside
// the ledger taxonomy are logged and hidden behind a generic 500.
func LedgerError(c *fiber.Ctx, err error) error {
	kind := apperrors.KindOf(err)
	if kind == "" {
		slog.ErrorContext(c.UserContext(), "request failed", "path", c.Path(), "method", c.Method(), "error", err)
		return ServerError(c, "internal server error")
	}

	body := fiber.Map{
		"error": err.Error(),
		"kind":  string(kind),
	}
	for k, v := range apperrors.Details(err) {
		body[k] = v
	}
	return c.Status(StatusFor(kind)).JSON(body)
}
