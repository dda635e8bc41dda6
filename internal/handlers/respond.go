package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"dataset-service/internal/apperr"
)

const InvalidUuidError = "invalid UUID"

// statusFor maps application errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, apperr.ErrInvalidArgument),
		errors.Is(err, apperr.ErrIncomplete),
		errors.Is(err, apperr.ErrValidationFailed):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": true, "message": err.Error(),
	})
}
