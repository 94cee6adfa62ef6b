package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
)

// errorCode is the machine-readable "error" field for each error kind.
func errorCode(err error) string {
	switch {
	case errors.Is(err, apperr.SignatureVerification):
		return "invalid_signature"
	case errors.Is(err, apperr.ClientInput):
		return "bad_request"
	case errors.Is(err, apperr.RateLimited):
		return "too_many_requests"
	case errors.Is(err, apperr.NotFound):
		return "not_found"
	case errors.Is(err, apperr.UpstreamProvider):
		return "payment_provider_unavailable"
	default:
		return "internal_error"
	}
}

// respondError writes an error body. Client errors carry their message;
// server errors are logged and answered generically.
func respondError(c *fiber.Ctx, err error) error {
	status := apperr.HTTPStatus(err)
	body := fiber.Map{"error": errorCode(err)}
	if status >= fiber.StatusInternalServerError {
		log.Errorf("%s %s: %v", c.Method(), c.Path(), err)
		body["message"] = "Request could not be completed, please try again later"
	} else {
		body["message"] = err.Error()
	}
	return c.Status(status).JSON(body)
}

// ErrorHandler renders errors returned from handlers and middleware in the
// same JSON shape as respondError.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := strings.ReplaceAll(strings.ToLower(utils.StatusMessage(fe.Code)), " ", "_")
		if code == "" {
			code = "internal_error"
		}
		return c.Status(fe.Code).JSON(fiber.Map{"error": code, "message": fe.Message})
	}
	return respondError(c, err)
}
