package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freewebtopdf/logfilters/internal/domain"
)

var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Permissions-Policy":        "geolocation=(), microphone=(), camera=()",
}

// structuredLoggingMiddleware logs one zerolog event per request. Client
// errors log at warn, server errors at error.
func structuredLoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		event.
			Str("request_id", requestID(c)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.IP()).
			Str("user_agent", c.Get(fiber.HeaderUserAgent)).
			Int("body_size", len(c.Body())).
			Int("response_size", len(c.Response().Body())).
			Msg("HTTP request processed")

		return err
	}
}

func securityHeadersMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		for k, v := range securityHeaders {
			c.Set(k, v)
		}
		return c.Next()
	}
}

func logPanic(c *fiber.Ctx, e any) {
	log.Error().
		Str("request_id", requestID(c)).
		Interface("panic", e).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Str("ip", c.IP()).
		Msg("Panic recovered")
}

// customErrorHandler maps errors that escape the handlers, mostly Fiber's
// own, onto the error envelope
func customErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		message = fe.Message
	}

	code := domain.ErrInternal
	switch status {
	case fiber.StatusRequestEntityTooLarge:
		code = domain.ErrTooLarge
		message = "Request payload too large"
	case fiber.StatusBadRequest:
		code = domain.ErrInvalidInput
	case fiber.StatusNotFound:
		code = domain.ErrNotFound
	}

	return c.Status(status).JSON(ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}
