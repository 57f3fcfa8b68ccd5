// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/virtuallibrarycard/vlc/app/dto"
	"github.com/virtuallibrarycard/vlc/app/services"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/repository"
	"github.com/virtuallibrarycard/vlc/utils"
)

// AuthMiddleware handles JWT token validation for protected endpoints
type AuthMiddleware struct {
	tokenService services.TokenService
	patronRepo   repository.PatronRepository
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService, patronRepo repository.PatronRepository) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
		patronRepo:   patronRepo,
	}
}

func unauthorized(c fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// Authenticate validates the bearer token and loads the patron into locals
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "MISSING_AUTHORIZATION_HEADER", "Authorization header is required")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "INVALID_AUTHORIZATION_FORMAT", "Invalid authorization header format. Expected 'Bearer <token>'")
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return unauthorized(c, "MISSING_ACCESS_TOKEN", "Access token is required")
		}

		claims, err := m.tokenService.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, services.ErrTokenExpired) {
				return unauthorized(c, "TOKEN_EXPIRED", "Access token has expired")
			}
			return unauthorized(c, "TOKEN_INVALID", "Invalid access token")
		}

		patron, err := m.patronRepo.ByID(context.Background(), claims.PatronID)
		if err != nil || patron == nil {
			return unauthorized(c, "PATRON_NOT_FOUND", "Account no longer exists")
		}

		c.Locals("patron", patron)
		c.Locals("patron_id", patron.ID)
		c.Locals("token_id", claims.TokenID)

		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals("request_id", requestID)
		}

		return c.Next()
	}
}

// RequireStaff allows only library admins and superusers through. It must
// run after Authenticate.
func (m *AuthMiddleware) RequireStaff() fiber.Handler {
	return func(c fiber.Ctx) error {
		patron, ok := c.Locals("patron").(*models.Patron)
		if !ok || patron == nil {
			return unauthorized(c, "NOT_AUTHENTICATED", "Authentication is required")
		}

		if !utils.IsTrue(patron.IsStaff) && !utils.IsTrue(patron.IsSuperuser) {
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				Success: false,
				Message: "Staff privileges are required",
				Error:   dto.ErrorDetail{Code: "FORBIDDEN"},
			})
		}

		return c.Next()
	}
}

// RequireSuperuser allows only superusers through. It must run after
// Authenticate.
func (m *AuthMiddleware) RequireSuperuser() fiber.Handler {
	return func(c fiber.Ctx) error {
		patron, ok := c.Locals("patron").(*models.Patron)
		if !ok || patron == nil {
			return unauthorized(c, "NOT_AUTHENTICATED", "Authentication is required")
		}

		if !utils.IsTrue(patron.IsSuperuser) {
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				Success: false,
				Message: "Superuser privileges are required",
				Error:   dto.ErrorDetail{Code: "FORBIDDEN"},
			})
		}

		return c.Next()
	}
}
