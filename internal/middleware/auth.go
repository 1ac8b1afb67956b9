// Package middleware provides the fiber middleware chain of the API server.
package middleware

import (
	"strconv"
	"strings"

	"minilink/internal/config"
	"minilink/internal/models"
	"minilink/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Token issuer and audience, shared with the token generator.
const (
	TokenIssuer   = "minilink-api"
	TokenAudience = "minilink-client"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

func unauthorized(c *fiber.Ctx, message string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(message))
}

// AuthRequired is a middleware that enforces authentication for protected routes.
// On success the user id is stored in c.Locals("userID") and in the user context.
func AuthRequired(c *fiber.Ctx) error {
	if cfg == nil || cfg.JWTSecret == "" {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(nil))
	}

	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return unauthorized(c, "Authorization header required")
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return unauthorized(c, "Invalid authorization header format")
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
	)
	if err != nil || !token.Valid {
		return unauthorized(c, "Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return unauthorized(c, "Invalid token claims")
	}

	subStr, err := claims.GetSubject()
	if err != nil || subStr == "" {
		return unauthorized(c, "Invalid token structure - missing subject")
	}

	userIDVal, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil || userIDVal == 0 {
		return unauthorized(c, "Invalid user ID in token")
	}

	userID := uint(userIDVal)
	c.Locals("userID", userID)
	c.SetUserContext(observability.WithUserID(c.UserContext(), userID))

	return c.Next()
}
