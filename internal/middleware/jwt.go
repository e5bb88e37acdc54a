package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bhasha-ai/grader-api/internal/utils"
)

// JWTProtected verifies bearer tokens minted by the external identity
// service. User management lives outside this API; the middleware only checks
// the HMAC signature and exposes the caller's subject and role to handlers.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c.Get("Authorization"))
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "missing bearer token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if subject := subjectClaim(claims); subject != "" {
				c.Locals("grader_id", subject)
			}
			if role := roleClaim(claims); role != "" {
				c.Locals("grader_role", role)
			}
		}

		return c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// subjectClaim returns the caller identity as a string. Tokens from older
// issuers carry numeric subjects.
func subjectClaim(claims jwt.MapClaims) string {
	for _, key := range []string{"sub", "grader_id", "id"} {
		switch value := claims[key].(type) {
		case string:
			if value != "" {
				return value
			}
		case float64:
			return strconv.FormatFloat(value, 'f', -1, 64)
		}
	}
	return ""
}

func roleClaim(claims jwt.MapClaims) string {
	switch value := claims["role"].(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(value))
	case []interface{}:
		for _, item := range value {
			if role, ok := item.(string); ok && strings.TrimSpace(role) != "" {
				return strings.ToLower(strings.TrimSpace(role))
			}
		}
	}
	return ""
}
