package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// OpsAuth validates the pre-issued operator token on the /v1/ops surface.
// Tokens are HS256 JWTs signed with the configured ops secret and must carry
// scope "ops"; issuing them happens outside this service.  The operator
// subject is stored in the context under "operator" for audit logging.
func OpsAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			if scope, _ := claims["scope"].(string); scope != "ops" {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "ops scope required"})
			}
			if sub, _ := claims["sub"].(string); sub != "" {
				c.Set("operator", sub)
			}
			return next(c)
		}
	}
}
