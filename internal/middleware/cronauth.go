package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CronAuth guards the scheduler trigger with a shared bearer secret.  The
// header name is matched case-insensitively (net/http canonicalizes it), the
// value is trimmed of surrounding whitespace, and the token is compared
// byte-for-byte in constant time.  Missing header, malformed scheme, empty
// token and mismatch all produce the same 401 so nothing about the secret
// leaks.
func CronAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := strings.TrimSpace(c.Request().Header.Get("Authorization"))
			const scheme = "Bearer "
			if !strings.HasPrefix(auth, scheme) {
				return unauthorized(c)
			}
			token := strings.TrimSpace(auth[len(scheme):])
			if token == "" || secret == "" {
				return unauthorized(c)
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				return unauthorized(c)
			}
			return next(c)
		}
	}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
}
