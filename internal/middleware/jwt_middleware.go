// internal/middleware/jwt_middleware.go
package middleware

import (
	"net/http"
	"strings"

	"salesbridge/internal/service"

	"github.com/labstack/echo/v4"
)

// JWTAuthMiddleware validates the bearer token and resolves the tenant
// identity into the request context. Every /api handler reads the tenant id
// from here, never from the request payload.
func JWTAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"message": "Unauthorized",
					"error": map[string]string{
						"code": "UNAUTHORIZED",
					},
				})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"message": "Invalid authorization header format",
					"error": map[string]string{
						"code": "INVALID_AUTH_HEADER",
					},
				})
			}

			claims, err := service.ValidateAccessToken(parts[1])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"message": "Invalid or expired token",
					"error": map[string]string{
						"code": "INVALID_TOKEN",
					},
				})
			}

			c.Set("user_claims", claims)
			c.Set("user_id", claims.UserID)
			c.Set("tenant_id", claims.TenantID)
			c.Set("company_id", claims.CompanyID)
			c.Set("username", claims.Username)
			c.Set("role", claims.Role)

			return next(c)
		}
	}
}
