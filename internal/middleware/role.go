package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Role values carried in the JWT "role" claim.
const (
	RoleCustomer = "CUSTOMER"
	RoleMerchant = "MERCHANT"
)

// RequireRole enforces that the authenticated user has one of the given
// roles.  It assumes JWTAuth ran earlier and stored the role claim under
// the context key "role"; a missing or disallowed role is a 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
