package middleware

// identity.go holds helpers shared across middleware files for reading
// the authenticated user out of the request context.

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// currentUserID returns the authenticated user's identifier as a string,
// or "anon" for unauthenticated requests.  JWTAuth stores the raw "sub"
// claim, whose concrete type depends on how the token was minted, so
// both string and numeric forms are handled.
func currentUserID(c echo.Context) string {
	switch v := c.Get("user_id").(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return "anon"
}
