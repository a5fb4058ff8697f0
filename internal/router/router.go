// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/spotmarket/slot-reservation/internal/config"
	"github.com/spotmarket/slot-reservation/internal/handler"
	"github.com/spotmarket/slot-reservation/internal/middleware"
)

// Deps bundles everything route registration needs.
type Deps struct {
	Booking      *handler.BookingHandler
	Resources    *handler.ResourceHandler
	Availability *handler.AvailabilityHandler
	JWTSecret    string
	Redis        *redis.Client
	RateLimit    config.RateLimitConfig
	Cache        config.CacheConfig
}

// Register attaches all routes to the Echo instance.  The rate limiter
// wraps the whole v1 surface; the response cache wraps only the public
// availability endpoint.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	v1 := e.Group("/v1", middleware.NewTokenBucket(d.RateLimit, d.Redis))

	// Public browse surface.
	v1.GET("/resources/:id", d.Resources.Get)
	v1.GET("/resources/:id/availability", d.Availability.Get,
		middleware.NewRedisCache(d.Cache, d.Redis))

	auth := middleware.JWTAuth(d.JWTSecret)

	// Customer booking lifecycle.
	customer := v1.Group("", auth, middleware.RequireRole(middleware.RoleCustomer))
	customer.POST("/checkout", d.Booking.Checkout)
	customer.GET("/my-reservations", d.Booking.List)
	customer.GET("/reservations/:id", d.Booking.Get)
	customer.POST("/reservations/:id/confirm", d.Booking.Confirm)
	customer.POST("/reservations/:id/cancel", d.Booking.Cancel)

	// Merchant resource management.
	merchant := v1.Group("", auth, middleware.RequireRole(middleware.RoleMerchant))
	merchant.POST("/resources", d.Resources.Register)
	merchant.GET("/merchant/resources", d.Resources.ListMine)
}
