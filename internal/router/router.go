// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/motorbid/vehicle-auction/internal/config"
	"github.com/motorbid/vehicle-auction/internal/handler"
	"github.com/motorbid/vehicle-auction/internal/middleware"
	"github.com/motorbid/vehicle-auction/internal/realtime"
)

// Deps bundles everything route registration needs.
type Deps struct {
	Auth      *handler.AuthHandler
	Auctions  *handler.AuctionHandler
	Bids      *handler.BidHandler
	Import    *handler.ImportHandler
	Hub       *realtime.Hub
	JWTSecret string
	RateCfg   config.RateLimitConfig
	Redis     *redis.Client
}

// Register wires all routes onto the Echo instance. Public reads need no
// token; bidding needs a valid access token plus the per-user rate limit;
// admin endpoints additionally require the ADMIN role.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	// Session endpoints.
	auth := e.Group("/v1/auth")
	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/logout", d.Auth.Logout)

	// Public catalog reads.
	pub := e.Group("/v1/auctions")
	pub.GET("", d.Auctions.List)
	pub.GET("/:id", d.Auctions.Get)
	pub.GET("/:id/bids", d.Bids.ListForAuction)

	// Authenticated endpoints.
	authed := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))
	authed.GET("/me", d.Auth.Me)

	bidding := authed.Group("", middleware.RequireRole("USER", "ADMIN"),
		middleware.NewTokenBucket(d.RateCfg, d.Redis))
	bidding.POST("/auctions/:id/bids", d.Bids.Place)

	// Admin catalog management.
	admin := authed.Group("", middleware.RequireRole("ADMIN"))
	admin.POST("/auctions", d.Auctions.Create)
	admin.PATCH("/auctions/:id", d.Auctions.Update)
	admin.POST("/auctions/:id/cancel", d.Auctions.Cancel)
	admin.DELETE("/auctions/:id", d.Auctions.Delete)
	admin.GET("/auctions/stats", d.Auctions.Stats)
	admin.POST("/admin/import", d.Import.Trigger)

	// Realtime socket. Join and leave happen over the socket itself, so the
	// upgrade endpoint is public like the catalog reads.
	e.GET("/ws", realtime.ServeWS(d.Hub))
}
