package api

import (
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"coffee-fleet-console/config"
	"coffee-fleet-console/internal/authz"
	"coffee-fleet-console/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	viewCache := mw.Cache(h.views, cache.DefaultExpiration)

	r.Use(rateLimiter)
	r.NoRoute(h.NoRoute)

	// Public routes
	r.GET("/login", h.LoginView)
	r.POST("/login", h.Login)
	r.POST("/signup", h.Signup)
	r.POST("/logout", h.Logout)
	r.GET("/session", h.GetSession)
	r.GET("/health", h.Health)
	r.GET("/debug/metrics", h.Metrics)
	r.GET("/vapid_public_key", h.GetVAPIDPublicKey)

	// Console routes
	console := r.Group("/")
	console.Use(h.Guard())
	{
		console.GET("/dashboard", Require(authz.ViewDashboard), h.GetDashboard)

		console.GET("/machines", Require(authz.ViewMachines), h.GetMachines)
		console.GET("/machines/:id", Require(authz.ViewMachines), h.GetMachine)
		console.POST("/machines/:id/status", Require(authz.ToggleMachines), h.UpdateMachineStatus)
		console.POST("/machines/:id/refill", Require(authz.RefillMachines), h.RefillMachine)

		console.GET("/alerts", Require(authz.ViewAlerts), h.GetAlerts)
		console.POST("/alerts/:id/acknowledge", Require(authz.AcknowledgeAlerts), h.AcknowledgeAlert)

		console.GET("/facilities", Require(authz.ViewFacilities), viewCache, h.GetFacilities)
		console.GET("/facilities/:id", h.GetFacility)
		console.GET("/facilities/:id/usage", viewCache, h.GetFacilityUsage)
		console.GET("/facility-usage", Require(authz.ViewFacilityUsage), viewCache, h.GetOwnFacilityUsage)
		console.GET("/usage", Require(authz.ViewFleetUsage), viewCache, h.GetUsage)

		users := console.Group("/users", Require(authz.ManageUsers))
		users.GET("", h.GetUsers)
		users.POST("", h.CreateUser)
		users.GET("/:id", h.GetUser)
		users.PUT("/:id", h.UpdateUser)
		users.DELETE("/:id", h.DeleteUser)
		users.POST("/:id/reactivate", h.ReactivateUser)

		console.POST("/refresh", h.Refresh)
		console.GET("/ws", h.Live)

		console.GET("/subscriptions", h.GetSubscription)
		console.PUT("/subscriptions", h.PutSubscription)
		console.DELETE("/subscriptions", h.DeleteSubscription)
	}

	return r
}
