package handler

import (
	"log/slog"
	"net/http"

	"storefront/internal/logging"
	"storefront/internal/middleware"
	"storefront/internal/ratelimit"
	"storefront/internal/service"
	"storefront/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Dependencies is everything NewRouter wires into routes. Hub is optional.
type Dependencies struct {
	Auth           service.AuthService
	Users          service.UserService
	Orders         service.OrderService
	PaymentMethods service.PaymentMethodService
	Audit          service.AuditService

	Limiter     ratelimit.Limiter
	Cookies     middleware.CookieOptions
	Hub         *websocket.Hub
	Logger      *slog.Logger
	CORSOrigins []string
}

// NewRouter builds the gin engine with every API route registered.
func NewRouter(d Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(d.Logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = d.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", logging.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{logging.RequestIDHeader, "Retry-After"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	if len(d.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	if d.Hub != nil {
		router.GET("/ws", websocket.ServeWs(d.Hub, d.Auth))
	}

	gate := middleware.NewGate(d.Auth, d.Audit)
	limit := middleware.RateLimit(d.Limiter)

	api := router.Group("")
	NewAuthHandler(d.Auth, d.Cookies).RegisterRoutes(api, gate, limit)
	NewUserHandler(d.Users).RegisterRoutes(api, gate)
	NewOrderHandler(d.Orders).RegisterRoutes(api, gate)
	NewPaymentMethodHandler(d.PaymentMethods).RegisterRoutes(api, gate)
	NewAuditHandler(d.Audit).RegisterRoutes(api, gate)

	return router
}
