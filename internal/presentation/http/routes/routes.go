package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tillworks/fiscal-pos-api/internal/config"
	"github.com/tillworks/fiscal-pos-api/internal/presentation/http/handler"
	"github.com/tillworks/fiscal-pos-api/internal/presentation/http/middleware"
	"go.uber.org/zap"
)

// Handlers holds all the HTTP handlers used for route registration.
type Handlers struct {
	Session *handler.SessionHandler
	Sale    *handler.SaleHandler
	Device  *handler.DeviceHandler
}

// Deps holds shared dependencies needed by the routes.
type Deps struct {
	Cfg *config.Config
	Log *zap.Logger
}

// Setup creates the Gin router and registers all routes.
func Setup(h *Handlers, deps *Deps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(deps.Log))
	router.Use(middleware.CORSMiddleware(&deps.Cfg.CORS))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": deps.Cfg.App.Name,
		})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		registerSessionRoutes(v1, h)
		registerSaleRoutes(v1, h)
		registerDeviceRoutes(v1, h)
	}

	return router
}

func registerSessionRoutes(v1 *gin.RouterGroup, h *Handlers) {
	sessions := v1.Group("/sessions")
	{
		sessions.POST("", h.Session.Open)
		sessions.GET("/:till_id", h.Session.Current)
		sessions.POST("/:till_id/close", h.Session.Close)
	}
}

func registerSaleRoutes(v1 *gin.RouterGroup, h *Handlers) {
	sales := v1.Group("/sales")
	{
		sales.POST("", h.Sale.Create)
		sales.GET("/:id", h.Sale.Get)
		sales.POST("/:id/lines", h.Sale.AddLine)
		sales.POST("/:id/payments", h.Sale.AddPayment)
		sales.POST("/:id/commit", h.Sale.Commit)
		sales.POST("/:id/void", h.Sale.Void)
	}
}

func registerDeviceRoutes(v1 *gin.RouterGroup, h *Handlers) {
	device := v1.Group("/device")
	{
		device.GET("/status", h.Device.Status)
		device.POST("/clear-fault", h.Device.ClearFault)
		device.GET("/jobs/:id", h.Device.GetJob)
		device.POST("/jobs/:id/retry", h.Device.RetryJob)
		device.POST("/jobs/:id/void", h.Device.VoidJob)
	}
}
