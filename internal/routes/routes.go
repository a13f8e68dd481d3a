package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"lawfirm-server/internal/config"
	"lawfirm-server/internal/handlers"
	"lawfirm-server/internal/middleware"
	"lawfirm-server/internal/models"
	"lawfirm-server/internal/services"
)

// Deps is everything the HTTP layer needs. Limiter may be nil.
type Deps struct {
	DB       *gorm.DB
	Config   *config.Config
	Slots    *services.SlotStore
	Booking  *services.AppointmentFactory
	Payments *services.PaymentService
	Limiter  *middleware.RateLimiter
	Logger   *slog.Logger
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, deps Deps) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(deps.DB, cfg)
	userHandler := handlers.NewUserHandler(deps.DB)
	catalogHandler := handlers.NewCatalogHandler(deps.DB)
	slotHandler := handlers.NewSlotHandler(deps.Slots)
	appointmentHandler := handlers.NewAppointmentHandler(deps.Booking)
	paymentHandler := handlers.NewPaymentHandler(deps.Payments, cfg.FirmName, cfg.Location())

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
		}

		public.GET("/appointment-types", catalogHandler.ListAppointmentTypes)
		public.GET("/services", catalogHandler.ListServices)

		// The gateway signature authenticates the callback.
		public.POST("/payments/verify", middleware.RateLimit(deps.Limiter, logger), paymentHandler.VerifyPayment)
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(cfg))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		private.GET("/slots", slotHandler.GetSlots)

		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.GET("", appointmentHandler.GetAppointments)
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointmentByID)
			appointmentRoutes.POST("", appointmentHandler.CreateAppointment)
			appointmentRoutes.DELETE("", appointmentHandler.CancelAppointment)
			appointmentRoutes.PATCH("", appointmentHandler.RescheduleAppointment)
		}

		paymentRoutes := private.Group("/payments")
		{
			paymentRoutes.POST("/create-order", paymentHandler.CreateOrder)
			paymentRoutes.POST("/cancel", paymentHandler.CancelPayment)
			paymentRoutes.GET("/:id/receipt", paymentHandler.GetReceipt)
		}

		// Admin-only routes
		adminRoutes := private.Group("/admin")
		adminRoutes.Use(middleware.RequireRole(models.RoleAdmin))
		{
			adminRoutes.POST("/appointment-types", catalogHandler.CreateAppointmentType)
			adminRoutes.POST("/services", catalogHandler.CreateService)
			adminRoutes.POST("/slots", slotHandler.CreateSlots)
			adminRoutes.PATCH("/appointments/:id/confirm", appointmentHandler.ConfirmAppointment)
			adminRoutes.GET("/payments/:id/transactions", paymentHandler.GetTransactions)

			adminRoutes.POST("/users", userHandler.CreateUser)
			adminRoutes.GET("/users", userHandler.GetUsers)
			adminRoutes.GET("/users/:id", userHandler.GetUserByID)
		}
	}

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := deps.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
}
