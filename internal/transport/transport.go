package transport

import (
	"slices"
	"time"

	"github.com/ds124wfegd/bookit/config"
	"github.com/ds124wfegd/bookit/internal/transport/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func InitRoutes(
	cfg *config.Config,
	experienceHandler *ExperienceHandler,
	promoHandler *PromoHandler,
	bookingHandler *BookingHandler,
	healthHandler *HealthHandler,
) *gin.Engine {

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg)))
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// API routes
	api := router.Group("/api")
	{
		experiences := api.Group("/experiences")
		{
			experiences.GET("", experienceHandler.ListExperiences)
			experiences.GET("/:id", experienceHandler.GetExperience)
		}

		promo := api.Group("/promo")
		{
			promo.POST("/validate", promoHandler.ValidatePromo)
			promo.POST("/quote", promoHandler.QuotePrice)
		}

		bookings := api.Group("/bookings")
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("/:ref", bookingHandler.GetBooking)
		}
	}

	// Health check
	router.GET("/health", healthHandler.Health)

	return router
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", cfg.Booking.IdempotencyHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.Server.AllowOrigins) == 0 || slices.Contains(cfg.Server.AllowOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.Server.AllowOrigins
	}
	return corsCfg
}
