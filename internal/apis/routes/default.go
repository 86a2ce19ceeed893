package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mongoscan/internal/apis/dtos"
	"mongoscan/internal/middleware"
)

func SetupDefaultRoutes(router *gin.Engine) {
	// Add recovery middleware
	router.Use(middleware.CustomRecoveryMiddleware())

	// Health check route
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, dtos.Response{
			Success: true,
			Data:    "Server is healthy!",
		})
	})

	// Status counters
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup all route groups
	SetupTableRoutes(router)
}
