package routes

import (
	"log"

	"github.com/gin-gonic/gin"

	"mongoscan/internal/apis/handlers"
	"mongoscan/internal/apis/middlewares"
	"mongoscan/internal/di"
)

func SetupTableRoutes(router *gin.Engine) {
	tableHandler, err := di.GetTableHandler()
	if err != nil {
		log.Fatalf("Failed to get table handler: %v", err)
	}
	RegisterTableRoutes(router.Group("/api", middlewares.AuthMiddleware()), tableHandler)
}

// RegisterTableRoutes mounts the table and pool endpoints on group.
func RegisterTableRoutes(group *gin.RouterGroup, tableHandler *handlers.TableHandler) {
	tables := group.Group("/tables")
	{
		tables.GET("", tableHandler.List)
		tables.GET("/:name/schema", tableHandler.GetSchema)
		tables.DELETE("/:name/schema", tableHandler.RefreshSchema)
		tables.POST("/:name/scan", tableHandler.Scan)
		tables.POST("/:name/count", tableHandler.Count)
	}

	pools := group.Group("/pools")
	{
		pools.GET("", tableHandler.ListPools)
		pools.POST("/reconnect", tableHandler.ReconnectPools)
	}
}
