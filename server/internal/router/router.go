package router

import (
	"github.com/gin-gonic/gin"
	"github.com/navid-fn/radar-history/server/internal/handler"
)

type Config struct {
	TaskHandler *handler.TaskHandler
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.Default()

	api := router.Group("/v1/")
	registerDownloadRoutes(api, cfg.TaskHandler)
	registerTaskRoutes(api, cfg.TaskHandler)

	return router
}
