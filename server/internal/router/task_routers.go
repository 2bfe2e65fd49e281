package router

import (
	"github.com/gin-gonic/gin"
	"github.com/navid-fn/radar-history/server/internal/handler"
)

func registerDownloadRoutes(router *gin.RouterGroup, taskHandler *handler.TaskHandler) {
	downloads := router.Group("/download")
	{
		downloads.POST("/crypto", taskHandler.CreateDownload)
	}
}

func registerTaskRoutes(router *gin.RouterGroup, taskHandler *handler.TaskHandler) {
	tasks := router.Group("/tasks")
	{
		tasks.GET("", taskHandler.ListTasks)
		tasks.GET("/:id", taskHandler.GetTask)
		tasks.DELETE("/:id", taskHandler.DeleteTask)
	}
}
