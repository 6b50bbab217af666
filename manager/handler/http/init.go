package http

import (
	"github.com/gin-gonic/gin"
	"github.com/robotslacker/testcli-sub000/manager/service"
	"github.com/robotslacker/testcli-sub000/pkg/middleware"
)

const HealthCheckPath = "/health"

func InitHttpHandler(lifecycle service.Lifecycle, dispatcher *service.Dispatcher) *gin.Engine {
	dispatchHandler := NewDispatchHandler(dispatcher)
	jobHandler := NewJobHandler(lifecycle)

	router := gin.Default()
	router.Use(middleware.PrintGinHeader, middleware.ExtractTrace)
	router.GET(HealthCheckPath, func(c *gin.Context) {
		c.String(200, "ok")
	})

	dispatchRouter := router.Group("/")
	dispatchHandler.RegisterRoutes(dispatchRouter)

	jobRouter := router.Group("/")
	jobHandler.RegisterRoutes(jobRouter)

	return router
}
