package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robotslacker/testcli-sub000/manager/service"
)

type DispatchHandler struct {
	dispatcher *service.Dispatcher
}

func NewDispatchHandler(dispatcher *service.Dispatcher) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: dispatcher,
	}
}

func (h *DispatchHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/dispatch", h.Dispatch)
}

// Dispatch 业务错误也以200返回，错误信息在envelope中
func (h *DispatchHandler) Dispatch(c *gin.Context) {
	var req service.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.dispatcher.Dispatch(c.Request.Context(), &req))
}
