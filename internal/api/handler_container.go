package api

import (
	"net/http"

	"remotevibes/internal/orchestrator"

	"github.com/gin-gonic/gin"
)

type ContainerHandler struct {
	orch *orchestrator.Orchestrator
}

func NewContainerHandler(orch *orchestrator.Orchestrator) *ContainerHandler {
	return &ContainerHandler{orch: orch}
}

// ListFleet GET /api/containers
// 主机上所有受管 agent 容器，运维视角
func (h *ContainerHandler) ListFleet(c *gin.Context) {
	containers, err := h.orch.ListFleet(c.Request.Context())
	if err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}
	c.JSON(http.StatusOK, containers)
}

// Cleanup POST /api/containers/cleanup
// 立即清除已退出的受管容器
func (h *ContainerHandler) Cleanup(c *gin.Context) {
	removed, err := h.orch.CleanupStale(c.Request.Context())
	if err != nil {
		respondError(c, mapServiceError(err), err)
		return
	}
	c.JSON(http.StatusOK, CleanupResponse{Removed: removed})
}
