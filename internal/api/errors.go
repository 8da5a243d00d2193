package api

import (
	"errors"
	"net/http"

	"remotevibes/internal/agent"
	"remotevibes/internal/orchestrator"
	"remotevibes/internal/ports"
	"remotevibes/internal/runtime"

	"github.com/gin-gonic/gin"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrMissingUser    = errors.New("missing user identity")
)

func respondError(c *gin.Context, code int, err error) {
	c.JSON(code, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

func respondErrorWithDetails(c *gin.Context, code int, err error, details string) {
	c.JSON(code, ErrorResponse{
		Error:   err.Error(),
		Code:    code,
		Details: details,
	})
}

func abortWithError(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

func mapServiceError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, orchestrator.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrNoCredential):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orchestrator.ErrSessionTerminal):
		return http.StatusConflict
	case errors.Is(err, ports.ErrPortsExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, runtime.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, agent.ErrAgentUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, agent.ErrAgentTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
