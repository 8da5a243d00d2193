package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"remotevibes/internal/agent"
	"remotevibes/internal/orchestrator"
	"remotevibes/internal/ports"
	"remotevibes/internal/runtime"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestMapServiceError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", orchestrator.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", orchestrator.ErrNotFound), http.StatusNotFound},
		{"no credential", orchestrator.ErrNoCredential, http.StatusUnprocessableEntity},
		{"terminal", orchestrator.ErrSessionTerminal, http.StatusConflict},
		{"ports exhausted", fmt.Errorf("allocate ports: %w", ports.ErrPortsExhausted), http.StatusServiceUnavailable},
		{"engine down", runtime.ErrUnavailable, http.StatusServiceUnavailable},
		{"agent unreachable", agent.ErrAgentUnreachable, http.StatusBadGateway},
		{"agent timeout", agent.ErrAgentTimeout, http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, mapServiceError(tc.err))
		})
	}
}

func TestOwnerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(OwnerMiddleware())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, ownerID(c))
	})

	// 没带身份头直接 401
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-User-ID", "user-42")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", w.Body.String())
}
