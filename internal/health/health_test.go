package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_Health(t *testing.T) {
	t.Parallel()

	c := NewChecker("1.2.3")
	resp := c.Health()

	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.NotEmpty(t, resp.Uptime)
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	c := NewChecker("dev")
	c.RegisterCheck("cache", func() Check {
		return Check{Status: StatusHealthy}
	})

	resp := c.Readiness()
	assert.Equal(t, StatusHealthy, resp.Status)
	require.Contains(t, resp.Checks, "cache")

	c.RegisterCheck("upstream", func() Check {
		return Check{Status: StatusUnhealthy, Message: "connection refused"}
	})

	resp = c.Readiness()
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["upstream"].Message)
}

func TestChecker_Endpoints(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)

	c := NewChecker("dev")
	ready := true
	c.RegisterCheck("toggle", func() Check {
		if ready {
			return Check{Status: StatusHealthy}
		}
		return Check{Status: StatusUnhealthy}
	})

	router := gin.New()
	c.Register(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	ready = false
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
