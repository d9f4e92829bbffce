package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-timetable-api/internal/service"
)

func newMetricsRouter(h *MetricsHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", h.Prometheus)
	router.GET("/metrics/summary", h.Summary)
	return router
}

func TestReadyReportsFailingDependency(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	})
	router := newMetricsRouter(h)

	w := serve(router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"dial tcp: refused"`)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health", nil).Code)
}

func TestReadyWithHealthyDependencies(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
	})
	router := newMetricsRouter(h)

	w := serve(router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ready"`)
	assert.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/metrics", nil).Code)
}

func TestPrometheusExposesSchedulerCollectors(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordMove(true)
	router := newMetricsRouter(NewMetricsHandler(metrics, nil))

	w := serve(router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "timetable_moves_total")

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/metrics/summary", nil).Code)
}
