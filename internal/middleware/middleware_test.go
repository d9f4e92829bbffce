package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-timetable-api/internal/service"
)

func TestSetCacheHitWithoutResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	SetCacheHit(c, false)

	meta := ExtractMeta(c)
	assert.Equal(t, false, meta[cacheHitKey])
	assert.Equal(t, "database", meta[sourceKey])
}

func TestMetricsSkipsProbes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics), WithResponseMeta())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/schools/:schoolId/timetable/classes/:classId", func(c *gin.Context) {
		SetCacheHit(c, true)
		c.JSON(http.StatusOK, ExtractMeta(c))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, uint64(0), metrics.Snapshot().RequestsTotal)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/schools/s1/timetable/classes/c1", nil)
	router.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), `"source":"cache"`)
	assert.Equal(t, uint64(1), metrics.Snapshot().RequestsTotal)
}
