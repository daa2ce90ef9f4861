// Package api translates HTTP requests into coordinator operations, the
// way the teacher's handlers package (handlers/handlers.go) and main.go
// wire gin routes directly to storage calls.
package api

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"distcoord/internal/audit"
	"distcoord/internal/coordinator"
	"distcoord/internal/healer"
	"distcoord/internal/manifest"
	"distcoord/internal/metrics"
	"distcoord/internal/placement"
	"distcoord/internal/registry"
	"distcoord/internal/retrieval"
)

// Server wires every control-plane component into gin routes.
type Server struct {
	Registry   *registry.Registry
	Manifests  *manifest.Store
	Placement  *placement.Engine
	Retrieval  *retrieval.Engine
	Healer     *healer.Worker
	Queue      *coordinator.HealQueue
	ChunkMap   *coordinator.ChunkMap
	Metrics    *metrics.Metrics
	Audit      audit.Sink
	Logger     *logrus.Logger
	ScratchDir string
}

// Router builds the gin engine exposing the coordinator's HTTP surface.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.Logger), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	r.GET("/metrics", gin.WrapH(metricsHandler()))

	r.POST("/register", s.handleRegister)
	r.POST("/heartbeat", s.handleHeartbeat)
	r.GET("/nodes", s.handleNodes)
	r.GET("/chunk/:chunk_id", s.handleChunkLookup)
	r.POST("/chunk", s.handleChunkAssign)
	r.POST("/upload_file", s.handleUpload)
	r.GET("/download_file/:file_id", s.handleDownload)
	r.GET("/manifest/:file_id", s.handleManifest)
	r.GET("/keys", s.handleKeys)
	r.GET("/status", s.handleStatus)
	r.POST("/heal_now", s.handleHealNow)

	return r
}

// requestLogger mirrors the request logging the gateway's
// LoggingMiddleware performs for net/http, adapted to gin's handler shape.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("http request")
	}
}

func (s *Server) scratchDirFor(name string) (string, func(), error) {
	dir := filepath.Join(s.ScratchDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	return dir, cleanup, nil
}
