package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/annotate/internal/api/handler"
	"github.com/timmy/annotate/internal/api/middleware"
	"github.com/timmy/annotate/internal/checkpoint"
	"github.com/timmy/annotate/internal/config"
	"github.com/timmy/annotate/internal/logger"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	store *checkpoint.Store,
	cfg *config.ServerConfig,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Each router gets its own registry so tests can build several
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newCheckpointCollector(store),
	)
	metrics := middleware.NewMetrics(registry)

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(metrics.Middleware())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSOrigins}))

	// Create handlers
	healthHandler := handler.NewHealthHandler(store)
	annotationHandler := handler.NewAnnotationHandler(store)

	// Health check
	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/annotations", annotationHandler.ListAnnotations)
		v1.GET("/annotations/stats", annotationHandler.GetStats)
		v1.GET("/annotations/:id", annotationHandler.GetAnnotation)
	}

	return r
}
