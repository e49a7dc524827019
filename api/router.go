package api

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dessert-api/storage"
)

// RouterConfig enthält alles, was NewRouter zum Zusammenbauen braucht.
type RouterConfig struct {
	Desserts DessertStore
	Uploads  storage.ObjectStore
	Logger   *zap.Logger
	Metrics  *Metrics

	// MetricsHandler wird unter /metrics ausgeliefert, nil deaktiviert die Route.
	MetricsHandler http.Handler
	// Ping prüft die Datenbank für /healthz, nil meldet immer ok.
	Ping func(ctx context.Context) error

	AllowOrigins    []string
	UploadURLPrefix string
	UploadMaxBytes  int64
}

// NewRouter baut den gin-Router mit Middleware und allen Routen.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(
		requestIDMiddleware(),
		loggingMiddleware(log),
		cfg.Metrics.Middleware(),
		recoveryMiddleware(log),
		cors.New(corsConfig(cfg.AllowOrigins)),
	)

	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}
	router.GET("/healthz", healthHandler(cfg.Ping, log))

	setupUploadRoutes(router, cfg.Uploads, cfg.UploadURLPrefix, log)

	desserts := NewDessertHandler(cfg.Desserts, cfg.Uploads, log, cfg.Metrics, cfg.UploadMaxBytes)
	desserts.Register(router)

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Accept", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}

func healthHandler(ping func(ctx context.Context) error, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				log.Warn("Health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgDBUnavailable})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// setupUploadRoutes liefert hochgeladene Bilder read-only aus. Lokale Uploads
// gehen über gin.Static, entfernte Backends werden durchgestreamt.
func setupUploadRoutes(router *gin.Engine, uploads storage.ObjectStore, prefix string, log *zap.Logger) {
	if uploads == nil {
		return
	}
	if prefix == "" {
		prefix = "/uploads"
	}
	prefix = "/" + strings.Trim(prefix, "/")

	if local, ok := uploads.(*storage.LocalStore); ok {
		router.Static(prefix, local.Dir())
		return
	}

	router.GET(prefix+"/:name", func(c *gin.Context) {
		name := c.Param("name")
		rc, err := uploads.Open(c.Request.Context(), name)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": msgImageNotFound})
				return
			}
			log.Error("Failed to open uploaded image", zap.String("key", name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
			return
		}
		defer rc.Close()

		contentType := mime.TypeByExtension(path.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
	})
}
