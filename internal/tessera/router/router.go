// Package router wires the tessera API routes.
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/tessera-ai/tessera/internal/tessera/handler"
)

// Register registers all routes on the engine.
func Register(engine *gin.Engine, h *handler.Handler) {
	engine.GET("/healthz", h.Healthz)

	v1 := engine.Group("/v1")
	{
		collections := v1.Group("/collections")
		{
			collections.POST("", h.CreateCollection)
			collections.GET("", h.ListCollections)
			collections.GET("/:collection", h.GetCollection)
			collections.DELETE("/:collection", h.DeleteCollection)

			collections.POST("/:collection/documents", h.IngestDocument)
			collections.POST("/:collection/documents/url", h.IngestDocumentURL)
			collections.GET("/:collection/documents", h.ListDocuments)
			collections.GET("/:collection/documents/:document", h.GetDocument)
			collections.DELETE("/:collection/documents/:document", h.DeleteDocument)

			collections.POST("/:collection/query", h.Query)
			collections.POST("/:collection/query/stream", h.QueryStream)

			collections.GET("/:collection/sessions", h.ListSessions)
			collections.GET("/:collection/stats", h.Stats)
			collections.POST("/:collection/index/rebuild", h.RebuildIndex)
		}

		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:session/messages", h.ListMessages)
			sessions.DELETE("/:session", h.DeleteSession)
		}
	}

	logger.Info("HTTP routes registered")
}

// RequestLogger logs each request with method, path, status and latency.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Infow("request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client", c.ClientIP(),
		)
	}
}
