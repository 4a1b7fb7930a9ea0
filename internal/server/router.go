package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter wires every command route. Callers set the gin mode.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	r.GET("/", h.Index)
	r.GET("/ping", h.Ping)

	api := r.Group("/api")
	{
		api.POST("/conversations", h.CreateConversation)
		api.GET("/conversations/:id", h.GetConversation)
		api.DELETE("/conversations/:id", h.DeleteConversation)
		api.POST("/conversations/:id/document", h.LoadDocument)
		api.POST("/conversations/:id/messages", h.AskMessage)
		api.POST("/conversations/:id/cache/renew", h.RenewCache)
		api.DELETE("/conversations/:id/cache", h.DeleteCache)
		api.POST("/conversations/:id/clear", h.ClearConversation)
		api.GET("/conversations/:id/pages/:page", h.GetPage)
		api.GET("/conversations/:id/cited-pages", h.GetCitedPages)
	}
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("Request handled.",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
