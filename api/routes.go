// Package api exposes the optimization engine over HTTP: upload a PDF,
// get back the optimized bytes or a structural analysis.
package api

import (
	"github.com/gin-gonic/gin"

	"pdfopt/observability"
)

// Config holds service configuration, populated from the environment by
// the server entrypoint.
type Config struct {
	Port        string
	MaxFileSize int64
	TempDir     string
	Logger      observability.Logger
}

func SetupRoutes(r *gin.Engine, config *Config) {
	apiGroup := r.Group("/api/pdf")
	{
		apiGroup.POST("/optimize", func(c *gin.Context) { HandleOptimize(c, config) })
		apiGroup.POST("/analyze", func(c *gin.Context) { HandleAnalyze(c, config) })
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy", "service": "pdfopt"})
	})
}
