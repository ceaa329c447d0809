package api

import (
	"log/slog"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"slidecast/config"
	"slidecast/pipeline"
	"slidecast/speech"
)

type Services struct {
	Pipeline Pipeline
	Jobs     JobStats
	Voices   *speech.Catalog
	Version  string
}

func SetupRouter(svc Services, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	r := gin.Default()
	r.Use(RequestID())
	h := NewHandler(svc, cfg, logger)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Only published project artifacts are served; checkpoints may live under MediaDir too.
	r.Static(pipeline.MediaRoute+"/projects", filepath.Join(cfg.MediaDir, "projects"))

	r.POST("/render", h.handleRender)

	api := r.Group("/api")
	{
		api.GET("/status", h.handleServerStatus)

		api.POST("/parse-ppt", h.handleParsePPT)
		api.POST("/generate-script", h.handleGenerateScript)
		api.POST("/generate-tts", h.handleGenerateTTS)
		api.GET("/tts/voices", h.handleListVoices)
		api.POST("/render", h.handleRender)
		// Older clients post to /render-video.
		api.POST("/render-video", h.handleRender)

		api.GET("/project-status/:id", h.handleProjectStatus)
		api.DELETE("/project/:id", h.handleDeleteProject)
	}
	return r
}
