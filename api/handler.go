package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v4"

	"slidecast/config"
	"slidecast/pipeline"
	"slidecast/project"
	"slidecast/script"
	"slidecast/speech"
	"slidecast/task"
)

// Pipeline is the orchestrator surface the handlers drive.
type Pipeline interface {
	Parse(ctx context.Context, req pipeline.ParseRequest) (project.ParsePayload, error)
	GenerateScripts(ctx context.Context, req pipeline.ScriptRequest) (project.ScriptPayload, error)
	Synthesize(ctx context.Context, req pipeline.SynthesisRequest) (project.SynthesisPayload, error)
	Render(ctx context.Context, req pipeline.RenderRequest) (project.RenderPayload, error)
	Status(id string) project.Project
	Delete(id string)
}

// JobStats reports the render queue occupancy.
type JobStats interface {
	Stats() (queued, processing int)
}

type Handler struct {
	pipeline Pipeline
	jobs     JobStats
	voices   *speech.Catalog
	version  string
	cfg      *config.Config
	logger   *slog.Logger
}

func NewHandler(svc Services, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	voices := svc.Voices
	if voices == nil {
		voices = speech.DefaultCatalog()
	}
	return &Handler{
		pipeline: svc.Pipeline,
		jobs:     svc.Jobs,
		voices:   voices,
		version:  svc.Version,
		cfg:      cfg,
		logger:   logger,
	}
}

type RenderRequest struct {
	ProjectID    string              `json:"projectId" binding:"required"`
	Slides       []project.Slide     `json:"slides"`
	AudioURLs    []project.AudioItem `json:"audioUrls"`
	Resolution   string              `json:"resolution"`
	FPS          int                 `json:"fps"`
	OutputFormat string              `json:"outputFormat"`
}

type RenderResponse struct {
	ProjectID    string    `json:"projectId"`
	VideoURL     string    `json:"videoUrl"`
	VideoSize    int64     `json:"videoSize"`
	Duration     float64   `json:"duration"`
	Resolution   string    `json:"resolution"`
	OutputFormat string    `json:"outputFormat"`
	RenderStatus string    `json:"renderStatus"`
	CompletedAt  time.Time `json:"completedAt"`
}

// handleRender assembles the final video and blocks until it is published.
func (h *Handler) handleRender(c *gin.Context) {
	var req RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	out, err := h.pipeline.Render(c.Request.Context(), pipeline.RenderRequest{
		ProjectID:    req.ProjectID,
		Slides:       req.Slides,
		Audio:        req.AudioURLs,
		Resolution:   req.Resolution,
		FPS:          req.FPS,
		OutputFormat: req.OutputFormat,
	})
	if err != nil {
		h.fail(c, project.StageRendering, err)
		return
	}

	ok(c, RenderResponse{
		ProjectID:    req.ProjectID,
		VideoURL:     h.absoluteURL(c, out.VideoURL),
		VideoSize:    out.VideoSize,
		Duration:     out.Duration,
		Resolution:   out.Resolution,
		OutputFormat: out.OutputFormat,
		RenderStatus: string(project.ResultCompleted),
		CompletedAt:  out.CompletedAt,
	})
}

// handleProjectStatus never 404s; unknown ids get the unknown sentinel.
func (h *Handler) handleProjectStatus(c *gin.Context) {
	ok(c, h.pipeline.Status(c.Param("id")))
}

func (h *Handler) handleDeleteProject(c *gin.Context) {
	id := c.Param("id")
	h.pipeline.Delete(id)
	ok(c, gin.H{"projectId": id, "message": "project deleted"})
}

type ParseResponse struct {
	ProjectID string `json:"projectId"`
	project.ParsePayload
}

// handleParsePPT accepts a multipart upload in the "file" field.
func (h *Handler) handleParsePPT(c *gin.Context) {
	limit := h.cfg.MaxInputSize
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			tooLargeResponse(c, limit)
			return
		}
		badRequest(c, fmt.Errorf("a presentation must be uploaded in the \"file\" field"))
		return
	}
	if limit > 0 && header.Size > limit {
		tooLargeResponse(c, limit)
		return
	}

	f, err := header.Open()
	if err != nil {
		h.fail(c, project.StageParsing, err)
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		h.fail(c, project.StageParsing, err)
		return
	}

	projectID := strings.TrimSpace(c.PostForm("projectId"))
	if projectID == "" {
		projectID = "proj_" + shortuuid.New()
	}

	out, err := h.pipeline.Parse(c.Request.Context(), pipeline.ParseRequest{
		ProjectID: projectID,
		Filename:  filepath.Base(header.Filename),
		Data:      data,
	})
	if err != nil {
		h.fail(c, project.StageParsing, err)
		return
	}
	for i := range out.Slides {
		for j, u := range out.Slides[i].ImageURLs {
			out.Slides[i].ImageURLs[j] = h.absoluteURL(c, u)
		}
	}
	ok(c, ParseResponse{ProjectID: projectID, ParsePayload: out})
}

type ScriptRequest struct {
	ProjectID          string          `json:"projectId" binding:"required"`
	Slides             []project.Slide `json:"slides"`
	ToneOfVoice        string          `json:"toneOfVoice"`
	Language           string          `json:"language"`
	CustomInstructions string          `json:"customInstructions"`
}

type ScriptResponse struct {
	ProjectID string `json:"projectId"`
	project.ScriptPayload
}

func (h *Handler) handleGenerateScript(c *gin.Context) {
	var req ScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	out, err := h.pipeline.GenerateScripts(c.Request.Context(), pipeline.ScriptRequest{
		ProjectID: req.ProjectID,
		Slides:    req.Slides,
		Options: script.Options{
			Tone:               req.ToneOfVoice,
			Language:           req.Language,
			CustomInstructions: req.CustomInstructions,
		},
	})
	if err != nil {
		h.fail(c, project.StageScripting, err)
		return
	}
	ok(c, ScriptResponse{ProjectID: req.ProjectID, ScriptPayload: out})
}

type TTSScript struct {
	SlideID     string  `json:"slideId"`
	SlideNumber int     `json:"slideNumber"`
	ScriptText  string  `json:"scriptText"`
	Duration    float64 `json:"duration"`
}

type TTSRequest struct {
	ProjectID string      `json:"projectId" binding:"required"`
	Scripts   []TTSScript `json:"scripts"`
	VoiceID   string      `json:"voiceId"`
	VoiceName string      `json:"voiceName"`
	Speed     float64     `json:"speed"`
}

type TTSResponse struct {
	ProjectID string `json:"projectId"`
	project.SynthesisPayload
}

func (h *Handler) handleGenerateTTS(c *gin.Context) {
	var req TTSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	scripts := make([]pipeline.SynthesisScript, 0, len(req.Scripts))
	for _, s := range req.Scripts {
		scripts = append(scripts, pipeline.SynthesisScript(s))
	}
	out, err := h.pipeline.Synthesize(c.Request.Context(), pipeline.SynthesisRequest{
		ProjectID: req.ProjectID,
		Scripts:   scripts,
		VoiceID:   req.VoiceID,
		VoiceName: req.VoiceName,
		Speed:     req.Speed,
	})
	if err != nil {
		h.fail(c, project.StageSynthesis, err)
		return
	}
	for i := range out.AudioItems {
		out.AudioItems[i].AudioURL = h.absoluteURL(c, out.AudioItems[i].AudioURL)
	}
	ok(c, TTSResponse{ProjectID: req.ProjectID, SynthesisPayload: out})
}

func (h *Handler) handleListVoices(c *gin.Context) {
	ok(c, gin.H{"default": h.voices.Default, "voices": h.voices.Voices})
}

func (h *Handler) handleServerStatus(c *gin.Context) {
	var queued, processing int
	if h.jobs != nil {
		queued, processing = h.jobs.Stats()
	}
	ok(c, gin.H{
		"status":     "ok",
		"version":    h.version,
		"queued":     queued,
		"processing": processing,
	})
}

// absoluteURL turns a host-relative media link into a full URL.
func (h *Handler) absoluteURL(c *gin.Context, link string) string {
	if !strings.HasPrefix(link, "/") {
		return link
	}

	baseURL := h.cfg.BaseURL
	if baseURL == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	return strings.TrimSuffix(baseURL, "/") + link
}

// fail maps a pipeline error onto the error envelope.
func (h *Handler) fail(c *gin.Context, stage project.Stage, err error) {
	var stageErr *pipeline.StageError
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		badRequest(c, err)
	case errors.Is(err, task.ErrQueueFull), errors.Is(err, task.ErrStopped):
		h.logger.Warn("render workers unavailable", "request_id", requestID(c), "error", err)
		fail(c, http.StatusServiceUnavailable, "SERVER_BUSY", "the render workers are busy; retry later")
	case errors.As(err, &stageErr):
		h.logger.Error("stage failed", "request_id", requestID(c), "stage", stageErr.Stage, "error", err)
		fail(c, http.StatusInternalServerError, stageCode(stageErr.Stage), err.Error())
	default:
		h.logger.Error("request failed", "request_id", requestID(c), "stage", stage, "error", err)
		fail(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
	}
}

func stageCode(stage project.Stage) string {
	switch stage {
	case project.StageParsing:
		return "PPT_PARSE_ERROR"
	case project.StageScripting:
		return "SCRIPT_GENERATION_ERROR"
	case project.StageSynthesis:
		return "TTS_GENERATION_ERROR"
	case project.StageRendering:
		return "RENDER_ERROR"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *apiError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data, Timestamp: time.Now().UTC()})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{
		Error:     &apiError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
}

func badRequest(c *gin.Context, err error) {
	fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
}

func tooLargeResponse(c *gin.Context, limit int64) {
	fail(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", fmt.Sprintf("uploads are limited to %d bytes", limit))
}
