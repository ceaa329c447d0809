package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"slidecast/ffmpeg"
	"slidecast/project"
	"slidecast/render"
	"slidecast/storage"
	"slidecast/timeline"
)

const (
	defaultFPS = 30
	maxFPS     = 60
)

type RenderRequest struct {
	ProjectID    string
	Slides       []project.Slide
	Audio        []project.AudioItem
	Resolution   string
	FPS          int
	OutputFormat string
}

// Render assembles the final video for a project. The encoder work runs on
// the worker pool; the caller blocks until it finishes.
func (o *Orchestrator) Render(ctx context.Context, req RenderRequest) (project.RenderPayload, error) {
	engineReq, err := o.validateRender(req)
	if err != nil {
		return project.RenderPayload{}, err
	}

	payload, _, err := runStage(o, req.ProjectID, project.StageRendering, render.Passes, func(progress progressFunc) (project.RenderPayload, error) {
		engineReq.Progress = progress

		var out *render.Output
		// The result must be recorded even if the client goes away mid-render.
		waitCtx := context.WithoutCancel(ctx)
		err := o.runner.Run(waitCtx, req.ProjectID, func(jobCtx context.Context) error {
			var err error
			out, err = o.renderer.Render(jobCtx, engineReq)
			return err
		})
		if err != nil {
			return project.RenderPayload{}, err
		}
		if len(out.Unmatched) > 0 {
			o.logger.Warn("slides rendered without narration",
				"project_id", req.ProjectID,
				"slides", out.Unmatched,
			)
		}

		name := filepath.Base(out.Path)
		link, err := o.publishFile(waitCtx, req.ProjectID, storage.VideoKey(req.ProjectID, name), engineReq.Format.MimeType(), out.Path)
		if err != nil {
			return project.RenderPayload{}, err
		}
		if err := os.RemoveAll(out.WorkDir); err != nil {
			o.logger.Warn("failed to remove work dir", "project_id", req.ProjectID, "work_dir", out.WorkDir, "error", err)
		}

		return project.RenderPayload{
			VideoURL:     link,
			VideoSize:    out.Size,
			Duration:     out.Duration,
			Resolution:   engineReq.Resolution.Key,
			OutputFormat: string(engineReq.Format),
			CompletedAt:  time.Now().UTC(),
		}, nil
	})
	return payload, err
}

func (o *Orchestrator) validateRender(req RenderRequest) (render.Request, error) {
	if req.ProjectID == "" {
		return render.Request{}, invalid("projectId is required")
	}
	if len(req.Slides) == 0 {
		return render.Request{}, invalid("at least one slide is required")
	}
	if len(req.Audio) == 0 {
		return render.Request{}, invalid("at least one audio clip is required")
	}
	if len(req.Slides) != len(req.Audio) {
		return render.Request{}, invalid("slide count (%d) and audio count (%d) differ", len(req.Slides), len(req.Audio))
	}

	format, err := ffmpeg.ParseFormat(req.OutputFormat)
	if err != nil {
		return render.Request{}, invalid("%v", err)
	}
	fps := req.FPS
	if fps == 0 {
		fps = defaultFPS
	}
	if fps < 1 || fps > maxFPS {
		return render.Request{}, invalid("fps must be between 1 and %d", maxFPS)
	}

	out := render.Request{
		ProjectID:  req.ProjectID,
		Resolution: timeline.ParseResolution(req.Resolution),
		FPS:        fps,
		Format:     format,
	}
	numbers := make(map[int]bool, len(req.Slides))
	for _, s := range req.Slides {
		if numbers[s.SlideNumber] {
			return render.Request{}, invalid("duplicate slideNumber %d", s.SlideNumber)
		}
		ts := timeline.Slide{Number: s.SlideNumber, Title: s.Title}
		if len(s.ImageURLs) > 0 {
			ts.VisualRef = o.media.localize(s.ImageURLs[0])
		}
		out.Slides = append(out.Slides, ts)
		numbers[s.SlideNumber] = true
	}
	matched := false
	voiced := make(map[int]bool, len(req.Audio))
	for _, a := range req.Audio {
		if a.AudioURL == "" {
			return render.Request{}, invalid("audio for slide %d has no audioUrl", a.SlideNumber)
		}
		if voiced[a.SlideNumber] {
			return render.Request{}, invalid("duplicate slideNumber %d in audioUrls", a.SlideNumber)
		}
		voiced[a.SlideNumber] = true
		matched = matched || numbers[a.SlideNumber]
		out.Audio = append(out.Audio, timeline.Audio{
			Number:   a.SlideNumber,
			Ref:      o.media.localize(a.AudioURL),
			Duration: a.Duration,
		})
	}
	if !matched {
		return render.Request{}, invalid("no audio clip matches any slide number")
	}
	return out, nil
}
