package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"slidecast/project"
	"slidecast/script"
	"slidecast/speech"
	"slidecast/storage"
)

const (
	minSpeed = 0.5
	maxSpeed = 2.0
)

type ParseRequest struct {
	ProjectID string
	Filename  string
	Data      []byte
}

// Parse extracts slides from an uploaded presentation and publishes every
// embedded picture so later stages can reference it by URL.
func (o *Orchestrator) Parse(ctx context.Context, req ParseRequest) (project.ParsePayload, error) {
	if req.ProjectID == "" {
		return project.ParsePayload{}, invalid("projectId is required")
	}
	switch strings.ToLower(filepath.Ext(req.Filename)) {
	case ".pptx":
	case ".ppt":
		return project.ParsePayload{}, invalid("legacy .ppt files are not supported; save the deck as .pptx")
	default:
		return project.ParsePayload{}, invalid("only .pptx presentations can be uploaded")
	}
	if len(req.Data) == 0 {
		return project.ParsePayload{}, invalid("uploaded file is empty")
	}

	payload, _, err := runStage(o, req.ProjectID, project.StageParsing, 1, func(progress progressFunc) (project.ParsePayload, error) {
		pres, err := o.parser.Parse(req.Data)
		if err != nil {
			return project.ParsePayload{}, fmt.Errorf("parse presentation: %w", err)
		}

		slides := make([]project.Slide, 0, len(pres.Slides))
		for _, s := range pres.Slides {
			slide := project.Slide{
				SlideID:     fmt.Sprintf("slide_%d", s.Number),
				SlideNumber: s.Number,
				Title:       s.Title,
				Content:     s.Content,
				ImageURLs:   []string{},
				Notes:       s.Notes,
			}
			for i, img := range s.Images {
				key := storage.SlideImageKey(req.ProjectID, s.Number, i, img.Ext())
				name := fmt.Sprintf("slide_%d_image_%d%s", s.Number, i, img.Ext())
				link, err := o.publishBytes(ctx, req.ProjectID, key, name, img.MimeType, img.Data)
				if err != nil {
					return project.ParsePayload{}, fmt.Errorf("slide %d image %d: %w", s.Number, i, err)
				}
				slide.ImageURLs = append(slide.ImageURLs, link)
			}
			slides = append(slides, slide)
		}

		return project.ParsePayload{
			TotalSlides:   len(slides),
			Slides:        slides,
			ExtractedText: pres.ExtractedText(),
			Metadata: project.Metadata{
				Title:     pres.Metadata.Title,
				Author:    pres.Metadata.Author,
				CreatedAt: pres.Metadata.CreatedAt,
			},
		}, nil
	})
	return payload, err
}

type ScriptRequest struct {
	ProjectID string
	Slides    []project.Slide
	Options   script.Options
}

// GenerateScripts writes narration for every slide, reporting progress per slide.
func (o *Orchestrator) GenerateScripts(ctx context.Context, req ScriptRequest) (project.ScriptPayload, error) {
	if req.ProjectID == "" {
		return project.ScriptPayload{}, invalid("projectId is required")
	}
	if len(req.Slides) == 0 {
		return project.ScriptPayload{}, invalid("at least one slide is required")
	}
	opts := req.Options.Normalize()
	if !script.ValidTone(opts.Tone) {
		return project.ScriptPayload{}, invalid("toneOfVoice must be one of %s", strings.Join(script.Tones, ", "))
	}
	if !script.ValidLanguage(opts.Language) {
		return project.ScriptPayload{}, invalid("language must be one of %s", strings.Join(script.Languages, ", "))
	}

	payload, _, err := runStage(o, req.ProjectID, project.StageScripting, len(req.Slides), func(progress progressFunc) (project.ScriptPayload, error) {
		out := project.ScriptPayload{Scripts: make([]project.Script, 0, len(req.Slides))}
		for i, slide := range req.Slides {
			text, err := o.scripts.GenerateSlide(ctx, slide, opts)
			if err != nil {
				return project.ScriptPayload{}, fmt.Errorf("slide %d: %w", slide.SlideNumber, err)
			}
			s := project.Script{
				SlideID:     slide.SlideID,
				SlideNumber: slide.SlideNumber,
				ScriptText:  text,
				Duration:    script.EstimateDuration(text),
				Keywords:    script.Keywords(text),
			}
			out.Scripts = append(out.Scripts, s)
			out.TotalDuration += s.Duration
			progress(i+1, fmt.Sprintf("script for slide %d written", slide.SlideNumber))
		}
		return out, nil
	})
	return payload, err
}

// SynthesisScript is one narration text to voice. A positive Duration
// overrides the length estimate.
type SynthesisScript struct {
	SlideID     string
	SlideNumber int
	ScriptText  string
	Duration    float64
}

type SynthesisRequest struct {
	ProjectID string
	Scripts   []SynthesisScript
	VoiceID   string
	VoiceName string
	Speed     float64
}

// Synthesize voices every script and publishes the clips.
func (o *Orchestrator) Synthesize(ctx context.Context, req SynthesisRequest) (project.SynthesisPayload, error) {
	if req.ProjectID == "" {
		return project.SynthesisPayload{}, invalid("projectId is required")
	}
	if len(req.Scripts) == 0 {
		return project.SynthesisPayload{}, invalid("at least one script is required")
	}
	speed := req.Speed
	if speed == 0 {
		speed = 1.0
	}
	if speed < minSpeed || speed > maxSpeed {
		return project.SynthesisPayload{}, invalid("speed must be between %.1f and %.1f", minSpeed, maxSpeed)
	}
	for _, s := range req.Scripts {
		if strings.TrimSpace(s.ScriptText) == "" {
			return project.SynthesisPayload{}, invalid("script for slide %d is empty", s.SlideNumber)
		}
	}
	voiceID := o.voices.Resolve(req.VoiceID, req.VoiceName)

	payload, _, err := runStage(o, req.ProjectID, project.StageSynthesis, len(req.Scripts), func(progress progressFunc) (project.SynthesisPayload, error) {
		out := project.SynthesisPayload{AudioItems: make([]project.AudioItem, 0, len(req.Scripts))}
		for i, s := range req.Scripts {
			audio, err := o.speech.Synthesize(ctx, s.ScriptText, voiceID, speed)
			if err != nil {
				return project.SynthesisPayload{}, fmt.Errorf("slide %d: %w", s.SlideNumber, err)
			}

			duration := s.Duration
			if duration <= 0 {
				duration = speech.EstimateDuration(s.ScriptText)
			}
			name := fmt.Sprintf("slide_%d.mp3", s.SlideNumber)
			link, err := o.publishBytes(ctx, req.ProjectID, storage.AudioKey(req.ProjectID, s.SlideNumber), name, "audio/mpeg", audio)
			if err != nil {
				return project.SynthesisPayload{}, fmt.Errorf("slide %d: %w", s.SlideNumber, err)
			}

			out.AudioItems = append(out.AudioItems, project.AudioItem{
				SlideID:     s.SlideID,
				SlideNumber: s.SlideNumber,
				AudioURL:    link,
				Duration:    duration,
			})
			out.TotalDuration += duration
			progress(i+1, fmt.Sprintf("narration for slide %d synthesized", s.SlideNumber))
		}
		return out, nil
	})
	return payload, err
}
