package project

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the stage-specific result of a completed stage. The set of
// implementations is closed: one per stage.
type Payload interface {
	Stage() Stage
	isPayload()
}

type Slide struct {
	SlideID     string   `json:"slideId"`
	SlideNumber int      `json:"slideNumber"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	ImageURLs   []string `json:"imageUrls"`
	Notes       string   `json:"notes,omitempty"`
}

type Metadata struct {
	Title     string `json:"pptTitle,omitempty"`
	Author    string `json:"pptAuthor,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// ParsePayload is the result of the parsing stage.
type ParsePayload struct {
	TotalSlides   int      `json:"totalSlides"`
	Slides        []Slide  `json:"slides"`
	ExtractedText string   `json:"extractedText"`
	Metadata      Metadata `json:"metadata"`
}

type Script struct {
	SlideID     string   `json:"slideId"`
	SlideNumber int      `json:"slideNumber"`
	ScriptText  string   `json:"scriptText"`
	Duration    int      `json:"duration"`
	Keywords    []string `json:"keywords,omitempty"`
}

// ScriptPayload is the result of the scripting stage.
type ScriptPayload struct {
	Scripts       []Script `json:"scripts"`
	TotalDuration int      `json:"totalDuration"`
}

type AudioItem struct {
	SlideID     string  `json:"slideId"`
	SlideNumber int     `json:"slideNumber"`
	AudioURL    string  `json:"audioUrl"`
	Duration    float64 `json:"duration"`
}

// SynthesisPayload is the result of the voice-synthesis stage.
type SynthesisPayload struct {
	AudioItems    []AudioItem `json:"audioUrls"`
	TotalDuration float64     `json:"totalDuration"`
}

// RenderPayload describes the final video.
type RenderPayload struct {
	VideoURL     string    `json:"videoUrl"`
	VideoSize    int64     `json:"videoSize"`
	Duration     float64   `json:"duration"`
	Resolution   string    `json:"resolution"`
	OutputFormat string    `json:"outputFormat"`
	CompletedAt  time.Time `json:"completedAt"`
}

func (ParsePayload) Stage() Stage     { return StageParsing }
func (ScriptPayload) Stage() Stage    { return StageScripting }
func (SynthesisPayload) Stage() Stage { return StageSynthesis }
func (RenderPayload) Stage() Stage    { return StageRendering }

func (ParsePayload) isPayload()     {}
func (ScriptPayload) isPayload()    {}
func (SynthesisPayload) isPayload() {}
func (RenderPayload) isPayload()    {}

// StageResult is the recorded outcome of one stage.
type StageResult struct {
	Stage       Stage        `json:"stage"`
	Status      ResultStatus `json:"status"`
	Data        Payload      `json:"data"`
	Error       string       `json:"error"`
	CompletedAt time.Time    `json:"completedAt"`
}

// Completed reports whether the result is an authoritative cache entry.
func (r StageResult) Completed() bool {
	return r.Status == ResultCompleted
}

// PayloadAs returns the result payload as its concrete stage type.
func PayloadAs[T Payload](r StageResult) (T, bool) {
	v, ok := r.Data.(T)
	return v, ok
}

func (r *StageResult) UnmarshalJSON(b []byte) error {
	type plain StageResult
	var aux struct {
		plain
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = StageResult(aux.plain)

	payload, err := decodePayload(r.Stage, aux.Data)
	if err != nil {
		return fmt.Errorf("stage %s payload: %w", r.Stage, err)
	}
	r.Data = payload
	return nil
}

func decodePayload(stage Stage, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch stage {
	case StageParsing:
		var p ParsePayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case StageScripting:
		var p ScriptPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case StageSynthesis:
		var p SynthesisPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	case StageRendering:
		var p RenderPayload
		err := json.Unmarshal(raw, &p)
		return p, err
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}
