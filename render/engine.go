// Package render assembles slide visuals and narration into one video file
// through three encoder passes: visual track, audio track, and final mux.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"slidecast/ffmpeg"
	"slidecast/timeline"
)

const (
	// WorkDirPrefix names every per-render temporary directory.
	WorkDirPrefix = "slidecast_render_"
	// Passes is the number of encoder passes in one render.
	Passes = 3
)

// ErrNoAudio is returned when no narration clip matches any slide.
var ErrNoAudio = errors.New("no narration clip matches any slide")

// Encoder runs a single encoder invocation.
type Encoder interface {
	Run(ctx context.Context, cmd ffmpeg.Command) (string, error)
}

// TimelineBuilder resolves assets into visual and audio timelines.
type TimelineBuilder interface {
	Build(ctx context.Context, workDir string, slides []timeline.Slide, audio []timeline.Audio, res timeline.Resolution) (*timeline.Timeline, error)
}

type Request struct {
	ProjectID  string
	Slides     []timeline.Slide
	Audio      []timeline.Audio
	Resolution timeline.Resolution
	FPS        int
	Format     ffmpeg.Format
	// Progress, if set, is called after each completed pass.
	Progress func(done int, detail string)
}

type Output struct {
	Path string
	// Duration is the visual-track total, independent of mux truncation.
	Duration  float64
	Size      int64
	WorkDir   string
	Unmatched []int
}

type Options struct {
	// TempRoot is where work directories are created; empty means os.TempDir().
	TempRoot  string
	VideoArgs []string
	Logger    *slog.Logger
}

type Engine struct {
	builder   TimelineBuilder
	encoder   Encoder
	tempRoot  string
	videoArgs []string
	logger    *slog.Logger
}

func NewEngine(builder TimelineBuilder, encoder Encoder, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		builder:   builder,
		encoder:   encoder,
		tempRoot:  opts.TempRoot,
		videoArgs: opts.VideoArgs,
		logger:    logger,
	}
}

// Render runs all three passes in a fresh work directory. On failure the work
// directory is left in place for diagnosis and its path is part of the error.
func (e *Engine) Render(ctx context.Context, req Request) (*Output, error) {
	if e.tempRoot != "" {
		if err := os.MkdirAll(e.tempRoot, 0o755); err != nil {
			return nil, fmt.Errorf("create render root: %w", err)
		}
	}
	workDir, err := os.MkdirTemp(e.tempRoot, WorkDirPrefix+SafeName(req.ProjectID)+"_")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	logger := e.logger.With("project_id", req.ProjectID, "work_dir", workDir)

	res := req.Resolution
	if res.Width == 0 || res.Height == 0 {
		res = timeline.DefaultResolution
	}
	format := req.Format
	if format == "" {
		format = ffmpeg.FormatMP4
	}

	tl, err := e.builder.Build(ctx, workDir, req.Slides, req.Audio, res)
	if err != nil {
		return nil, fmt.Errorf("build timeline (work dir %s): %w", workDir, err)
	}
	if len(tl.Visual) == 0 {
		return nil, fmt.Errorf("build timeline: no slides to render")
	}
	if len(tl.Audio) == 0 {
		return nil, ErrNoAudio
	}
	logger.Info("timeline built",
		"slides", len(tl.Visual),
		"clips", len(tl.Audio),
		"duration", tl.TotalDuration(),
		"unmatched", tl.Unmatched,
	)

	// Visual pass
	imagesList := filepath.Join(workDir, "images.txt")
	if err := WriteManifest(imagesList, tl.Visual); err != nil {
		return nil, err
	}
	slidesVideo := filepath.Join(workDir, "slides.mp4")
	if _, err := e.encoder.Run(ctx, ffmpeg.ConcatVideo(imagesList, slidesVideo, ffmpeg.VideoOptions{
		FPS:    req.FPS,
		Width:  res.Width,
		Height: res.Height,
		Extra:  e.videoArgs,
	})); err != nil {
		return nil, fmt.Errorf("visual pass (work dir %s): %w", workDir, err)
	}
	req.report(1, "visual pass complete")

	// Audio pass
	audioList := filepath.Join(workDir, "audio.txt")
	if err := WriteManifest(audioList, tl.Audio); err != nil {
		return nil, err
	}
	audioTrack := filepath.Join(workDir, "audio.m4a")
	if _, err := e.encoder.Run(ctx, ffmpeg.ConcatAudio(audioList, audioTrack)); err != nil {
		return nil, fmt.Errorf("audio pass (work dir %s): %w", workDir, err)
	}
	req.report(2, "audio pass complete")

	// Mux pass
	outputPath := filepath.Join(workDir, fmt.Sprintf("%s_final.%s", SafeName(req.ProjectID), format))
	if _, err := e.encoder.Run(ctx, ffmpeg.Mux(slidesVideo, audioTrack, outputPath, format)); err != nil {
		return nil, fmt.Errorf("mux pass (work dir %s): %w", workDir, err)
	}
	req.report(3, "mux pass complete")

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("stat rendered video: %w", err)
	}

	out := &Output{
		Path:      outputPath,
		Duration:  tl.TotalDuration(),
		Size:      info.Size(),
		WorkDir:   workDir,
		Unmatched: tl.Unmatched,
	}
	logger.Info("render complete", "output", outputPath, "bytes", out.Size, "duration", out.Duration)
	return out, nil
}

func (r Request) report(done int, detail string) {
	if r.Progress != nil {
		r.Progress(done, detail)
	}
}

// WriteManifest writes a concat-demuxer list. The last file is repeated without a
// duration so the final segment keeps its length at end of input.
func WriteManifest(path string, entries []timeline.Entry) error {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "file '%s'\n", escapeQuote(filepath.ToSlash(e.Path)))
		fmt.Fprintf(&b, "duration %s\n", strconv.FormatFloat(e.Duration, 'f', -1, 64))
	}
	if len(entries) > 0 {
		fmt.Fprintf(&b, "file '%s'\n", escapeQuote(filepath.ToSlash(entries[len(entries)-1].Path)))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", filepath.Base(path), err)
	}
	return nil
}

func escapeQuote(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

// SafeName reduces an opaque id to characters that are safe in file names.
func SafeName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "project"
	}
	return b.String()
}
