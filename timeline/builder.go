package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// ErrDuplicateSlide is returned when two slides or two clips share a slide number.
var ErrDuplicateSlide = errors.New("duplicate slide number")

// Fetcher resolves an asset reference into a local file.
type Fetcher interface {
	Fetch(ctx context.Context, ref, destPath string) error
}

// Builder resolves slide visuals and narration clips into timelines.
type Builder struct {
	fetcher Fetcher
	logger  *slog.Logger
}

func NewBuilder(fetcher Fetcher, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{fetcher: fetcher, logger: logger}
}

// Build walks slides in ascending number order and writes resolved assets under workDir.
// Any fetch failure is returned as-is and aborts the build.
func (b *Builder) Build(ctx context.Context, workDir string, slides []Slide, audio []Audio, res Resolution) (*Timeline, error) {
	imagesDir := filepath.Join(workDir, "images")
	audioDir := filepath.Join(workDir, "audio")
	for _, dir := range []string{imagesDir, audioDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	seen := make(map[int]bool, len(slides))
	for _, slide := range slides {
		if seen[slide.Number] {
			return nil, fmt.Errorf("%w: slide %d", ErrDuplicateSlide, slide.Number)
		}
		seen[slide.Number] = true
	}

	ordered := make([]Slide, len(slides))
	copy(ordered, slides)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	byNumber := make(map[int]Audio, len(audio))
	for _, a := range audio {
		if _, dup := byNumber[a.Number]; dup {
			return nil, fmt.Errorf("%w: audio for slide %d", ErrDuplicateSlide, a.Number)
		}
		byNumber[a.Number] = a
	}

	tl := &Timeline{}
	for i, slide := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		visual := Entry{
			SlideNumber: slide.Number,
			Path:        filepath.Join(imagesDir, fmt.Sprintf("%03d_slide_%d.png", i, slide.Number)),
			Duration:    DefaultDuration,
		}
		if slide.VisualRef != "" {
			if err := b.fetcher.Fetch(ctx, slide.VisualRef, visual.Path); err != nil {
				return nil, fmt.Errorf("slide %d visual: %w", slide.Number, err)
			}
		} else {
			if err := WritePlaceholder(visual.Path, res.Width, res.Height, slide.Title); err != nil {
				return nil, fmt.Errorf("slide %d placeholder: %w", slide.Number, err)
			}
			visual.Placeholder = true
		}

		clip, matched := byNumber[slide.Number]
		if matched && clip.Duration > 0 {
			visual.Duration = clip.Duration
		}
		tl.Visual = append(tl.Visual, visual)

		if !matched {
			tl.Unmatched = append(tl.Unmatched, slide.Number)
			b.logger.Warn("slide has no narration; its segment will be silent", "slide", slide.Number)
			continue
		}
		audioEntry := Entry{
			SlideNumber: slide.Number,
			Path:        filepath.Join(audioDir, fmt.Sprintf("%03d_slide_%d.mp3", i, slide.Number)),
			Duration:    visual.Duration,
		}
		if err := b.fetcher.Fetch(ctx, clip.Ref, audioEntry.Path); err != nil {
			return nil, fmt.Errorf("slide %d audio: %w", slide.Number, err)
		}
		tl.Audio = append(tl.Audio, audioEntry)
	}
	return tl, nil
}
