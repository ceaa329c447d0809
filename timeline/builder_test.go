package timeline

import (
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher writes the reference string into the destination file.
type stubFetcher struct {
	fetched []string
	failOn  string
}

func (s *stubFetcher) Fetch(ctx context.Context, ref, destPath string) error {
	if ref == s.failOn {
		return errors.New("boom")
	}
	s.fetched = append(s.fetched, ref)
	return os.WriteFile(destPath, []byte(ref), 0o644)
}

func TestParseResolution(t *testing.T) {
	assert.Equal(t, Resolution{Key: "720p", Width: 1280, Height: 720}, ParseResolution("720p"))
	assert.Equal(t, Resolution{Key: "4k", Width: 3840, Height: 2160}, ParseResolution("4K"))
	assert.Equal(t, DefaultResolution, ParseResolution("1080p"))
	assert.Equal(t, DefaultResolution, ParseResolution("8k"))
	assert.Equal(t, DefaultResolution, ParseResolution(""))
}

func TestBuilder_DurationConservation(t *testing.T) {
	fetcher := &stubFetcher{}
	b := NewBuilder(fetcher, nil)

	slides := []Slide{
		{Number: 3, Title: "Three", VisualRef: "img3"},
		{Number: 1, Title: "One", VisualRef: "img1"},
		{Number: 2, Title: "Two", VisualRef: "img2"},
	}
	audio := []Audio{
		{Number: 1, Ref: "a1", Duration: 4.0},
		{Number: 2, Ref: "a2", Duration: 6.5},
		{Number: 3, Ref: "a3", Duration: 5.0},
	}

	tl, err := b.Build(context.Background(), t.TempDir(), slides, audio, DefaultResolution)
	require.NoError(t, err)

	assert.Equal(t, 15.5, tl.TotalDuration())
	assert.Equal(t, tl.TotalDuration(), tl.AudioDuration())
	require.Len(t, tl.Visual, 3)
	require.Len(t, tl.Audio, 3)
	for i, want := range []int{1, 2, 3} {
		assert.Equal(t, want, tl.Visual[i].SlideNumber)
		assert.Equal(t, want, tl.Audio[i].SlideNumber)
	}
	assert.Equal(t, []string{"img1", "a1", "img2", "a2", "img3", "a3"}, fetcher.fetched)
	assert.Empty(t, tl.Unmatched)
}

func TestBuilder_PlaceholderFallback(t *testing.T) {
	b := NewBuilder(&stubFetcher{}, nil)

	tl, err := b.Build(context.Background(), t.TempDir(),
		[]Slide{{Number: 1, Title: "Agenda"}},
		[]Audio{{Number: 1, Ref: "a1", Duration: 3}},
		ParseResolution("720p"))
	require.NoError(t, err)
	require.Len(t, tl.Visual, 1)
	assert.True(t, tl.Visual[0].Placeholder)

	f, err := os.Open(tl.Visual[0].Path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 1280, cfg.Width)
	assert.Equal(t, 720, cfg.Height)
}

func TestBuilder_UnmatchedSlideIsSilent(t *testing.T) {
	b := NewBuilder(&stubFetcher{}, nil)

	tl, err := b.Build(context.Background(), t.TempDir(),
		[]Slide{{Number: 1, VisualRef: "img1"}, {Number: 4, VisualRef: "img4"}},
		[]Audio{{Number: 1, Ref: "a1", Duration: 2.5}, {Number: 2, Ref: "a2", Duration: 9}},
		DefaultResolution)
	require.NoError(t, err)

	assert.Equal(t, 2.5+DefaultDuration, tl.TotalDuration())
	require.Len(t, tl.Audio, 1, "no silence is synthesized for unmatched slides")
	assert.Equal(t, 1, tl.Audio[0].SlideNumber)
	assert.Equal(t, []int{4}, tl.Unmatched)
}

func TestBuilder_NonPositiveDurationUsesDefault(t *testing.T) {
	b := NewBuilder(&stubFetcher{}, nil)

	tl, err := b.Build(context.Background(), t.TempDir(),
		[]Slide{{Number: 1, VisualRef: "img1"}},
		[]Audio{{Number: 1, Ref: "a1", Duration: 0}},
		DefaultResolution)
	require.NoError(t, err)
	assert.Equal(t, DefaultDuration, tl.Visual[0].Duration)
	assert.Equal(t, DefaultDuration, tl.Audio[0].Duration)
}

func TestBuilder_FetchFailureAborts(t *testing.T) {
	b := NewBuilder(&stubFetcher{failOn: "a2"}, nil)

	_, err := b.Build(context.Background(), t.TempDir(),
		[]Slide{{Number: 1, VisualRef: "img1"}, {Number: 2, VisualRef: "img2"}},
		[]Audio{{Number: 1, Ref: "a1", Duration: 1}, {Number: 2, Ref: "a2", Duration: 1}},
		DefaultResolution)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slide 2 audio")
}

func TestWritePlaceholderSizes(t *testing.T) {
	for _, key := range []string{"720p", "1080p", "4k"} {
		res := ParseResolution(key)
		path := filepath.Join(t.TempDir(), key+".png")
		require.NoError(t, WritePlaceholder(path, res.Width, res.Height, "A rather long title that still has to fit on the frame"))

		f, err := os.Open(path)
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, res.Width, cfg.Width, key)
		assert.Equal(t, res.Height, cfg.Height, key)
	}
}

func TestRenderPlaceholderDrawsText(t *testing.T) {
	img := RenderPlaceholder(1280, 720, "")
	assert.Equal(t, placeholderBackground, img.RGBAAt(0, 0))

	found := false
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !found; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == placeholderText {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "expected the fallback title to be drawn")
}

func TestBuilder_RejectsDuplicateSlideNumbers(t *testing.T) {
	fetcher := &stubFetcher{}
	b := NewBuilder(fetcher, nil)

	_, err := b.Build(context.Background(), t.TempDir(),
		[]Slide{{Number: 1, VisualRef: "imgA"}, {Number: 1, VisualRef: "imgB"}},
		[]Audio{{Number: 1, Ref: "a1", Duration: 2}},
		DefaultResolution)
	require.ErrorIs(t, err, ErrDuplicateSlide)

	_, err = b.Build(context.Background(), t.TempDir(),
		[]Slide{{Number: 1, VisualRef: "imgA"}, {Number: 2, VisualRef: "imgB"}},
		[]Audio{{Number: 1, Ref: "a1", Duration: 2}, {Number: 1, Ref: "a2", Duration: 3}},
		DefaultResolution)
	require.ErrorIs(t, err, ErrDuplicateSlide)
	assert.Empty(t, fetcher.fetched)
}

func TestBuilder_WorkFilesAreDistinct(t *testing.T) {
	b := NewBuilder(&stubFetcher{}, nil)

	tl, err := b.Build(context.Background(), t.TempDir(),
		[]Slide{{Number: 2, VisualRef: "imgB"}, {Number: 1, VisualRef: "imgA"}},
		[]Audio{{Number: 1, Ref: "a1", Duration: 2}, {Number: 2, Ref: "a2", Duration: 3}},
		DefaultResolution)
	require.NoError(t, err)

	paths := map[string]bool{}
	for _, e := range append(append([]Entry{}, tl.Visual...), tl.Audio...) {
		assert.False(t, paths[e.Path], "path reused: %s", e.Path)
		paths[e.Path] = true
	}
	for i, want := range []string{"imgA", "imgB"} {
		data, err := os.ReadFile(tl.Visual[i].Path)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
	assert.Equal(t, 5.0, tl.TotalDuration())
}
