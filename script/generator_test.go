package script

import (
	"context"
	"errors"
	"strings"
	"testing"

	"slidecast/project"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSlide(t *testing.T) {
	var prompt string
	g := &Generator{
		model: "test",
		generate: func(ctx context.Context, p string) (string, error) {
			prompt = p
			return "  Cloud costs fall when workloads scale down.  ", nil
		},
	}
	slide := project.Slide{SlideNumber: 2, Title: "FinOps", Content: "Rightsizing", Notes: "mention spot"}

	text, err := g.GenerateSlide(context.Background(), slide, Options{Tone: "casual", Language: "en", CustomInstructions: "Mention the Q3 numbers."})
	require.NoError(t, err)
	assert.Equal(t, "Cloud costs fall when workloads scale down.", text)

	assert.Contains(t, prompt, "Slide number: 2")
	assert.Contains(t, prompt, "Slide title: FinOps")
	assert.Contains(t, prompt, "Speaker notes: mention spot")
	assert.Contains(t, prompt, toneScenarios["casual"])
	assert.Contains(t, prompt, "Write in English.")
	assert.Contains(t, prompt, "- Mention the Q3 numbers.")
}

func TestGenerateSlideDefaults(t *testing.T) {
	var prompt string
	g := &Generator{generate: func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "ok", nil
	}}
	_, err := g.GenerateSlide(context.Background(), project.Slide{SlideNumber: 1}, Options{})
	require.NoError(t, err)
	assert.Contains(t, prompt, toneScenarios[DefaultTone])
	assert.Contains(t, prompt, "Write in Korean.")
}

func TestGenerateSlideFallback(t *testing.T) {
	failing := &Generator{generate: func(ctx context.Context, p string) (string, error) {
		return "", errors.New("503 unavailable")
	}}
	text, err := failing.GenerateSlide(context.Background(), project.Slide{Title: "Intro", Content: "Agenda"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Intro. Agenda", text)

	offline := &Generator{}
	text, err = offline.GenerateSlide(context.Background(), project.Slide{SlideNumber: 4}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Slide 4.", text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = failing.GenerateSlide(ctx, project.Slide{Title: "x"}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGeminiWithoutKey(t *testing.T) {
	g, err := NewGemini(context.Background(), "", "gemini-2.5-flash", nil)
	require.NoError(t, err)
	text, err := g.GenerateSlide(context.Background(), project.Slide{Title: "Only title"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Only title.", text)
}

func TestValidation(t *testing.T) {
	assert.True(t, ValidTone("friendly"))
	assert.False(t, ValidTone("angry"))
	assert.True(t, ValidLanguage("en"))
	assert.False(t, ValidLanguage("fr"))
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, 5, EstimateDuration("short"))
	assert.Equal(t, 10, EstimateDuration(strings.Repeat("가", 20)))
	assert.Equal(t, 10, EstimateDuration(strings.Repeat("ab ", 10)))
	assert.Equal(t, 120, EstimateDuration(strings.Repeat("x", 1000)))
}

func TestKeywords(t *testing.T) {
	assert.Equal(t,
		[]string{"Kubernetes", "clusters", "scale", "and", "nodes"},
		Keywords("Kubernetes clusters scale, and nodes scale automatically with demand."),
	)
	assert.Empty(t, Keywords("a an to"))
}
