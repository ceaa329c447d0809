// Package script writes per-slide narration with Gemini.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"google.golang.org/genai"

	"slidecast/project"
)

const (
	DefaultTone     = "professional"
	DefaultLanguage = "ko"

	maxOutputTokens = 500
	maxKeywords     = 5
)

var (
	Tones     = []string{"professional", "friendly", "casual"}
	Languages = []string{"ko", "en"}
)

const systemPrompt = `You are an experienced IT and business strategy expert narrating a slide presentation.
- Be technically accurate while staying understandable to non-experts.
- Include practical examples and realistic advice.
- Keep a professional yet approachable tone.
- Each slide's narration should take roughly 30 to 60 seconds to speak.
- Write in a natural, conversational register.`

var toneScenarios = map[string]string{
	"professional": "This is a professional business presentation. Keep a confident, expert tone.",
	"friendly":     "This is a friendly educational presentation. Use a warm, easy-to-follow tone.",
	"casual":       "This is a casual presentation. Keep the tone relaxed and natural.",
}

var languageNames = map[string]string{
	"ko": "Korean",
	"en": "English",
}

type Options struct {
	Tone               string
	Language           string
	CustomInstructions string
}

// Normalize fills defaults for empty fields.
func (o Options) Normalize() Options {
	if o.Tone == "" {
		o.Tone = DefaultTone
	}
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
	return o
}

func ValidTone(tone string) bool         { return slices.Contains(Tones, tone) }
func ValidLanguage(language string) bool { return slices.Contains(Languages, language) }

// contentFunc sends one prompt to the model and returns its text.
type contentFunc func(ctx context.Context, prompt string) (string, error)

type Generator struct {
	model    string
	generate contentFunc
	logger   *slog.Logger
}

// NewGemini returns a Gemini-backed generator. Without an API key every
// slide falls back to its own title and body text.
func NewGemini(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{model: model, logger: logger}
	if apiKey == "" {
		logger.Warn("no Gemini API key configured; scripts fall back to slide text")
		return g, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		Temperature:       genai.Ptr[float32](0.7),
		MaxOutputTokens:   maxOutputTokens,
	}
	g.generate = func(ctx context.Context, prompt string) (string, error) {
		result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
		if err != nil {
			return "", fmt.Errorf("generate content: %w", err)
		}
		if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
			var text strings.Builder
			for _, part := range result.Candidates[0].Content.Parts {
				text.WriteString(part.Text)
			}
			return text.String(), nil
		}
		return "", errors.New("empty response from Gemini")
	}
	return g, nil
}

// GenerateSlide writes the narration for one slide. Model failures degrade to
// the slide's own text; only context cancellation is returned as an error.
func (g *Generator) GenerateSlide(ctx context.Context, slide project.Slide, opts Options) (string, error) {
	if g.generate == nil {
		return fallback(slide), nil
	}

	text, err := g.generate(ctx, buildPrompt(slide, opts.Normalize()))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		g.logger.Warn("script generation failed; using slide text",
			"slide", slide.SlideNumber,
			"model", g.model,
			"error", err,
		)
		return fallback(slide), nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback(slide), nil
	}
	return text, nil
}

func buildPrompt(slide project.Slide, opts Options) string {
	scenario, ok := toneScenarios[opts.Tone]
	if !ok {
		scenario = toneScenarios[DefaultTone]
	}
	language, ok := languageNames[opts.Language]
	if !ok {
		language = strings.ToUpper(opts.Language)
	}

	var b strings.Builder
	b.WriteString("Write the narration script for the following slide.\n\n")
	fmt.Fprintf(&b, "Slide number: %d\n", slide.SlideNumber)
	fmt.Fprintf(&b, "Slide title: %s\n", slide.Title)
	fmt.Fprintf(&b, "Slide content: %s\n", slide.Content)
	if slide.Notes != "" {
		fmt.Fprintf(&b, "Speaker notes: %s\n", slide.Notes)
	}
	b.WriteString("\nRequirements:\n")
	b.WriteString(scenario + "\n")
	b.WriteString("- About 30 to 60 seconds of spoken narration.\n")
	fmt.Fprintf(&b, "- Write in %s.\n", language)
	b.WriteString("- Open and close so it flows naturally from the previous slide.\n")
	b.WriteString("- Explain objectively without first- or second-person address.\n")
	if opts.CustomInstructions != "" {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(opts.CustomInstructions))
	}
	b.WriteString("\nReturn only the script, with no other commentary.")
	return b.String()
}

func fallback(slide project.Slide) string {
	title := strings.TrimSpace(slide.Title)
	content := strings.TrimSpace(slide.Content)
	switch {
	case title != "" && content != "":
		return title + ". " + content
	case title != "":
		return title + "."
	case content != "":
		return content
	default:
		return fmt.Sprintf("Slide %d.", slide.SlideNumber)
	}
}

// EstimateDuration approximates spoken seconds at half a second per
// non-whitespace character, clamped to [5, 120].
func EstimateDuration(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return min(max(n/2, 5), 120)
}

// Keywords returns up to five distinct words longer than two characters, in order of appearance.
func Keywords(text string) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		w = strings.TrimFunc(w, unicode.IsPunct)
		if len([]rune(w)) <= 2 || slices.Contains(out, w) {
			continue
		}
		out = append(out, w)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
