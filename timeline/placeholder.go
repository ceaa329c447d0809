package timeline

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	placeholderBackground = color.RGBA{R: 15, G: 23, B: 42, A: 255}
	placeholderText       = color.RGBA{R: 226, G: 232, B: 240, A: 255}
)

const placeholderMargin = 20

// WritePlaceholder renders a solid slide with the title centered and saves it as PNG.
func WritePlaceholder(path string, width, height int, title string) error {
	img := RenderPlaceholder(width, height, title)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create placeholder: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode placeholder: %w", err)
	}
	return f.Close()
}

// RenderPlaceholder draws the placeholder in memory.
func RenderPlaceholder(width, height int, title string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(placeholderBackground), image.Point{}, draw.Src)

	text := strings.TrimSpace(title)
	if text == "" {
		text = "Slide"
	}

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()
	textHeight := face.Metrics().Height.Ceil()
	if textWidth == 0 {
		return img
	}

	// The bitmap face is tiny; upscale it with the frame height, but keep it inside the margins.
	scale := height / 270
	if fit := (width - 2*placeholderMargin) / textWidth; fit < scale {
		scale = fit
	}
	if scale < 1 {
		scale = 1
	}

	label := image.NewRGBA(image.Rect(0, 0, textWidth, textHeight))
	d := &font.Drawer{
		Dst:  label,
		Src:  image.NewUniform(placeholderText),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	scaledW, scaledH := textWidth*scale, textHeight*scale
	x := max((width-scaledW)/2, placeholderMargin)
	y := max((height-scaledH)/2, placeholderMargin)
	target := image.Rect(x, y, x+scaledW, y+scaledH).Intersect(img.Bounds())
	draw.NearestNeighbor.Scale(img, target, label, label.Bounds(), draw.Over, nil)
	return img
}
