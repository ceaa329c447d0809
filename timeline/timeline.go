// Package timeline turns ordered slides and their narration clips into the two
// parallel (asset, duration) sequences consumed by the render engine.
package timeline

import "strings"

// DefaultDuration is used for slides without a matched narration clip.
const DefaultDuration = 5.0

// Resolution is an output frame size selected by key.
type Resolution struct {
	Key    string
	Width  int
	Height int
}

var resolutions = map[string]Resolution{
	"720p":  {Key: "720p", Width: 1280, Height: 720},
	"1080p": {Key: "1080p", Width: 1920, Height: 1080},
	"4k":    {Key: "4k", Width: 3840, Height: 2160},
}

// DefaultResolution is 1080p.
var DefaultResolution = resolutions["1080p"]

// ParseResolution maps a key to a frame size; unknown keys fall back to 1080p.
func ParseResolution(key string) Resolution {
	if res, ok := resolutions[strings.ToLower(strings.TrimSpace(key))]; ok {
		return res
	}
	return DefaultResolution
}

// Slide is the visual side of one slide.
type Slide struct {
	Number    int
	Title     string
	VisualRef string
}

// Audio is a narration clip matched to a slide by number.
type Audio struct {
	Number   int
	Ref      string
	Duration float64
}

// Entry is one resolved (local file, duration) pair.
type Entry struct {
	SlideNumber int
	Path        string
	Duration    float64
	Placeholder bool
}

// Timeline holds the visual and audio tracks.
type Timeline struct {
	Visual []Entry
	Audio  []Entry
	// Unmatched lists slide numbers that have no narration clip. Their
	// segments contribute to the visual track only.
	Unmatched []int
}

// TotalDuration is the sum of the visual-track durations.
func (t *Timeline) TotalDuration() float64 {
	var total float64
	for _, e := range t.Visual {
		total += e.Duration
	}
	return total
}

// AudioDuration is the sum of the audio-track durations.
func (t *Timeline) AudioDuration() float64 {
	var total float64
	for _, e := range t.Audio {
		total += e.Duration
	}
	return total
}
