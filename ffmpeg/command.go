package ffmpeg

import (
	"fmt"
	"strconv"
)

// Op names one of the fixed encoder operations.
type Op string

const (
	OpConcatVideo Op = "concat-video"
	OpConcatAudio Op = "concat-audio"
	OpMux         Op = "mux"
)

// Command is a fully built encoder invocation. Args never include the executable.
type Command struct {
	Op     Op
	Args   []string
	Output string
}

// VideoOptions controls the visual pass.
type VideoOptions struct {
	FPS    int
	Width  int
	Height int
	// Extra codec arguments inserted before the output path.
	Extra []string
}

// ConcatVideo turns a concat manifest of still images into a silent video.
// Frames are letterboxed to Width x Height so mixed-size slides share one geometry.
func ConcatVideo(manifest, output string, opts VideoOptions) Command {
	fps := opts.FPS
	if fps <= 0 {
		fps = 30
	}
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
	}
	if opts.Width > 0 && opts.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf(
			"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
			opts.Width, opts.Height, opts.Width, opts.Height,
		))
	}
	args = append(args,
		"-r", strconv.Itoa(fps),
		"-pix_fmt", "yuv420p",
		"-an",
	)
	args = append(args, opts.Extra...)
	args = append(args, output)
	return Command{Op: OpConcatVideo, Args: args, Output: output}
}

// ConcatAudio joins a concat manifest of narration clips into one AAC track.
func ConcatAudio(manifest, output string) Command {
	return Command{
		Op: OpConcatAudio,
		Args: []string{
			"-y",
			"-f", "concat",
			"-safe", "0",
			"-i", manifest,
			"-vn",
			"-c:a", "aac",
			output,
		},
		Output: output,
	}
}

// Mux combines the visual and audio tracks, stopping at the shorter input.
func Mux(video, audio, output string, format Format) Command {
	vcodec, acodec := format.Codecs()
	return Command{
		Op: OpMux,
		Args: []string{
			"-y",
			"-i", video,
			"-i", audio,
			"-c:v", vcodec,
			"-c:a", acodec,
			"-shortest",
			output,
		},
		Output: output,
	}
}

// Format is the output container.
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
)

// ParseFormat maps a request value to a container; empty means mp4.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatMP4:
		return FormatMP4, nil
	case FormatWebM:
		return FormatWebM, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", s)
	}
}

// Codecs returns the (video, audio) codec pair used by the mux pass.
func (f Format) Codecs() (string, string) {
	if f == FormatWebM {
		return "libvpx", "libopus"
	}
	return "copy", "aac"
}

// MimeType is the content type of the container.
func (f Format) MimeType() string {
	if f == FormatWebM {
		return "video/webm"
	}
	return "video/mp4"
}
