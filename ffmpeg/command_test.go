package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcatVideo(t *testing.T) {
	cmd := ConcatVideo("/w/images.txt", "/w/slides.mp4", VideoOptions{FPS: 24, Width: 1280, Height: 720, Extra: []string{"-preset", "fast"}})

	assert.Equal(t, OpConcatVideo, cmd.Op)
	assert.Equal(t, "/w/slides.mp4", cmd.Output)
	assert.Equal(t, []string{
		"-y", "-f", "concat", "-safe", "0", "-i", "/w/images.txt",
		"-vf", "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2,setsar=1",
		"-r", "24", "-pix_fmt", "yuv420p", "-an",
		"-preset", "fast",
		"/w/slides.mp4",
	}, cmd.Args)
}

func TestConcatVideoDefaultsFrameRate(t *testing.T) {
	cmd := ConcatVideo("m.txt", "v.mp4", VideoOptions{})
	assert.Contains(t, cmd.Args, "30")
	assert.NotContains(t, cmd.Args, "-vf")
	assert.Equal(t, "v.mp4", cmd.Args[len(cmd.Args)-1])
}

func TestConcatAudio(t *testing.T) {
	cmd := ConcatAudio("/w/audio.txt", "/w/audio.m4a")
	assert.Equal(t, OpConcatAudio, cmd.Op)
	assert.Equal(t, []string{"-y", "-f", "concat", "-safe", "0", "-i", "/w/audio.txt", "-vn", "-c:a", "aac", "/w/audio.m4a"}, cmd.Args)
}

func TestMuxCodecsByFormat(t *testing.T) {
	mp4 := Mux("v.mp4", "a.m4a", "out.mp4", FormatMP4)
	assert.Equal(t, OpMux, mp4.Op)
	assert.Equal(t, []string{"-y", "-i", "v.mp4", "-i", "a.m4a", "-c:v", "copy", "-c:a", "aac", "-shortest", "out.mp4"}, mp4.Args)

	webm := Mux("v.mp4", "a.m4a", "out.webm", FormatWebM)
	assert.Equal(t, []string{"-y", "-i", "v.mp4", "-i", "a.m4a", "-c:v", "libvpx", "-c:a", "libopus", "-shortest", "out.webm"}, webm.Args)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatMP4, f)

	f, err = ParseFormat("webm")
	require.NoError(t, err)
	assert.Equal(t, FormatWebM, f)
	assert.Equal(t, "video/webm", f.MimeType())

	_, err = ParseFormat("avi")
	assert.Error(t, err)
}
