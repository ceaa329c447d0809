package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"slidecast/ffmpeg"
	"slidecast/timeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder records commands and writes a small file at each output path.
type fakeEncoder struct {
	commands []ffmpeg.Command
	failOp   ffmpeg.Op
}

func (f *fakeEncoder) Run(ctx context.Context, cmd ffmpeg.Command) (string, error) {
	f.commands = append(f.commands, cmd)
	if cmd.Op == f.failOp {
		return "broken pipe", &ffmpeg.EncodeError{Op: cmd.Op, ExitCode: 1, Output: "broken pipe"}
	}
	return "", os.WriteFile(cmd.Output, []byte("media:"+string(cmd.Op)), 0o644)
}

type copyFetcher struct{}

func (copyFetcher) Fetch(ctx context.Context, ref, destPath string) error {
	return os.WriteFile(destPath, []byte(ref), 0o644)
}

func newTestEngine(t *testing.T, enc *fakeEncoder) *Engine {
	return NewEngine(timeline.NewBuilder(copyFetcher{}, nil), enc, Options{TempRoot: t.TempDir()})
}

func testRequest(format ffmpeg.Format) Request {
	return Request{
		ProjectID: "proj_abc",
		Slides: []timeline.Slide{
			{Number: 1, Title: "Intro", VisualRef: "img1"},
			{Number: 2, Title: "Body"},
			{Number: 3, Title: "Outro", VisualRef: "img3"},
		},
		Audio: []timeline.Audio{
			{Number: 1, Ref: "a1", Duration: 4.0},
			{Number: 2, Ref: "a2", Duration: 6.5},
			{Number: 3, Ref: "a3", Duration: 5.0},
		},
		Resolution: timeline.ParseResolution("720p"),
		FPS:        30,
		Format:     format,
	}
}

func TestEngine_Render(t *testing.T) {
	enc := &fakeEncoder{}
	e := newTestEngine(t, enc)

	var passes []int
	req := testRequest(ffmpeg.FormatMP4)
	req.Progress = func(done int, detail string) { passes = append(passes, done) }

	out, err := e.Render(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, Passes}, passes)

	assert.Equal(t, 15.5, out.Duration)
	assert.Equal(t, int64(len("media:mux")), out.Size)
	assert.Equal(t, filepath.Join(out.WorkDir, "proj_abc_final.mp4"), out.Path)
	assert.True(t, strings.HasPrefix(filepath.Base(out.WorkDir), WorkDirPrefix+"proj_abc_"))

	require.Len(t, enc.commands, 3)
	assert.Equal(t, ffmpeg.OpConcatVideo, enc.commands[0].Op)
	assert.Equal(t, ffmpeg.OpConcatAudio, enc.commands[1].Op)
	assert.Equal(t, ffmpeg.OpMux, enc.commands[2].Op)
	assert.Contains(t, enc.commands[0].Args, "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2,setsar=1")
	assert.Contains(t, enc.commands[2].Args, "copy")

	manifest, err := os.ReadFile(filepath.Join(out.WorkDir, "images.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(manifest)), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "duration 4", lines[1])
	assert.Equal(t, "duration 6.5", lines[3])
	assert.Equal(t, lines[4], lines[6], "last file is listed again without a duration")
}

func TestEngine_RenderWebM(t *testing.T) {
	enc := &fakeEncoder{}
	out, err := newTestEngine(t, enc).Render(context.Background(), testRequest(ffmpeg.FormatWebM))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out.Path, "_final.webm"))
	assert.Contains(t, enc.commands[2].Args, "libvpx")
	assert.Contains(t, enc.commands[2].Args, "libopus")
}

func TestEngine_PassFailureKeepsWorkDir(t *testing.T) {
	enc := &fakeEncoder{failOp: ffmpeg.OpConcatAudio}
	e := newTestEngine(t, enc)

	_, err := e.Render(context.Background(), testRequest(ffmpeg.FormatMP4))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ffmpeg.ErrEncoding))
	assert.Contains(t, err.Error(), "audio pass")
	assert.Len(t, enc.commands, 2, "mux must not run after a failed pass")

	// The visual pass output stays behind for diagnosis.
	matches, err := filepath.Glob(filepath.Join(e.tempRoot, WorkDirPrefix+"*", "slides.mp4"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestEngine_NoAudioMatches(t *testing.T) {
	enc := &fakeEncoder{}
	req := testRequest(ffmpeg.FormatMP4)
	for i := range req.Audio {
		req.Audio[i].Number += 10
	}

	_, err := newTestEngine(t, enc).Render(context.Background(), req)
	require.ErrorIs(t, err, ErrNoAudio)
	assert.Empty(t, enc.commands)
}

func TestWriteManifestEscapesQuotes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, WriteManifest(path, []timeline.Entry{{Path: "/w/it's.png", Duration: 2}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file '/w/it'\\''s.png'\nduration 2\nfile '/w/it'\\''s.png'\n", string(data))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "proj_1-a", SafeName("proj_1-a"))
	assert.Equal(t, "___etc_passwd", SafeName("../etc/passwd"))
	assert.Equal(t, "project", SafeName(""))
}

func TestJanitorSweep(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, WorkDirPrefix+"old")
	fresh := filepath.Join(root, WorkDirPrefix+"new")
	other := filepath.Join(root, "keep-me")
	for _, dir := range []string{stale, fresh, other} {
		require.NoError(t, os.Mkdir(dir, 0o755))
	}
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	removed, err := Janitor{Root: root, MaxAge: time.Hour}.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
}
