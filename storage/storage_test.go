package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type fakeGCS struct {
	mu     sync.Mutex
	paths  []string
	bodies []string
	status int
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.bodies = append(f.bodies, string(body))
	status := f.status
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"denied"}}`)
		return
	}
	_, _ = io.WriteString(w, `{"name":"projects/p1/audio/slide_1.mp3","bucket":"decks"}`)
}

func newTestStore(t *testing.T, fake *fakeGCS) *Store {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), Config{Bucket: "decks", PublicBase: "https://cdn.example.com/"}, nil,
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return s
}

func TestUnconfiguredStoreIsUnavailable(t *testing.T) {
	s, err := New(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.False(t, s.Available())

	res := s.Upload(context.Background(), "k", "audio/mpeg", strings.NewReader("x"))
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.False(t, res.Uploaded())
	assert.Empty(t, res.URL)

	var nilStore *Store
	assert.Equal(t, StatusUnavailable, nilStore.Upload(context.Background(), "k", "", nil).Status)
}

func TestUpload(t *testing.T) {
	fake := &fakeGCS{}
	s := newTestStore(t, fake)

	res := s.Upload(context.Background(), AudioKey("p1", 1), "audio/mpeg", strings.NewReader("ID3-audio-bytes"))
	require.True(t, res.Uploaded(), "%v", res.Err)
	assert.Equal(t, "https://cdn.example.com/decks/projects/p1/audio/slide_1.mp3", res.URL)

	require.Len(t, fake.paths, 1)
	assert.Contains(t, fake.paths[0], "/b/decks/o")
	assert.Contains(t, fake.bodies[0], "ID3-audio-bytes")
}

func TestUploadFailure(t *testing.T) {
	fake := &fakeGCS{status: http.StatusForbidden}
	s := newTestStore(t, fake)

	res := s.Upload(context.Background(), "projects/p1/video/x.mp4", "video/mp4", strings.NewReader("v"))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Error(t, res.Err)
	assert.Empty(t, res.URL)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "projects/p/slides/2/image_0.png", SlideImageKey("p", 2, 0, ".png"))
	assert.Equal(t, "projects/p/audio/slide_3.mp3", AudioKey("p", 3))
	assert.Equal(t, "projects/p/video/p_final.mp4", VideoKey("p", "p_final.mp4"))

	s := &Store{bucket: "b", publicBase: "https://x"}
	assert.Equal(t, "https://x/b/a%20b/c.png", s.PublicURL("a b/c.png"))
}
