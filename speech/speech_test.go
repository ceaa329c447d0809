package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize(t *testing.T) {
	var got synthesisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL+"/v1/", nil)
	audio, err := c.Synthesize(context.Background(), "hello there", "voice-1", 1.25)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3fake"), audio)
	assert.Equal(t, "hello there", got.Text)
	assert.Equal(t, 1.25, got.VoiceSettings.Speed)
	assert.Equal(t, 0.75, got.VoiceSettings.SimilarityBoost)
}

func TestSynthesizeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL, nil)
	_, err := c.Synthesize(context.Background(), "text", "v", 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "quota exceeded", apiErr.Body)

	_, err = c.Synthesize(context.Background(), "  \n", "v", 1)
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = NewClient("", srv.URL, nil).Synthesize(context.Background(), "text", "v", 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, 1.0, EstimateDuration(""))
	assert.Equal(t, 1.0, EstimateDuration("a b"))
	assert.Equal(t, 2.5, EstimateDuration("안녕하세요"))
	assert.Equal(t, 4.5, EstimateDuration("four\nword s"))
}

func TestCatalogResolve(t *testing.T) {
	c := DefaultCatalog()
	require.Len(t, c.Voices, 4)

	assert.Equal(t, "professional-female-korean", c.Resolve("female_professional_kr", ""))
	assert.Equal(t, "raw-provider-id", c.Resolve("raw-provider-id", ""))
	assert.Equal(t, "friendly-male-korean", c.Resolve("", "Friendly Male (Korean)"))
	assert.Equal(t, "professional-male-korean", c.Resolve("", "nobody"))
	assert.Equal(t, "professional-male-korean", c.Resolve("", ""))
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("voices:\n  - key: a\n    voice_id: id-a\n    name: A\n"), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "a", c.Default)
	assert.Equal(t, "id-a", c.Resolve("", ""))

	_, err = ParseCatalog([]byte("voices: []"))
	assert.Error(t, err)
	_, err = ParseCatalog([]byte("default: zz\nvoices:\n  - key: a\n    voice_id: x\n"))
	assert.Error(t, err)
}
