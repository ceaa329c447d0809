package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"slidecast/render"
)

// MediaRoute is where the HTTP layer serves MediaDir.
const MediaRoute = "/media"

// mediaDir is the local fallback for artifacts the object store did not take.
type mediaDir struct {
	root    string
	baseURL string
}

func newMediaDir(root, baseURL string) mediaDir {
	return mediaDir{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// rel is the slash-separated location of a project artifact below root.
func (m mediaDir) rel(projectID, name string) string {
	return path.Join("projects", render.SafeName(projectID), name)
}

func (m mediaDir) url(rel string) string {
	return m.baseURL + MediaRoute + "/" + rel
}

// localize maps a link produced by url back to its file under root. Other
// references are returned unchanged.
func (m mediaDir) localize(ref string) string {
	prefix := m.baseURL + MediaRoute + "/"
	rest, ok := strings.CutPrefix(ref, prefix)
	if !ok {
		return ref
	}
	rest, err := url.PathUnescape(rest)
	if err != nil {
		return ref
	}
	clean := path.Clean("/" + rest)
	return filepath.Join(m.root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
}

func (m mediaDir) write(rel string, body io.Reader) error {
	dst := filepath.Join(m.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".publish-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// publishBytes stores data under key in the object store, falling back to
// the local media directory when the store is unavailable or rejects it.
func (o *Orchestrator) publishBytes(ctx context.Context, projectID, key, name, contentType string, data []byte) (string, error) {
	return o.publish(ctx, projectID, key, name, contentType, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

func (o *Orchestrator) publishFile(ctx context.Context, projectID, key, contentType, src string) (string, error) {
	return o.publish(ctx, projectID, key, filepath.Base(src), contentType, func() (io.ReadCloser, error) {
		return os.Open(src)
	})
}

func (o *Orchestrator) publish(ctx context.Context, projectID, key, name, contentType string, open func() (io.ReadCloser, error)) (string, error) {
	if o.uploader != nil {
		body, err := open()
		if err != nil {
			return "", err
		}
		res := o.uploader.Upload(ctx, key, contentType, body)
		body.Close()
		if res.Uploaded() {
			return res.URL, nil
		}
		if res.Err != nil {
			o.logger.Warn("object store upload failed; serving locally",
				"project_id", projectID,
				"key", key,
				"error", res.Err,
			)
		}
	}

	body, err := open()
	if err != nil {
		return "", err
	}
	defer body.Close()
	rel := o.media.rel(projectID, name)
	if err := o.media.write(rel, body); err != nil {
		return "", fmt.Errorf("publish %s locally: %w", name, err)
	}
	return o.media.url(rel), nil
}
