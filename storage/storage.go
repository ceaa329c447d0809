// Package storage publishes generated artifacts to Google Cloud Storage.
//
// Every upload returns a tagged Result instead of an error so callers decide
// explicitly what to do when the object store is not configured or rejects
// the upload.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"
)

type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusUnavailable Status = "unavailable"
	StatusFailed      Status = "failed"
)

// Result is the outcome of one upload. URL is set only when Status is StatusUploaded.
type Result struct {
	Status Status
	URL    string
	Err    error
}

func (r Result) Uploaded() bool {
	return r.Status == StatusUploaded
}

// Unavailable is returned by every upload on an unconfigured store.
func Unavailable() Result {
	return Result{Status: StatusUnavailable}
}

type Config struct {
	Bucket          string
	CredentialsFile string
	// PublicBase prefixes public object URLs, e.g. https://storage.googleapis.com.
	PublicBase string
}

type Store struct {
	svc        *gcs.Service
	bucket     string
	publicBase string
	logger     *slog.Logger
}

// New connects to GCS. With no bucket configured it returns a store whose
// uploads all report StatusUnavailable.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		bucket:     cfg.Bucket,
		publicBase: strings.TrimSuffix(cfg.PublicBase, "/"),
		logger:     logger,
	}
	if cfg.Bucket == "" {
		logger.Info("object storage disabled; no bucket configured")
		return s, nil
	}

	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}
	s.svc = svc
	logger.Info("object storage enabled", "bucket", cfg.Bucket)
	return s, nil
}

// Available reports whether uploads can be attempted at all.
func (s *Store) Available() bool {
	return s != nil && s.svc != nil
}

// Upload writes body to key and returns its public URL.
func (s *Store) Upload(ctx context.Context, key, contentType string, body io.Reader) Result {
	if !s.Available() {
		return Unavailable()
	}

	obj := &gcs.Object{Name: key, ContentType: contentType}
	stored, err := s.svc.Objects.Insert(s.bucket, obj).
		Media(body).
		Context(ctx).
		Do()
	if err != nil {
		s.logger.Warn("upload failed", "key", key, "error", err)
		return Result{Status: StatusFailed, Err: fmt.Errorf("upload %s: %w", key, err)}
	}

	name := key
	if stored != nil && stored.Name != "" {
		name = stored.Name
	}
	return Result{Status: StatusUploaded, URL: s.PublicURL(name)}
}

// PublicURL returns the public address of an object key.
func (s *Store) PublicURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return fmt.Sprintf("%s/%s/%s", s.publicBase, s.bucket, strings.Join(parts, "/"))
}

// SlideImageKey is the object key of one extracted slide image.
func SlideImageKey(projectID string, slideNumber, index int, ext string) string {
	return fmt.Sprintf("projects/%s/slides/%d/image_%d%s", projectID, slideNumber, index, ext)
}

// AudioKey is the object key of one narration clip.
func AudioKey(projectID string, slideNumber int) string {
	return fmt.Sprintf("projects/%s/audio/slide_%d.mp3", projectID, slideNumber)
}

// VideoKey is the object key of a rendered video.
func VideoKey(projectID, filename string) string {
	return fmt.Sprintf("projects/%s/video/%s", projectID, filename)
}
