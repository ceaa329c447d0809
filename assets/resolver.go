package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrAssetResolution marks every failure to fetch a visual or audio reference.
var ErrAssetResolution = errors.New("asset resolution failed")

// Kind classifies an asset reference.
type Kind int

const (
	KindLocal Kind = iota
	KindInline
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindInline:
		return "inline"
	case KindRemote:
		return "remote"
	default:
		return "local"
	}
}

// Classify reports how ref would be fetched.
func Classify(ref string) Kind {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return KindInline
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return KindRemote
	default:
		return KindLocal
	}
}

// Resolver fetches raw bytes for inline, remote, or local references.
type Resolver struct {
	client  *http.Client
	maxSize int64
}

// NewResolver builds a resolver whose network fetches are bounded by timeout.
// A non-positive maxSize disables the size limit.
func NewResolver(timeout time.Duration, maxSize int64) *Resolver {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Resolver{
		client:  &http.Client{Timeout: timeout},
		maxSize: maxSize,
	}
}

// WithHTTPClient swaps the client used for remote references.
func (r *Resolver) WithHTTPClient(client *http.Client) *Resolver {
	if client != nil {
		r.client = client
	}
	return r
}

// Fetch writes the bytes behind ref to destPath.
func (r *Resolver) Fetch(ctx context.Context, ref, destPath string) error {
	if strings.TrimSpace(ref) == "" {
		return fmt.Errorf("%w: empty reference", ErrAssetResolution)
	}

	src, err := r.open(ctx, ref)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAssetResolution, Describe(ref), err)
	}
	defer src.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrAssetResolution, filepath.Base(destPath), err)
	}
	defer out.Close()

	reader := io.Reader(src)
	if r.maxSize > 0 {
		reader = &io.LimitedReader{R: src, N: r.maxSize + 1}
	}
	written, err := io.Copy(out, reader)
	if err != nil {
		return fmt.Errorf("%w: %s: copy: %v", ErrAssetResolution, Describe(ref), err)
	}
	if r.maxSize > 0 && written > r.maxSize {
		return fmt.Errorf("%w: %s: size exceeds limit of %d bytes", ErrAssetResolution, Describe(ref), r.maxSize)
	}
	if written == 0 {
		return fmt.Errorf("%w: %s: empty payload", ErrAssetResolution, Describe(ref))
	}
	// Flush before the encoder reads it.
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrAssetResolution, filepath.Base(destPath), err)
	}
	return nil
}

func (r *Resolver) open(ctx context.Context, ref string) (io.ReadCloser, error) {
	switch Classify(ref) {
	case KindInline:
		data, err := DecodeDataURI(ref)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil

	case KindRemote:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("download failed, status: %s", resp.Status)
		}
		return resp.Body, nil

	default:
		path := ref
		if strings.HasPrefix(ref, "file://") {
			u, err := url.Parse(ref)
			if err != nil {
				return nil, err
			}
			path = u.Path
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("could not open local file: %w", err)
		}
		return f, nil
	}
}

// DecodeDataURI returns the payload of an RFC 2397 data URI.
func DecodeDataURI(ref string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	if strings.HasSuffix(header, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		return data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data URI payload: %w", err)
	}
	return []byte(text), nil
}

// EncodeDataURI is the inverse of DecodeDataURI for base64 payloads.
func EncodeDataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Describe renders ref for logs and error messages without inlining payloads.
func Describe(ref string) string {
	if Classify(ref) == KindInline {
		header, _, _ := strings.Cut(ref, ",")
		return header + ",..."
	}
	return ref
}
