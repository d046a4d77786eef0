package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roach88/modhost/internal/specifier"
)

// DefaultMaxModuleBytes caps the size of a remote module body.
const DefaultMaxModuleBytes = 10 << 20

// HTTPLoader fetches http: and https: modules.
type HTTPLoader struct {
	client   *http.Client
	maxBytes int64
}

// HTTPOption configures an HTTPLoader.
type HTTPOption func(*HTTPLoader)

// WithHTTPClient overrides the HTTP client (default: 30s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(l *HTTPLoader) {
		l.client = c
	}
}

// WithMaxModuleBytes overrides the remote module size limit.
func WithMaxModuleBytes(n int64) HTTPOption {
	return func(l *HTTPLoader) {
		l.maxBytes = n
	}
}

// NewHTTPLoader creates a remote module fetcher.
func NewHTTPLoader(opts ...HTTPOption) *HTTPLoader {
	l := &HTTPLoader{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxBytes: DefaultMaxModuleBytes,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements Fetcher.
func (l *HTTPLoader) Load(ctx context.Context, s specifier.Specifier) (Source, error) {
	if !s.IsRemote() {
		return Source{}, loadError(s, KindUnsupported, fmt.Errorf("http loader cannot load %s: specifiers", s.Scheme()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.String(), nil)
	if err != nil {
		return Source{}, loadError(s, KindNotFound, err)
	}
	req.Header.Set("Accept", "application/yaml, application/json, application/cue;q=0.9, */*;q=0.5")

	resp, err := l.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Source{}, ctx.Err()
		}
		return Source{}, loadError(s, KindNotFound, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Source{}, loadError(s, KindNotFound, fmt.Errorf("HTTP %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Source{}, loadError(s, KindPermissionDenied, fmt.Errorf("HTTP %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Source{}, loadError(s, KindNotFound, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return Source{}, loadError(s, KindDecode, fmt.Errorf("read body: %w", err))
	}
	if int64(len(data)) > l.maxBytes {
		return Source{}, loadError(s, KindDecode, fmt.Errorf("module exceeds %d bytes", l.maxBytes))
	}

	return newSource(s, data, MediaTypeFromContentType(resp.Header.Get("Content-Type")))
}
