package pricing

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Source loads a pricing table.
type Source interface {
	Load(ctx context.Context) (*Table, error)
}

// DefaultMaxTableBytes bounds the size of a remote pricing document.
const DefaultMaxTableBytes = 8 << 20

// HTTPSource fetches a pricing document over HTTP. The format is taken from
// the response Content-Type, then the URL path extension, then JSON.
type HTTPSource struct {
	URL string

	// Client is the HTTP client to use. If nil, a client with a 30s timeout
	// is used.
	Client *http.Client

	// MaxBytes caps the response body. Default: DefaultMaxTableBytes.
	MaxBytes int64
}

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// Load implements Source.
func (s HTTPSource) Load(ctx context.Context) (*Table, error) {
	if s.URL == "" {
		return nil, ErrNoSource
	}
	client := s.Client
	if client == nil {
		client = defaultHTTPClient
	}
	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxTableBytes
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json, application/yaml, application/toml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status: %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrFetch, limit)
	}

	return Parse(body, s.format(resp.Header.Get("Content-Type")))
}

func (s HTTPSource) format(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "application/yaml", "application/x-yaml", "text/yaml":
			return FormatYAML
		case "application/toml":
			return FormatTOML
		case "application/json":
			return FormatJSON
		}
	}
	if u, err := url.Parse(s.URL); err == nil {
		if f, err := FormatFromPath(u.Path); err == nil {
			return f
		}
	}
	return FormatJSON
}

// FileSource reads a pricing table from a .json, .yaml, .yml or .toml file.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s FileSource) Load(_ context.Context) (*Table, error) {
	if s.Path == "" {
		return nil, ErrNoSource
	}
	format, err := FormatFromPath(s.Path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return Parse(data, format)
}

// StaticSource always returns the same table.
type StaticSource struct {
	Table *Table
}

// Load implements Source.
func (s StaticSource) Load(_ context.Context) (*Table, error) {
	if s.Table == nil {
		return nil, ErrNoSource
	}
	return s.Table, nil
}
