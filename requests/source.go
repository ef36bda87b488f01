package requests

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/brettbedarf/kvfs"
)

type SourceType = string

const (
	HTTPSourceType SourceType = "http"
)

type HTTPMethod = string

const (
	HTTPMethodGet  HTTPMethod = "GET"
	HTTPMethodPost HTTPMethod = "POST"
)

// Source names where a seeded file's content is downloaded from.
type Source struct {
	Type    SourceType        `json:"type" yaml:"type"`
	URL     string            `json:"url" yaml:"url"`
	Method  *HTTPMethod       `json:"method,omitempty" yaml:"method,omitempty"` // Default is GET
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Validate checks the source type and URL. Only plain http(s) URLs
// without user info are accepted.
func (s *Source) Validate() error {
	if s.Type != HTTPSourceType {
		return fmt.Errorf("unknown source type %q: %w", s.Type, kvfs.InvalidInput)
	}
	u, err := url.Parse(strings.TrimSpace(s.URL))
	if err != nil {
		return fmt.Errorf("source url: %v: %w", err, kvfs.InvalidInput)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.User != nil {
		return fmt.Errorf("source url %q: %w", s.URL, kvfs.InvalidInput)
	}
	return nil
}

func (s *Source) method() HTTPMethod {
	if s.Method != nil {
		return *s.Method
	}
	return HTTPMethodGet
}

// HTTPClient is the part of *http.Client a Seeder uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// open starts the download of src. The caller closes the body.
func (s *Seeder) open(ctx context.Context, src *Source) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, src.method(), strings.TrimSpace(src.URL), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range src.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %v: %w", src.URL, err, kvfs.Io)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		kind := kvfs.Io
		if resp.StatusCode == http.StatusNotFound {
			kind = kvfs.NotFound
		}
		return nil, fmt.Errorf("fetch %s: %s: %w", src.URL, resp.Status, kind)
	}
	return resp.Body, nil
}
