package requests

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brettbedarf/kvfs"
	"github.com/brettbedarf/kvfs/config"
	"github.com/brettbedarf/kvfs/handle"
	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

func TestSource_Validate(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
		desc    string
	}{
		// Valid cases
		{"http://test.com", false, "basic HTTP URL"},
		{"https://test.com", false, "basic HTTPS URL"},
		{"  http://test.com   ", false, "URL with whitespace"},
		{"http://test.com/path?arg=1&arg2=2", false, "URL with path and query"},
		{"http://test.com:8080", false, "URL with port"},
		{"http://localhost:8080/test", false, "localhost with port"},
		{"http://123.123.123.123/test", false, "IP address"},
		{"http://mylocalnet/test", false, "single label hostname"},

		// Invalid cases
		{"", true, "empty string"},
		{" ", true, "whitespace only"},
		{"_", true, "invalid character"},
		{"ftp://test.com", true, "different scheme rejected"},
		{"test.com", true, "missing scheme"},
		{"http://user@test.com/path", true, "URL with user info"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			src := &Source{Type: HTTPSourceType, URL: tt.url}
			err := src.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, kvfs.InvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	src := &Source{Type: "s3", URL: "http://test.com"}
	assert.ErrorIs(t, src.Validate(), kvfs.InvalidInput)
}

func TestUnmarshal_Source(t *testing.T) {
	reqs, err := Unmarshal("nodes.yaml", []byte(`
- path: /srv/index.html
  type: file
  source:
    type: http
    url: https://example.com/index.html
    headers:
      Accept: text/html
`))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Source)
	assert.Equal(t, "https://example.com/index.html", reqs[0].Source.URL)
	assert.Equal(t, "text/html", reqs[0].Source.Headers["Accept"])

	_, err = Unmarshal("nodes.json", []byte(`[{"path":"/a","type":"file","content":"x",
		"source":{"type":"http","url":"http://test.com"}}]`))
	assert.ErrorIs(t, err, kvfs.InvalidInput)
	_, err = Unmarshal("nodes.json", []byte(`[{"path":"/a","type":"dir","source":{"type":"http","url":"http://test.com"}}]`))
	assert.ErrorIs(t, err, kvfs.InvalidInput)
}

func TestApply_HTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/simple-text":
			io.WriteString(w, "Hello from http")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	root := newTestRoot(t)
	reqs := []NodeRequestDTO{
		{Path: "/www/hello.txt", Type: FileNodeType, Perms: util.Pointer(uint32(0o444)),
			Source: &Source{Type: HTTPSourceType, URL: srv.URL + "/simple-text"}},
		{Path: "/www/missing.txt", Type: FileNodeType,
			Source: &Source{Type: HTTPSourceType, URL: srv.URL + "/missing"}},
	}
	stats, err := Apply(context.Background(), root, reqs, config.NewConfig(nil))
	assert.ErrorIs(t, err, kvfs.NotFound)
	assert.Equal(t, Stats{FileNodeType: 1}, stats)

	f, err := handle.Open(root, kvfs.Abs("/www/hello.txt"), kvfs.ORdOnly, 0)
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "Hello from http", string(got))

	attr, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, uint32(0o444), attr.Mode)
}

func TestSeeder_RequestShape(t *testing.T) {
	client := &MockHTTPClient{}
	client.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.Method == HTTPMethodPost &&
			req.URL.String() == "http://test.com/data" &&
			req.Header.Get("Authorization") == "Bearer token"
	})).Return(&http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader("payload")),
	}, nil).Once()
	client.On("Do", mock.Anything).Return(nil, errors.New("connection refused")).Once()

	root := newTestRoot(t)
	seeder := &Seeder{Client: client}
	method := HTTPMethodPost
	reqs := []NodeRequestDTO{{
		Path: "/data",
		Type: FileNodeType,
		Source: &Source{
			Type:    HTTPSourceType,
			URL:     " http://test.com/data ",
			Method:  &method,
			Headers: map[string]string{"Authorization": "Bearer token"},
		},
	}}
	_, err := seeder.Apply(context.Background(), root, reqs, config.NewConfig(nil))
	require.NoError(t, err)

	attr, err := root.Stat(kvfs.Abs("/data"))
	require.NoError(t, err)
	assert.Equal(t, uint64(len("payload")), attr.Size)

	reqs[0].Path = "/again"
	_, err = seeder.Apply(context.Background(), root, reqs, config.NewConfig(nil))
	assert.ErrorIs(t, err, kvfs.Io)
	client.AssertExpectations(t)
}
