package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher() *HTTPFetcher {
	return New(Options{
		UserAgent:       "reel-importer-test",
		Timeout:         5 * time.Second,
		MaxRetries:      2,
		MinBackoff:      time.Millisecond,
		MaxBackoff:      5 * time.Millisecond,
		BreakerFailures: 3,
		BreakerCooldown: time.Minute,
	})
}

func TestFetchHTMLSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "reel-importer-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><span class=\"a-offscreen\">$19.99</span></html>"))
	}))
	defer srv.Close()

	html, ok := testFetcher().FetchHTML(context.Background(), srv.URL+"/dp/B000")
	require.True(t, ok)
	assert.Contains(t, html, "$19.99")
}

func TestFetchHTMLRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	html, ok := testFetcher().FetchHTML(context.Background(), srv.URL)
	require.True(t, ok)
	assert.Equal(t, "<html>ok</html>", html)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchHTMLPermanentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	html, ok := testFetcher().FetchHTML(context.Background(), srv.URL)
	assert.False(t, ok)
	assert.Empty(t, html)
}

func TestFetchHTMLInvalidURL(t *testing.T) {
	_, ok := testFetcher().FetchHTML(context.Background(), "not a url")
	assert.False(t, ok)
}

func TestFetchHTMLBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><head><title>Robot Check</title></head></html>"))
	}))
	defer srv.Close()

	_, ok := testFetcher().FetchHTML(context.Background(), srv.URL)
	assert.False(t, ok)
}

func TestFetchHTMLDecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "café" in latin-1.
		w.Write([]byte{'c', 'a', 'f', 0xe9})
	}))
	defer srv.Close()

	html, ok := testFetcher().FetchHTML(context.Background(), srv.URL)
	require.True(t, ok)
	assert.Equal(t, "café", html)
}

func TestFetchHTMLBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := testFetcher()
	for i := 0; i < 5; i++ {
		_, ok := f.FetchHTML(context.Background(), srv.URL)
		assert.False(t, ok)
	}
	// Breaker opens after 3 failures and short-circuits the rest.
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("jpegbytes"))
	}))
	defer srv.Close()

	f := testFetcher()
	path := filepath.Join(t.TempDir(), "img.jpg")
	n, err := f.DownloadToFile(context.Background(), srv.URL+"/img.jpg", path)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(data))

	_, err = f.DownloadToFile(context.Background(), srv.URL+"/missing.jpg", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name string
		body string
		want BlockType
	}{
		{"normal", "<html><div id=\"dp\">product</div></html>", BlockNone},
		{"cloudflare", "<html>Checking your browser before accessing</html>", BlockCloudflare},
		{"amazon robot", "<html><title>Robot Check</title></html>", BlockRobotCheck},
		{"amazon captcha form", "<form action=\"/errors/validateCaptcha\">", BlockRobotCheck},
		{"aliexpress slider", "<div id=\"nc_1_n1z\"></div>", BlockSlider},
		{"short captcha", "<html>please solve the captcha</html>", BlockCaptcha},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, kind := DetectBlock(nil, tt.body)
			assert.Equal(t, tt.want != BlockNone, blocked)
			assert.Equal(t, tt.want, kind)
		})
	}

	resp := &http.Response{Header: http.Header{"Cf-Mitigated": []string{"challenge"}}}
	blocked, kind := DetectBlock(resp, "")
	assert.True(t, blocked)
	assert.Equal(t, BlockCloudflare, kind)
}
