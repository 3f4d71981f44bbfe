package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fruitsalade/dirserve/internal/config"
	"github.com/fruitsalade/dirserve/internal/logging"
	"github.com/fruitsalade/dirserve/internal/snapshot"
	"github.com/fruitsalade/dirserve/internal/workers"
)

func TestMain(m *testing.M) {
	logging.Replace(zap.NewNop())
	os.Exit(m.Run())
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// setupTestServer builds a server over a small fixture tree.
func setupTestServer(t *testing.T, tweak func(*config.Config)) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	files := map[string][]byte{
		"docs/guide.md":       []byte("# Guide\n"),
		"docs/img/logo.png":   pngHeader,
		"src/main.go":         []byte("package main\n"),
		"notes.txt":           []byte("0123456789"),
		"page.html":           []byte(`<b>hi</b> & 'x'`),
		"empty.txt":           nil,
		"blob":                pngHeader,
		"with space/file.txt": []byte("spaced"),
	}
	for name, data := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, data, 0o644))
	}

	cfg := config.Default()
	cfg.BaseDir = root
	cfg.RateLimitRPS = 0
	if tweak != nil {
		tweak(cfg)
	}
	require.NoError(t, cfg.Validate())

	pool := workers.New(cfg.Workers)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	return NewServer(cfg, pool), cfg.BaseDir
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func decodeTree(t *testing.T, body []byte) snapshot.DirectoryNode {
	t.Helper()
	var node snapshot.DirectoryNode
	require.NoError(t, json.Unmarshal(body, &node), string(body))
	return node
}

func childNames(node snapshot.DirectoryNode) []string {
	var out []string
	for _, e := range node.Children {
		out = append(out, e.Name())
	}
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	h := srv.Handler()

	rec := get(t, h, "/health-check")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(logging.RequestIDHeader))
}

func TestDirectoryStructure_Root(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	for _, target := range []string{"/api/v1/directory-structure", "/api/v1/directory-structure/"} {
		rec := get(t, srv.Handler(), target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		node := decodeTree(t, rec.Body.Bytes())
		assert.Equal(t, "", node.Path)
		assert.Equal(t, []string{"docs", "src", "with space", "blob", "empty.txt", "notes.txt", "page.html"}, childNames(node))
		assert.Empty(t, node.Children[0].Directory().Children, "shallow by default")
	}
}

func TestDirectoryStructure_RecursiveSubdirectory(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	rec := get(t, srv.Handler(), "/api/v1/directory-structure/docs?recursive=true")
	require.Equal(t, http.StatusOK, rec.Code)

	node := decodeTree(t, rec.Body.Bytes())
	assert.Equal(t, "docs", node.Path)
	require.Equal(t, []string{"img", "guide.md"}, childNames(node))
	img := node.Children[0].Directory()
	require.Len(t, img.Children, 1)
	assert.Equal(t, filepath.Join("docs", "img", "logo.png"), img.Children[0].Path())
}

func TestDirectoryStructure_Errors(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	h := srv.Handler()

	rec := get(t, h, "/api/v1/directory-structure/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decodeError(t, rec).Code)

	rec = get(t, h, "/api/v1/directory-structure/notes.txt")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusBadRequest, decodeError(t, rec).Code)
}

func TestDirectoryStructure_Gzip(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	rec := get(t, srv.Handler(), "/api/v1/directory-structure?recursive=true", "Accept-Encoding", "gzip")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	gr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gr)
	require.NoError(t, err)

	node := decodeTree(t, body)
	assert.Equal(t, 13, snapshot.Count(&node))
}

func TestTraversalRejected(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	h := srv.Handler()

	for _, target := range []string{
		"/api/v1/files/..%2f..%2fetc%2fpasswd",
		"/api/v1/directory-structure/..%2f",
		"/api/v1/files/%2fetc%2fpasswd",
	} {
		rec := get(t, h, target)
		assert.NotEqual(t, http.StatusOK, rec.Code, target)
		assert.NotContains(t, rec.Body.String(), "root:", target)
	}
}

func TestFile_Download(t *testing.T) {
	srv, _ := setupTestServer(t, func(c *config.Config) { c.ChunkSize = 4 })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/files/notes.txt")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, int64(10), resp.ContentLength)
	assert.Equal(t, "text", resp.Header.Get("X-Content-Category"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))
}

func TestFile_SniffsWithoutExtension(t *testing.T) {
	srv, _ := setupTestServer(t, nil)

	rec := get(t, srv.Handler(), "/api/v1/files/blob")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, pngHeader, rec.Body.Bytes())
}

func TestFile_ForceDisplayEscapes(t *testing.T) {
	srv, _ := setupTestServer(t, func(c *config.Config) { c.ChunkSize = 3 })

	rec := get(t, srv.Handler(), "/api/v1/files/page.html?force-display=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Length"))
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt; &amp; 'x'", rec.Body.String())
}

func TestFile_EmptyAndSpaces(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	h := srv.Handler()

	rec := get(t, h, "/api/v1/files/empty.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, "0", rec.Header().Get("Content-Length"))

	rec = get(t, h, "/api/v1/files/with%20space/file.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "spaced", rec.Body.String())
}

func TestFile_Errors(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	h := srv.Handler()

	rec := get(t, h, "/api/v1/files/missing.txt")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = get(t, h, "/api/v1/files/docs")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/v1/files/")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassify(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	h := srv.Handler()

	tests := []struct {
		path string
		want ClassifyResponse
	}{
		{"docs/img/logo.png", ClassifyResponse{Name: "logo.png", MimeType: "image/png", Category: "image"}},
		{"blob", ClassifyResponse{Name: "blob", MimeType: "image/png", Category: "image"}},
		{"src/main.go", ClassifyResponse{Name: "main.go", MimeType: "text/x-go; charset=utf-8", Category: "text"}},
		{"empty.txt", ClassifyResponse{Name: "empty.txt", MimeType: "text/plain; charset=utf-8", Category: "text"}},
	}
	for _, tt := range tests {
		rec := get(t, h, "/api/v1/classify/"+tt.path)
		require.Equal(t, http.StatusOK, rec.Code, tt.path)
		var got ClassifyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, tt.want, got, tt.path)
	}

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/classify/nope").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/classify/docs").Code)
}

func TestFind(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	h := srv.Handler()

	rec := get(t, h, "/api/v1/find?pattern=**/*.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp FindResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "", resp.Path)
	assert.Equal(t, []string{"empty.txt", "notes.txt", filepath.Join("with space", "file.txt")}, resp.Matches)
	assert.False(t, resp.Truncated)

	rec = get(t, h, "/api/v1/find/docs?pattern=**/*.png")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "docs", resp.Path)
	assert.Equal(t, []string{filepath.Join("docs", "img", "logo.png")}, resp.Matches)

	rec = get(t, h, "/api/v1/find?pattern=**&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Matches, 2)
	assert.True(t, resp.Truncated)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/find").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/find?pattern=%5B").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/find?pattern=*&limit=-1").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/find/missing?pattern=*").Code)
}

func TestBrowse(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	h := srv.Handler()

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, `href="/browse/docs"`)
	assert.Contains(t, body, `href="/browse/with%20space"`)
	assert.Contains(t, body, `href="/api/v1/files/notes.txt?force-display=true"`)
	assert.NotContains(t, body, `href="/api/v1/files/blob?force-display=true"`)
	assert.NotContains(t, body, "../")

	rec = get(t, h, "/browse/docs/img")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/browse/docs"`)
	assert.Contains(t, rec.Body.String(), "logo.png")

	rec = get(t, h, "/browse/src/main.go")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/v1/files/src/main.go", rec.Header().Get("Location"))
}

func TestRateLimit(t *testing.T) {
	srv, _ := setupTestServer(t, func(c *config.Config) {
		c.RateLimitRPS = 0.01
		c.RateLimitBurst = 1
	})
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decodeError(t, rec).Error)

	assert.Equal(t, 1, srv.PruneClients(0))
}

func TestPoolStopped(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	srv.pool.Stop()

	rec := get(t, srv.Handler(), "/api/v1/directory-structure")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "cannot read directory"))
}
