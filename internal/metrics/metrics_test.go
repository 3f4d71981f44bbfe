package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/files/{path...}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := Middleware(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /api/v1/files/{path...}", "404"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/files/a/b.txt", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/files/c.txt", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /api/v1/files/{path...}", "404"))

	assert.Equal(t, 2.0, after-before)
}

func TestRecordWalk(t *testing.T) {
	before := testutil.ToFloat64(walksTotal.WithLabelValues("recursive", "error"))
	RecordWalk("recursive", time.Millisecond, 0, errors.New("denied"))
	assert.Equal(t, 1.0, testutil.ToFloat64(walksTotal.WithLabelValues("recursive", "error"))-before)

	RecordWalk("shallow", time.Millisecond, 7, nil)
	assert.Equal(t, 7.0, testutil.ToFloat64(snapshotSize))
}

func TestRecordChunk(t *testing.T) {
	bytesBefore := testutil.ToFloat64(contentBytesDownloaded)
	chunksBefore := testutil.ToFloat64(contentChunksTotal)
	RecordChunk(100)
	RecordChunk(28)
	assert.Equal(t, 128.0, testutil.ToFloat64(contentBytesDownloaded)-bytesBefore)
	assert.Equal(t, 2.0, testutil.ToFloat64(contentChunksTotal)-chunksBefore)
}

func TestHandler_Exposes(t *testing.T) {
	RecordRateLimitHit()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "dirserve_rate_limit_hits_total"))
}
