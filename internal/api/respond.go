package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/fruitsalade/dirserve/internal/logging"
	"github.com/fruitsalade/dirserve/internal/search"
	"github.com/fruitsalade/dirserve/internal/snapshot"
	"github.com/fruitsalade/dirserve/internal/stream"
	"github.com/fruitsalade/dirserve/internal/workers"
)

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

var gzipPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// acceptsGzip returns true if the client accepts gzip encoding.
func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

// writeJSON encodes v with status, compressing when the client allows it.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Add("Vary", "Accept-Encoding")

	if r != nil && acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(status)
		gw := gzipPool.Get().(*gzip.Writer)
		gw.Reset(w)
		if err := sonic.ConfigStd.NewEncoder(gw).Encode(v); err != nil {
			logging.Warn("encode response", zap.Error(err))
		}
		gw.Close()
		gzipPool.Put(gw)
		return
	}

	w.WriteHeader(status)
	if err := sonic.ConfigStd.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("encode response", zap.Error(err))
	}
}

func sendError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, nil, code, ErrorResponse{Error: message, Code: code})
}

// statusFor maps core error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadPath), errors.Is(err, errIsDirectory),
		errors.Is(err, snapshot.ErrNotADirectory), errors.Is(err, search.ErrBadPattern):
		return http.StatusBadRequest
	case errors.Is(err, snapshot.ErrTargetNotFound), errors.Is(err, stream.ErrFileOpen):
		return http.StatusNotFound
	case errors.Is(err, workers.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendFailure logs err against the request and writes the mapped error body.
// Server-side failures do not leak filesystem paths to the client.
func sendFailure(w http.ResponseWriter, r *http.Request, err error, message string) {
	code := statusFor(err)
	logger := logging.WithContext(r.Context())
	if code >= http.StatusInternalServerError {
		logger.Error(message, zap.Error(err))
	} else {
		logger.Debug(message, zap.Error(err), zap.Int("status", code))
	}
	sendError(w, code, message)
}
