package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"go.uber.org/zap"

	"github.com/fruitsalade/dirserve/internal/logging"
	"github.com/fruitsalade/dirserve/internal/metrics"
	"github.com/fruitsalade/dirserve/internal/snapshot"
	"github.com/fruitsalade/dirserve/internal/stream"
)

// sniffLen is how much of a file classify reads for content detection.
const sniffLen = 3072

// displayEscaper covers the characters that matter in element content.
// Quotes are left alone.
var displayEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// statFile resolves raw and makes sure it names a regular file.
func (s *Server) statFile(raw string) (string, error) {
	target, err := resolvePath(s.root, raw)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", &snapshot.Error{Kind: snapshot.ErrTargetNotFound, Path: target, Err: err}
	}
	if info.IsDir() {
		return "", errIsDirectory
	}
	return target, nil
}

// detectCharset names the encoding of a text prefix for the Content-Type
// header.
func detectCharset(head []byte) string {
	if len(head) == 0 || utf8.Valid(head) {
		return "utf-8"
	}
	res, err := chardet.NewTextDetector().DetectBest(head)
	if err != nil || res == nil || res.Charset == "" {
		return "utf-8"
	}
	return strings.ToLower(res.Charset)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("path")
	if raw == "" {
		sendError(w, http.StatusBadRequest, "path required")
		return
	}
	target, err := s.statFile(raw)
	if err != nil {
		sendFailure(w, r, err, "cannot open file: "+raw)
		return
	}

	cur, err := s.open(target, s.chunkSize)
	if err != nil {
		metrics.RecordContentDownload("error")
		sendFailure(w, r, err, "cannot open file: "+raw)
		return
	}
	defer cur.Close()

	// The first chunk is pulled before any header is written so a read
	// failure can still be reported as a normal error response.
	first, err := cur.Next()
	if err != nil && err != io.EOF {
		metrics.RecordContentDownload("error")
		sendFailure(w, r, err, "cannot read file: "+raw)
		return
	}
	_, remaining := cur.SizeHint()

	forceDisplay := queryBool(r, "force-display")
	contentType := snapshot.DetectContentType(filepath.Base(target), first)

	h := w.Header()
	h.Set("X-Content-Category", string(snapshot.CategoryOf(contentType)))
	h.Set("X-Content-Type-Options", "nosniff")
	if forceDisplay {
		h.Set("Content-Type", "text/plain; charset="+detectCharset(first))
	} else {
		h.Set("Content-Type", contentType)
		h.Set("Content-Length", strconv.FormatInt(int64(len(first))+remaining, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		metrics.RecordContentDownload("success")
		return
	}

	logger := logging.WithContext(r.Context())
	rc := http.NewResponseController(w)
	write := func(chunk []byte) error {
		if forceDisplay {
			chunk = []byte(displayEscaper.Replace(string(chunk)))
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		metrics.RecordChunk(len(chunk))
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	}

	if len(first) > 0 {
		if err := write(first); err != nil {
			metrics.RecordContentDownload("aborted")
			logger.Debug("client went away", zap.String("path", raw), zap.Error(err))
			return
		}
	}

	for chunk, err := range cur.Chunks(r.Context()) {
		if err != nil {
			metrics.RecordContentDownload("error")
			logger.Error("stream read failed after headers were sent",
				zap.String("path", raw),
				zap.Int64("bytes_sent", cur.Emitted()),
				zap.Error(err),
			)
			panic(http.ErrAbortHandler)
		}
		if err := write(chunk); err != nil {
			metrics.RecordContentDownload("aborted")
			logger.Debug("client went away", zap.String("path", raw), zap.Error(err))
			return
		}
	}

	if r.Context().Err() != nil {
		metrics.RecordContentDownload("aborted")
		return
	}
	metrics.RecordContentDownload("success")
}

// ClassifyResponse is returned by the classify endpoint.
type ClassifyResponse struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Category string `json:"category"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("path")
	target, err := s.statFile(raw)
	if err != nil {
		sendFailure(w, r, err, "cannot classify: "+raw)
		return
	}

	f, err := os.Open(target)
	if err != nil {
		sendFailure(w, r, &stream.Error{Kind: stream.ErrFileOpen, Path: target, Err: err}, "cannot classify: "+raw)
		return
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		sendFailure(w, r, &stream.Error{Kind: stream.ErrStreamRead, Path: target, Err: err}, "cannot classify: "+raw)
		return
	}

	name := filepath.Base(target)
	mimeType := snapshot.DetectContentType(name, head[:n])
	writeJSON(w, r, http.StatusOK, ClassifyResponse{
		Name:     name,
		MimeType: mimeType,
		Category: string(snapshot.CategoryOf(mimeType)),
	})
}
