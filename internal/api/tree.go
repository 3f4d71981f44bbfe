package api

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/dirserve/internal/logging"
	"github.com/fruitsalade/dirserve/internal/metrics"
	"github.com/fruitsalade/dirserve/internal/search"
	"github.com/fruitsalade/dirserve/internal/snapshot"
	"github.com/fruitsalade/dirserve/internal/workers"
)

// queryBool reads a boolean query parameter. Anything strconv.ParseBool does
// not accept counts as false.
func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// list snapshots target on the worker pool and records the walk.
func (s *Server) list(ctx context.Context, target string, recursive bool) (*snapshot.DirectoryNode, error) {
	mode := "shallow"
	if recursive {
		mode = "recursive"
	}
	start := time.Now()
	node, err := workers.Run(ctx, s.pool, func(ctx context.Context) (*snapshot.DirectoryNode, error) {
		return snapshot.List(ctx, s.root, target, recursive)
	})
	metrics.RecordWalk(mode, time.Since(start), snapshot.Count(node), err)
	return node, err
}

func (s *Server) handleDirectoryStructure(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("path")
	target, err := resolvePath(s.root, raw)
	if err != nil {
		sendFailure(w, r, err, "invalid path")
		return
	}

	recursive := queryBool(r, "recursive")
	node, err := s.list(r.Context(), target, recursive)
	if err != nil {
		sendFailure(w, r, err, "cannot read directory: "+raw)
		return
	}

	logging.WithContext(r.Context()).Debug("snapshot taken",
		zap.String("path", raw),
		zap.Bool("recursive", recursive),
		zap.Int("nodes", snapshot.Count(node)),
	)
	writeJSON(w, r, http.StatusOK, node)
}

// FindResponse is returned by the find endpoint.
type FindResponse struct {
	Path    string `json:"path"`
	Pattern string `json:"pattern"`
	search.Result
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("path")
	target, err := resolvePath(s.root, raw)
	if err != nil {
		sendFailure(w, r, err, "invalid path")
		return
	}

	q := r.URL.Query()
	pattern := q.Get("pattern")
	if pattern == "" {
		sendError(w, http.StatusBadRequest, "pattern parameter required")
		return
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	start := time.Now()
	res, err := workers.Run(r.Context(), s.pool, func(ctx context.Context) (*search.Result, error) {
		return search.Find(ctx, s.root, target, pattern, limit)
	})
	metrics.RecordFind(time.Since(start), err == nil)
	if err != nil {
		sendFailure(w, r, err, "search failed: "+raw)
		return
	}

	rel, _ := filepath.Rel(s.root, target)
	if rel == "." {
		rel = ""
	}
	writeJSON(w, r, http.StatusOK, FindResponse{Path: rel, Pattern: pattern, Result: *res})
}
