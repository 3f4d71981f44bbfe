// Package api provides the HTTP server and handlers for the directory server.
package api

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/fruitsalade/dirserve/internal/config"
	"github.com/fruitsalade/dirserve/internal/logging"
	"github.com/fruitsalade/dirserve/internal/metrics"
	"github.com/fruitsalade/dirserve/internal/snapshot"
	"github.com/fruitsalade/dirserve/internal/stream"
	"github.com/fruitsalade/dirserve/internal/workers"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server serves snapshots and file contents of a single directory tree.
type Server struct {
	root      string
	chunkSize int
	open      func(path string, chunkSize int) (*stream.Cursor, error)
	pool      *workers.Pool
	limiter   *RateLimiter
	pages     *template.Template
}

// NewServer creates a server for cfg.BaseDir, which must already be
// validated. Tree walks run on pool.
func NewServer(cfg *config.Config, pool *workers.Pool) *Server {
	pages := template.Must(template.New("").Funcs(template.FuncMap{
		"urlpath":  urlPath,
		"category": func(name string) string { return string(snapshot.Classify(name)) },
	}).ParseFS(templateFS, "templates/*.html"))

	return &Server{
		root:      cfg.BaseDir,
		chunkSize: cfg.ChunkSize,
		open:      stream.Open,
		pool:      pool,
		limiter:   NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		pages:     pages,
	}
}

// PruneClients drops rate limiter state for clients idle longer than idle.
func (s *Server) PruneClients(idle time.Duration) int {
	if s.limiter == nil {
		return 0
	}
	return s.limiter.Prune(idle)
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health checks
	mux.HandleFunc("GET /health-check", s.handleHealthCheck)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Snapshot API
	mux.HandleFunc("GET /api/v1/directory-structure", s.handleDirectoryStructure)
	mux.HandleFunc("GET /api/v1/directory-structure/{path...}", s.handleDirectoryStructure)
	mux.HandleFunc("GET /api/v1/find", s.handleFind)
	mux.HandleFunc("GET /api/v1/find/{path...}", s.handleFind)

	// Content API
	mux.HandleFunc("GET /api/v1/files/{path...}", s.handleFile)
	mux.HandleFunc("GET /api/v1/classify/{path...}", s.handleClassify)

	// HTML listing
	mux.HandleFunc("GET /{$}", s.handleBrowse)
	mux.HandleFunc("GET /browse/{path...}", s.handleBrowse)

	return logging.Middleware(metrics.Middleware(s.limiter.Middleware(mux)))
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, nil, http.StatusOK, map[string]string{"status": "ok"})
}
