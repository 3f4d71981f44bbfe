package api

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/dirserve/internal/logging"
	"github.com/fruitsalade/dirserve/internal/snapshot"
)

// urlPath turns a root-relative OS path into an escaped URL path without a
// leading slash.
func urlPath(p string) string {
	segs := strings.Split(filepath.ToSlash(p), "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}

type browsePage struct {
	Title  string
	Path   string
	Parent string
	AtRoot bool
	Node   *snapshot.DirectoryNode
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("path")
	target, err := resolvePath(s.root, raw)
	if err != nil {
		sendFailure(w, r, err, "invalid path")
		return
	}

	node, err := s.list(r.Context(), target, false)
	if errors.Is(err, snapshot.ErrNotADirectory) {
		http.Redirect(w, r, "/api/v1/files/"+urlPath(strings.Trim(raw, "/")), http.StatusFound)
		return
	}
	if err != nil {
		sendFailure(w, r, err, "cannot read directory: "+raw)
		return
	}

	rel := filepath.ToSlash(node.Path)
	page := browsePage{
		Title:  "/" + rel,
		Path:   rel,
		AtRoot: rel == "",
	}
	if !page.AtRoot {
		page.Parent = path.Dir(rel)
		if page.Parent == "." {
			page.Parent = ""
		}
	}
	page.Node = node

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, "browse.html", page); err != nil {
		logging.WithContext(r.Context()).Warn("render listing", zap.String("path", raw), zap.Error(err))
	}
}
