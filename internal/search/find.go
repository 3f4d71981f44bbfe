// Package search finds entries below a directory whose relative path matches
// a doublestar glob such as "**/*.go".
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/fruitsalade/dirserve/internal/snapshot"
)

// DefaultLimit caps the number of matches when the caller passes no limit.
const DefaultLimit = 1000

// ErrBadPattern is returned for a malformed glob.
var ErrBadPattern = errors.New("invalid glob pattern")

var errLimitReached = errors.New("match limit reached")

// Result holds the matches of one search.
type Result struct {
	// Matches are root-relative paths in byte-wise order.
	Matches []string `json:"matches"`
	// Truncated is set when the walk stopped at the limit.
	Truncated bool `json:"truncated"`
}

// Find walks dir and returns entries whose path relative to dir matches
// pattern. Paths in the result are made relative to root the same way
// snapshot paths are. Symlinks are not followed and unreadable entries are
// skipped.
func Find(ctx context.Context, root, dir, pattern string, limit int) (*Result, error) {
	if pattern == "" || !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, &snapshot.Error{Kind: snapshot.ErrTargetNotFound, Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &snapshot.Error{Kind: snapshot.ErrNotADirectory, Path: dir}
	}

	var (
		mu  sync.Mutex
		res = &Result{Matches: []string{}}
	)
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil || p == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil
		}
		if !doublestar.MatchUnvalidated(pattern, filepath.ToSlash(rel)) {
			return nil
		}

		mu.Lock()
		defer mu.Unlock()
		if len(res.Matches) >= limit {
			res.Truncated = true
			return errLimitReached
		}
		res.Matches = append(res.Matches, relativeTo(root, p))
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &snapshot.Error{Kind: snapshot.ErrReadFailure, Path: dir, Err: err}
	}

	slices.Sort(res.Matches)
	return res, nil
}

func relativeTo(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return rel
}
