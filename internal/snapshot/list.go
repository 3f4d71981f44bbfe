package snapshot

import (
	"context"
	"os"
)

// List snapshots target and returns it sorted at every level with paths made
// relative to root. target must be an absolute path under root; callers are
// responsible for keeping client input from escaping root.
func List(ctx context.Context, root, target string, recursive bool) (*DirectoryNode, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, &Error{Kind: ErrTargetNotFound, Path: target, Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Kind: ErrNotADirectory, Path: target}
	}

	node, err := walk(ctx, target, recursive)
	if err != nil {
		return nil, err
	}

	SortTree(node)
	Sanitize(node, root)
	return node, nil
}
