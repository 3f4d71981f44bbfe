package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// Walk reads the immediate entries of dir. Subdirectories are returned with
// empty children.
func Walk(ctx context.Context, dir string) (*DirectoryNode, error) {
	return walk(ctx, dir, false)
}

// WalkRecursive reads the whole subtree rooted at dir. Subdirectories that
// cannot be read appear with empty children instead of failing the walk.
func WalkRecursive(ctx context.Context, dir string) (*DirectoryNode, error) {
	return walk(ctx, dir, true)
}

func walk(ctx context.Context, dir string, recursive bool) (*DirectoryNode, error) {
	root := newDirectoryNode(filepath.Base(dir), dir)

	var ancestors map[string]struct{}
	if recursive {
		ancestors = map[string]struct{}{canonical(dir): {}}
	}

	if err := readDir(ctx, root, recursive, ancestors); err != nil {
		return nil, &Error{Kind: ErrReadFailure, Path: dir, Err: err}
	}
	return root, nil
}

// readDir fills node.Children from the filesystem. Only a failure to read
// node itself (or cancellation) is returned.
func readDir(ctx context.Context, node *DirectoryNode, recursive bool, ancestors map[string]struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dirents, err := os.ReadDir(node.Path)
	if err != nil && len(dirents) == 0 {
		return err
	}

	node.Children = make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		childPath := filepath.Join(node.Path, name)

		// Stat follows symlinks; a child whose metadata can't be read is a file.
		info, statErr := os.Stat(childPath)
		if statErr != nil || !info.IsDir() {
			node.Children = append(node.Children, FileEntryOf(name, childPath))
			continue
		}

		child := newDirectoryNode(name, childPath)
		if recursive {
			if err := descend(ctx, child, ancestors); err != nil {
				return err
			}
		}
		node.Children = append(node.Children, DirEntry(child))
	}
	return nil
}

// descend walks child unless it resolves to one of its own ancestors.
func descend(ctx context.Context, child *DirectoryNode, ancestors map[string]struct{}) error {
	key := canonical(child.Path)
	if _, seen := ancestors[key]; seen {
		return nil
	}

	ancestors[key] = struct{}{}
	err := readDir(ctx, child, true, ancestors)
	delete(ancestors, key)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		child.Children = []Entry{}
	}
	return nil
}

func canonical(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}
