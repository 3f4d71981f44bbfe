package snapshot

import (
	"path/filepath"
	"strings"
)

// Sanitize rewrites every path in the tree, in place, so that it is relative
// to root: one leading occurrence of root plus a separator is removed. The
// node whose path is root itself becomes "". Paths outside root are left as
// they are.
func Sanitize(node *DirectoryNode, root string) {
	if node == nil {
		return
	}
	sep := string(filepath.Separator)
	trimmed := root
	if len(trimmed) > 1 {
		trimmed = strings.TrimSuffix(trimmed, sep)
	}
	prefix := trimmed
	if !strings.HasSuffix(prefix, sep) {
		prefix += sep
	}
	sanitizeNode(node, trimmed, prefix)
}

func sanitizeNode(node *DirectoryNode, root, prefix string) {
	node.Path = stripRoot(node.Path, root, prefix)
	for i := range node.Children {
		child := &node.Children[i]
		if child.dir != nil {
			sanitizeNode(child.dir, root, prefix)
			continue
		}
		child.file.Path = stripRoot(child.file.Path, root, prefix)
	}
}

func stripRoot(path, root, prefix string) string {
	if path == root {
		return ""
	}
	if rest, ok := strings.CutPrefix(path, prefix); ok {
		return rest
	}
	return path
}
