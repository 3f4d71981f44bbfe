package snapshot

import (
	"slices"
	"strings"
)

// SortEntries orders entries in place: directories first, then files, each
// group by byte-wise name.
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, compareEntries)
}

// SortTree applies SortEntries at every level of the tree.
func SortTree(node *DirectoryNode) {
	if node == nil {
		return
	}
	SortEntries(node.Children)
	for _, child := range node.Children {
		if child.IsDir() {
			SortTree(child.dir)
		}
	}
}

func compareEntries(a, b Entry) int {
	if a.IsDir() != b.IsDir() {
		if a.IsDir() {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Name(), b.Name())
}
