// Package snapshot builds in-memory directory snapshots: it walks a directory
// (one level or a whole subtree), orders the entries, rewrites absolute paths
// to root-relative ones and classifies file names by coarse media category.
package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic/encoder"
)

// DirectoryNode represents one directory and the entries found inside it.
type DirectoryNode struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Children []Entry `json:"entries"`
}

func newDirectoryNode(name, path string) *DirectoryNode {
	return &DirectoryNode{Name: name, Path: path, Children: []Entry{}}
}

// FileEntry is a leaf file. It carries identifying metadata only.
type FileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Entry is a tagged union: either a nested directory or a file.
// The zero value is an empty file entry.
type Entry struct {
	dir  *DirectoryNode
	file FileEntry
}

// DirEntry wraps a directory node. The entry takes ownership of node.
func DirEntry(node *DirectoryNode) Entry {
	return Entry{dir: node}
}

// FileEntryOf returns a file entry.
func FileEntryOf(name, path string) Entry {
	return Entry{file: FileEntry{Name: name, Path: path}}
}

// IsDir reports whether the entry is the directory variant.
func (e Entry) IsDir() bool { return e.dir != nil }

// Directory returns the directory payload, or nil for files.
func (e Entry) Directory() *DirectoryNode { return e.dir }

// File returns the file payload and whether the entry is a file.
func (e Entry) File() (FileEntry, bool) { return e.file, e.dir == nil }

// Name returns the final path segment of the entry.
func (e Entry) Name() string {
	if e.dir != nil {
		return e.dir.Name
	}
	return e.file.Name
}

// Path returns the entry's path.
func (e Entry) Path() string {
	if e.dir != nil {
		return e.dir.Path
	}
	return e.file.Path
}

// Wire form is externally tagged: {"Directory":{...}} or {"File":{...}}.
type entryJSON struct {
	Directory *DirectoryNode `json:"Directory,omitempty"`
	File      *FileEntry     `json:"File,omitempty"`
}

// MarshalJSON implements json.Marshaler. The whole subtree is written in a
// single pass.
func (n DirectoryNode) MarshalJSON() ([]byte, error) {
	return n.appendJSON(make([]byte, 0, 256))
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	return e.appendJSON(make([]byte, 0, 64))
}

func (n *DirectoryNode) appendJSON(buf []byte) ([]byte, error) {
	var err error
	buf = append(buf, `{"name":`...)
	if buf, err = appendString(buf, n.Name); err != nil {
		return nil, err
	}
	buf = append(buf, `,"path":`...)
	if buf, err = appendString(buf, n.Path); err != nil {
		return nil, err
	}
	buf = append(buf, `,"entries":[`...)
	for i := range n.Children {
		if i > 0 {
			buf = append(buf, ',')
		}
		if buf, err = n.Children[i].appendJSON(buf); err != nil {
			return nil, err
		}
	}
	return append(buf, "]}"...), nil
}

func (e *Entry) appendJSON(buf []byte) ([]byte, error) {
	if e.dir != nil {
		buf = append(buf, `{"Directory":`...)
		buf, err := e.dir.appendJSON(buf)
		if err != nil {
			return nil, err
		}
		return append(buf, '}'), nil
	}

	var err error
	buf = append(buf, `{"File":{"name":`...)
	if buf, err = appendString(buf, e.file.Name); err != nil {
		return nil, err
	}
	buf = append(buf, `,"path":`...)
	if buf, err = appendString(buf, e.file.Path); err != nil {
		return nil, err
	}
	return append(buf, "}}"...), nil
}

// appendString writes s as a JSON string. Invalid UTF-8 is replaced the way
// encoding/json does it. Strings are encoded one at a time because the
// encoder's escaping passes run over the whole output buffer.
func appendString(buf []byte, s string) ([]byte, error) {
	quoted, err := encoder.Encode(s, encoder.EscapeHTML|encoder.ValidateString)
	if err != nil {
		return nil, err
	}
	return append(buf, quoted...), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Directory != nil && raw.File != nil:
		return fmt.Errorf("entry has both Directory and File")
	case raw.Directory != nil:
		if raw.Directory.Children == nil {
			raw.Directory.Children = []Entry{}
		}
		*e = DirEntry(raw.Directory)
	case raw.File != nil:
		*e = FileEntryOf(raw.File.Name, raw.File.Path)
	default:
		return fmt.Errorf("entry has neither Directory nor File")
	}
	return nil
}

// Count returns the number of nodes in the tree, the root included.
func Count(node *DirectoryNode) int {
	if node == nil {
		return 0
	}
	count := 1
	for _, child := range node.Children {
		if child.IsDir() {
			count += Count(child.dir)
		} else {
			count++
		}
	}
	return count
}
