// Package stream exposes a single open file as a lazy, finite sequence of
// bounded-size chunks. Nothing is read ahead: each chunk is read when the
// consumer pulls it, so memory stays bounded by the chunk size regardless of
// file size and a slow consumer slows the reads down.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
)

// DefaultChunkSize is the largest chunk a pull returns.
const DefaultChunkSize = 256 << 10

// Error kinds. Compare with errors.Is.
var (
	ErrFileOpen   = errors.New("file open failure")
	ErrStreamRead = errors.New("stream read failure")
)

// Error describes a failure to open or read a streamed file.
type Error struct {
	Kind error
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Cursor is an in-progress read of one file. It owns the file handle and is
// not safe for concurrent use.
type Cursor struct {
	f         fs.File
	name      string
	chunkSize int
	total     int64
	emitted   int64

	pending error // read error held back until the bytes read with it are consumed
	done    bool
	closed  bool
}

// Open opens path for streaming.
func Open(path string, chunkSize int) (*Cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: ErrFileOpen, Path: path, Err: err}
	}
	c, err := New(f, chunkSize)
	if err != nil {
		return nil, err
	}
	c.name = path
	return c, nil
}

// New wraps an already open file. The cursor takes ownership of f and closes
// it on failure. A chunkSize <= 0 selects DefaultChunkSize.
func New(f fs.File, chunkSize int) (*Cursor, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &Error{Kind: ErrFileOpen, Err: err}
	}
	if info.IsDir() {
		f.Close()
		return nil, &Error{Kind: ErrFileOpen, Path: info.Name(), Err: errors.New("is a directory")}
	}
	return &Cursor{
		f:         f,
		name:      info.Name(),
		chunkSize: chunkSize,
		total:     info.Size(),
	}, nil
}

// Total returns the file length captured when the cursor was created.
func (c *Cursor) Total() int64 { return c.total }

// Emitted returns the number of bytes handed out so far.
func (c *Cursor) Emitted() int64 { return c.emitted }

// SizeHint returns bounds on the bytes still to come. The upper bound is
// approximate if the file changes while it is being streamed.
func (c *Cursor) SizeHint() (lower, upper int64) {
	if c.done {
		return 0, 0
	}
	return 0, max(c.total-c.emitted, 0)
}

// Next pulls the next chunk. It returns io.EOF once the file is exhausted. A
// read failure is returned once as an *Error of kind ErrStreamRead; after
// that, and after io.EOF, every call returns io.EOF. The file is closed as
// soon as the sequence ends.
func (c *Cursor) Next() ([]byte, error) {
	if c.done {
		return nil, io.EOF
	}
	if c.pending != nil {
		err := c.pending
		c.pending = nil
		c.Close()
		return nil, &Error{Kind: ErrStreamRead, Path: c.name, Err: err}
	}

	buf := make([]byte, c.bufferSize())
	n, err := io.ReadFull(c.f, buf)
	if n > 0 {
		c.emitted += int64(n)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			c.pending = err
		}
		return buf[:n], nil
	}

	c.Close()
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, io.EOF
	}
	return nil, &Error{Kind: ErrStreamRead, Path: c.name, Err: err}
}

// bufferSize keeps small files from allocating a full chunk. The extra byte
// lets a read detect EOF or growth past the size seen at open.
func (c *Cursor) bufferSize() int {
	remaining := c.total - c.emitted
	if remaining >= 0 && remaining < int64(c.chunkSize) {
		return int(remaining) + 1
	}
	return c.chunkSize
}

// Chunks returns the remaining content as a sequence. Iteration stops, and
// the file is closed, when the content ends, after a single error item, when
// the consumer stops ranging, or when ctx is done. No read happens after ctx
// is cancelled. The sequence cannot be restarted.
func (c *Cursor) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer c.Close()
		for {
			if ctx.Err() != nil {
				return
			}
			chunk, err := c.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Close releases the file handle. It is safe to call more than once.
func (c *Cursor) Close() error {
	c.done = true
	c.pending = nil
	if c.closed {
		return nil
	}
	c.closed = true
	return c.f.Close()
}
