package router

import (
	"bufio"
	"io"
	"sync"

	"github.com/wippyai/clips-runtime/engine"
)

// WriterRouter routes a set of logical names to an io.Writer.
type WriterRouter struct {
	*Base

	mu    sync.Mutex
	w     io.Writer
	names map[string]bool
}

// NewWriterRouter routes names to w. With no names it claims stdout.
func NewWriterRouter(name string, priority int, w io.Writer, names ...string) *WriterRouter {
	if len(names) == 0 {
		names = []string{engine.STDOUT}
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return &WriterRouter{Base: NewBase(name, priority), w: w, names: set}
}

func (r *WriterRouter) Query(name string) bool {
	return r.names[name]
}

func (r *WriterRouter) Write(_, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.w, text)
}

// ReaderRouter serves character input for a set of logical names from
// an io.Reader.
type ReaderRouter struct {
	*Base

	mu      sync.Mutex
	in      *bufio.Reader
	pending []int
	names   map[string]bool
}

// NewReaderRouter reads names from rd. With no names it claims stdin.
func NewReaderRouter(name string, priority int, rd io.Reader, names ...string) *ReaderRouter {
	if len(names) == 0 {
		names = []string{engine.STDIN}
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return &ReaderRouter{Base: NewBase(name, priority), in: bufio.NewReader(rd), names: set}
}

func (r *ReaderRouter) Query(name string) bool {
	return r.names[name]
}

func (r *ReaderRouter) Read(string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.pending); n > 0 {
		ch := r.pending[n-1]
		r.pending = r.pending[:n-1]
		return ch
	}
	b, err := r.in.ReadByte()
	if err != nil {
		return -1
	}
	return int(b)
}

func (r *ReaderRouter) Unread(_ string, ch int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, ch)
	return ch
}
