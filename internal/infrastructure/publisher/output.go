package publisher

import (
	"bytes"
	"io"
	"sync"
)

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// lineWriter copies everything to raw and hands complete lines to lines.
type lineWriter struct {
	mu      sync.Mutex
	raw     io.Writer
	lines   io.Writer
	pending []byte
}

func newLineWriter(raw, lines io.Writer) *lineWriter {
	return &lineWriter{raw: raw, lines: lines}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.raw.Write(p); err != nil {
		return 0, err
	}
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimRight(w.pending[:i], "\r"); len(line) > 0 {
			_, _ = w.lines.Write(line)
		}
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

// Flush emits any unterminated last line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		_, _ = w.lines.Write(w.pending)
		w.pending = nil
	}
}
