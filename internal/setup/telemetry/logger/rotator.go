// Package logger provides a file writer that keeps only the most recent log lines.
package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Rotator writes log output to a file and periodically rewrites the file so it
// holds at most maxLines lines. The rewrite happens once twice the limit has been
// written, keeping appends cheap in between.
type Rotator struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	window  *lineWindow
	written int
}

// NewRotator opens path for appending. A non-positive maxLines disables trimming.
func NewRotator(path string, maxLines int) (*Rotator, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	r := &Rotator{file: file, path: path}
	if maxLines > 0 {
		r.window = newLineWindow(maxLines)
	}

	return r, nil
}

// Write implements io.Writer.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.file.Write(p)
	if err != nil || r.window == nil {
		return n, err
	}

	for line := range bytes.SplitSeq(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		r.window.push(string(line))
		r.written++

		if r.written >= r.window.capacity()*2 {
			if err := r.trim(); err != nil {
				return n, fmt.Errorf("failed to trim log file: %w", err)
			}
			r.written = r.window.len()
		}
	}

	return n, nil
}

// Sync flushes the file to disk.
func (r *Rotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Sync()
}

// Close closes the underlying file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

// trim replaces the file with the lines held in the window.
func (r *Rotator) trim() error {
	temp, err := os.CreateTemp(filepath.Dir(r.path), ".rotate-*")
	if err != nil {
		return err
	}
	tempPath := temp.Name()

	var buf bytes.Buffer
	for _, line := range r.window.lines() {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return err
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return err
	}

	_ = r.file.Close()
	_ = os.Remove(r.path)

	if err := os.Rename(tempPath, r.path); err != nil {
		return err
	}

	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.file = file

	return nil
}

// lineWindow is a fixed-size circular buffer of the newest lines.
type lineWindow struct {
	buf  []string
	next int
	size int
}

func newLineWindow(capacity int) *lineWindow {
	return &lineWindow{buf: make([]string, capacity)}
}

func (w *lineWindow) capacity() int { return len(w.buf) }

func (w *lineWindow) len() int { return w.size }

func (w *lineWindow) push(line string) {
	w.buf[w.next] = line
	w.next = (w.next + 1) % len(w.buf)
	if w.size < len(w.buf) {
		w.size++
	}
}

// lines returns the buffered lines oldest first.
func (w *lineWindow) lines() []string {
	out := make([]string, 0, w.size)
	start := (w.next - w.size + len(w.buf)) % len(w.buf)
	for i := range w.size {
		out = append(out, w.buf[(start+i)%len(w.buf)])
	}
	return out
}
