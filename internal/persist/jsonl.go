package persist

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// jsonlWriter is a line-buffered, append-only JSONL sink backed by one open
// file handle. Each Write call marshals v with sonic, appends a trailing
// newline, and buffers it; the file is fsync'd on a fixed interval rather
// than on every write, trading a few seconds of durability for write
// throughput under the rolling-window tick cadence.
type jsonlWriter struct {
	mu       sync.Mutex
	file     *os.File
	buf      *bufio.Writer
	lines    int64
	closed   bool
	stopSync chan struct{}
	syncDone chan struct{}
}

// newJSONLWriter opens (creating and appending if necessary) the file at
// path and starts its periodic fsync goroutine.
func newJSONLWriter(path string, fsyncInterval time.Duration) (*jsonlWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}

	w := &jsonlWriter{
		file:     f,
		buf:      bufio.NewWriter(f),
		stopSync: make(chan struct{}),
		syncDone: make(chan struct{}),
	}
	go w.syncLoop(fsyncInterval)
	return w, nil
}

// Write marshals v as one JSON line and appends it to the buffer.
func (w *jsonlWriter) Write(v any) error {
	encoded, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("persist: marshal: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("persist: write: %w", os.ErrClosed)
	}
	if _, err := w.buf.Write(encoded); err != nil {
		return fmt.Errorf("persist: write: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("persist: write: %w", err)
	}
	w.lines++
	return nil
}

// Lines reports how many successful Write calls have been buffered.
func (w *jsonlWriter) Lines() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func (w *jsonlWriter) syncLoop(interval time.Duration) {
	defer close(w.syncDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.flushAndSync()
		case <-w.stopSync:
			return
		}
	}
}

func (w *jsonlWriter) flushAndSync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("persist: flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("persist: fsync: %w", err)
	}
	return nil
}

// Close stops the sync goroutine, flushes any buffered bytes, fsyncs once
// more, and closes the underlying file.
func (w *jsonlWriter) Close() error {
	close(w.stopSync)
	<-w.syncDone
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	if err := w.flushAndSync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
