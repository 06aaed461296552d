// internal/output/jsonl.go
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fetchlab/cataloger/pkg/types"
)

// JSONLWriter appends one JSON object per line. Opening an existing file
// appends to it rather than truncating, so interrupted runs can resume
// into the same output.
type JSONLWriter struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	closed bool
}

// NewJSONLWriter opens (or creates) the target file for appending.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl output path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open jsonl file: %w", err)
	}

	return &JSONLWriter{
		file: file,
		buf:  bufio.NewWriter(file),
	}, nil
}

// Append writes each record on its own line.
func (w *JSONLWriter) Append(records []*types.ProductRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("jsonl writer is closed")
	}

	enc := json.NewEncoder(w.buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	return w.buf.Flush()
}

// Close flushes and closes the file.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush jsonl output: %w", err)
	}
	return w.file.Close()
}
