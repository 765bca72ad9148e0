// Package csvwriter writes CSV files that replace their target atomically.
package csvwriter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Writer buffers records into a temporary file next to the target path.
// Readers of the target see either the previous file or the fully written
// new one once Commit returns.
type Writer struct {
	file   *os.File
	writer *csv.Writer
	target string
	logger *zap.Logger
	mu     sync.Mutex
	done   bool
}

// NewWriter creates a new CSV writer for filePath.
func NewWriter(filePath string, logger *zap.Logger) (*Writer, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for CSV file: %w", err)
	}
	file, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}

	return &Writer{
		file:   file,
		writer: csv.NewWriter(file),
		target: filePath,
		logger: logger,
	}, nil
}

// Write writes a record to the CSV file.
func (w *Writer) Write(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record to CSV: %w", err)
	}
	return nil
}

// Commit flushes, syncs and renames the temporary file over the target.
func (w *Writer) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return fmt.Errorf("csv writer for %s already closed", w.target)
	}
	w.done = true

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.discard()
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("failed to sync CSV: %w", err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.file.Name())
		return fmt.Errorf("failed to close CSV: %w", err)
	}
	if err := os.Rename(w.file.Name(), w.target); err != nil {
		os.Remove(w.file.Name())
		return fmt.Errorf("failed to replace %s: %w", w.target, err)
	}
	w.logger.Debug("CSV file replaced", zap.String("path", w.target))
	return nil
}

// Abort drops the temporary file and leaves the target untouched.
// It is a no-op after Commit.
func (w *Writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.done = true
	w.discard()
}

func (w *Writer) discard() {
	w.file.Close()
	if err := os.Remove(w.file.Name()); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("Failed to remove temporary CSV file", zap.String("path", w.file.Name()), zap.Error(err))
	}
}
