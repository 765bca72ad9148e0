package dbwriter

import (
	"sync"

	"github.com/agri-forecast/crop-price/internal/datastore"
)

// InMemWriter is an in-memory implementation of the DBWriter interface for testing.
type InMemWriter struct {
	mu       sync.RWMutex
	Records  []datastore.PriceRecord
	Batches  int
	IsClosed bool
}

// NewInMemWriter creates a new InMemWriter.
func NewInMemWriter() *InMemWriter {
	return &InMemWriter{Records: make([]datastore.PriceRecord, 0)}
}

// SavePriceRecords appends records to the in-memory slice.
func (w *InMemWriter) SavePriceRecords(records []datastore.PriceRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Records = append(w.Records, records...)
	w.Batches++
}

// Snapshot returns a copy of the archived records.
func (w *InMemWriter) Snapshot() []datastore.PriceRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]datastore.PriceRecord, len(w.Records))
	copy(out, w.Records)
	return out
}

// Close marks the writer as closed.
func (w *InMemWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.IsClosed = true
}

// Clear resets the writer.
func (w *InMemWriter) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Records = make([]datastore.PriceRecord, 0)
	w.Batches = 0
	w.IsClosed = false
}
