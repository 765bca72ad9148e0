package dbwriter

import (
	"go.uber.org/zap"

	"github.com/agri-forecast/crop-price/internal/datastore"
)

// dummyWriter is a no-op DBWriter used when no database is configured.
type dummyWriter struct {
	logger *zap.Logger
}

// NewDummyWriter creates a new dummy writer.
func NewDummyWriter(l *zap.Logger) DBWriter {
	l.Info("Creating dummy DB writer because no database connection is available.")
	return &dummyWriter{logger: l}
}

// SavePriceRecords does nothing.
func (d *dummyWriter) SavePriceRecords(records []datastore.PriceRecord) {
	d.logger.Debug("Dummy writer: dropping price records", zap.Int("count", len(records)))
}

// Close does nothing.
func (d *dummyWriter) Close() {
	d.logger.Debug("Dummy writer: Close called")
}
