package dbwriter

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/agri-forecast/crop-price/internal/config"
	"github.com/agri-forecast/crop-price/internal/datastore"
)

// PriceRecordsTable is the archive table.
const PriceRecordsTable = "price_records"

// maxBufferedBatches bounds how much is retained while the database is failing.
const maxBufferedBatches = 10

// priceRecordColumns is the CopyFrom column order.
var priceRecordColumns = []string{"date", "crop", "district", "price"}

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

// TimescaleWriter buffers price records and flushes them to Postgres with
// COPY, either when the batch is full or on the write interval.
type TimescaleWriter struct {
	pool         Pool
	logger       *zap.Logger
	config       config.DBWriterConfig
	buffer       []datastore.PriceRecord
	bufferMutex  sync.Mutex
	flushTicker  *time.Ticker
	flushNow     chan struct{}
	shutdownChan chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
}

// NewTimescaleWriter creates a writer on pool. A nil pool yields a dummy writer.
func NewTimescaleWriter(pool Pool, writerConfig config.DBWriterConfig, logger *zap.Logger) DBWriter {
	if pool == nil {
		return NewDummyWriter(logger)
	}

	if writerConfig.WriteIntervalSeconds <= 0 {
		logger.Warn("WriteIntervalSeconds is zero or negative, defaulting to 1s.", zap.Int("originalValue", writerConfig.WriteIntervalSeconds))
		writerConfig.WriteIntervalSeconds = 1
	}
	if writerConfig.BatchSize <= 0 {
		logger.Warn("BatchSize is zero or negative, defaulting to 100.", zap.Int("originalValue", writerConfig.BatchSize))
		writerConfig.BatchSize = 100
	}

	w := &TimescaleWriter{
		pool:         pool,
		logger:       logger,
		config:       writerConfig,
		buffer:       make([]datastore.PriceRecord, 0, writerConfig.BatchSize),
		flushTicker:  time.NewTicker(time.Duration(writerConfig.WriteIntervalSeconds) * time.Second),
		flushNow:     make(chan struct{}, 1),
		shutdownChan: make(chan struct{}),
		done:         make(chan struct{}),
	}
	go w.run()
	logger.Info("Started price archive writer", zap.Int("batch_size", writerConfig.BatchSize))
	return w
}

func (w *TimescaleWriter) run() {
	defer close(w.done)
	for {
		select {
		case <-w.flushTicker.C:
			w.flush()
		case <-w.flushNow:
			w.flush()
		case <-w.shutdownChan:
			return
		}
	}
}

// SavePriceRecords adds records to the buffer and, when it is full, asks the
// run goroutine to flush. It does not wait for the database.
func (w *TimescaleWriter) SavePriceRecords(records []datastore.PriceRecord) {
	if len(records) == 0 {
		return
	}
	w.bufferMutex.Lock()
	w.buffer = append(w.buffer, records...)
	shouldFlush := len(w.buffer) >= w.config.BatchSize
	w.bufferMutex.Unlock()

	if shouldFlush {
		select {
		case w.flushNow <- struct{}{}:
		default:
		}
	}
}

// flush copies the buffered batch to the database without holding the buffer
// lock. Only run and Close (after run has exited) call it.
func (w *TimescaleWriter) flush() {
	w.bufferMutex.Lock()
	batch := w.buffer
	w.buffer = make([]datastore.PriceRecord, 0, w.config.BatchSize)
	w.bufferMutex.Unlock()

	if len(batch) == 0 {
		return
	}
	w.logger.Debug("Flushing price records", zap.Int("count", len(batch)))
	n, err := w.pool.CopyFrom(
		context.Background(),
		pgx.Identifier{PriceRecordsTable},
		priceRecordColumns,
		pgx.CopyFromRows(toPriceRecordRows(batch)),
	)
	if err != nil {
		w.bufferMutex.Lock()
		defer w.bufferMutex.Unlock()
		w.buffer = append(batch, w.buffer...)
		w.logger.Error("Failed to batch insert price records", zap.Error(err), zap.Int("buffered", len(w.buffer)))
		// Keep records for the next flush, up to maxBufferedBatches batches.
		if limit := w.config.BatchSize * maxBufferedBatches; len(w.buffer) > limit {
			dropped := len(w.buffer) - limit
			w.buffer = append(w.buffer[:0], w.buffer[dropped:]...)
			w.logger.Warn("Dropped oldest unarchived price records", zap.Int("dropped", dropped))
		}
		return
	}
	w.logger.Debug("Archived price records", zap.Int64("rows", n))
}

func toPriceRecordRows(records []datastore.PriceRecord) [][]interface{} {
	rows := make([][]interface{}, len(records))
	for i, r := range records {
		rows[i] = []interface{}{r.Date, r.Crop, r.District, r.Price}
	}
	return rows
}

// Close flushes the buffer and closes the pool.
func (w *TimescaleWriter) Close() {
	w.closeOnce.Do(func() {
		w.logger.Info("Closing price archive writer...")
		close(w.shutdownChan)
		<-w.done
		w.flushTicker.Stop()
		w.flush()
		w.pool.Close()
		w.logger.Info("Price archive connection pool closed")
	})
}
