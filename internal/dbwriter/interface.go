package dbwriter

import (
	"github.com/agri-forecast/crop-price/internal/datastore"
)

// DBWriter archives committed price records. SavePriceRecords only buffers;
// database writes happen on the writer's own goroutine, which lets the data
// store call it as its RecordSink while holding its lock.
type DBWriter interface {
	SavePriceRecords(records []datastore.PriceRecord)
	Close()
}
