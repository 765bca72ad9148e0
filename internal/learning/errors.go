package learning

import (
	"errors"
	"fmt"

	"github.com/agri-forecast/crop-price/internal/datastore"
)

// Failure kinds surfaced by the trainer, predictor and retrain policy.
// Callers match them with errors.Is.
var (
	// ErrNoData means the price table is empty, unreadable, or has no usable rows.
	ErrNoData = datastore.ErrNoData
	// ErrModelNotTrained means the model artifacts are missing or incomplete.
	ErrModelNotTrained = errors.New("model not trained")
	// ErrEncoding means the query could not be turned into a feature vector.
	ErrEncoding = errors.New("feature encoding failed")
	// ErrUnknownCategory is the ErrEncoding raised for a crop or district the
	// model cannot represent.
	ErrUnknownCategory = fmt.Errorf("%w: unknown category", ErrEncoding)
	// ErrInference means the regressor failed to produce a usable value.
	ErrInference = errors.New("inference failed")
	// ErrTraining wraps any failure of a training run.
	ErrTraining = errors.New("training failed")
)
