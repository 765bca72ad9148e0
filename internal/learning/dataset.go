package learning

import (
	"math"
	"math/rand"

	"github.com/agri-forecast/crop-price/internal/datastore"
)

const (
	// TestFraction is the share of rows held out for evaluation.
	TestFraction = 0.2
	// SplitSeed fixes the train/test shuffle.
	SplitSeed = 42
)

// Dataset is the encoded training table.
type Dataset struct {
	Schema  *Schema
	X       [][]float64
	Y       []float64
	Dropped int
}

// usable reports whether a record can become a training row.
func usable(r datastore.PriceRecord) bool {
	if r.Date.IsZero() || r.Crop == "" || r.District == "" {
		return false
	}
	if !datastore.IsValidCrop(r.Crop) || !datastore.IsValidDistrict(r.District) {
		return false
	}
	return !math.IsNaN(r.Price) && !math.IsInf(r.Price, 0) && r.Price >= 0
}

// BuildDataset derives the schema from the categories present in records and
// encodes every usable row. Unusable rows are counted and skipped.
func BuildDataset(records []datastore.PriceRecord) (*Dataset, error) {
	rows := make([]datastore.PriceRecord, 0, len(records))
	var crops, districts []string
	for _, r := range records {
		if !usable(r) {
			continue
		}
		rows = append(rows, r)
		crops = append(crops, r.Crop)
		districts = append(districts, r.District)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	schema := BuildSchema(crops, districts)
	ds := &Dataset{
		Schema:  schema,
		X:       make([][]float64, 0, len(rows)),
		Y:       make([]float64, 0, len(rows)),
		Dropped: len(records) - len(rows),
	}
	for _, r := range rows {
		x, err := schema.encode(r.Crop, r.District, r.Date)
		if err != nil {
			return nil, err
		}
		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, r.Price)
	}
	return ds, nil
}

// Split partitions row indices into train and test sets using a fixed seed,
// so identical data always yields the identical split. When holding out a
// test share would leave nothing to train on, every row goes to training.
func Split(n int) (train, test []int) {
	perm := rand.New(rand.NewSource(SplitSeed)).Perm(n)
	nTest := int(math.Ceil(float64(n) * TestFraction))
	if n-nTest < 1 {
		nTest = 0
	}
	return perm[nTest:], perm[:nTest]
}

func gather(ds *Dataset, idx []int) ([][]float64, []float64) {
	X := make([][]float64, len(idx))
	y := make([]float64, len(idx))
	for i, j := range idx {
		X[i] = ds.X[j]
		y[i] = ds.Y[j]
	}
	return X, y
}
