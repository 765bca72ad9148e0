package learning

import (
	"fmt"
	"sort"
	"time"

	"github.com/agri-forecast/crop-price/internal/datastore"
)

// Column naming shared by the trainer and the encoder.
const (
	CropPrefix     = "Crop_"
	DistrictPrefix = "District_"
	ColYear        = "Year"
	ColMonth       = "Month"
	ColDay         = "Day"
)

// temporalColumns are appended after the one-hot blocks, in this order.
var temporalColumns = []string{ColYear, ColMonth, ColDay}

// FeatureVector is a row of model input: Values[i] belongs to Columns[i].
type FeatureVector struct {
	Columns []string
	Values  []float64
}

// Schema is the ordered feature column list that binds a trained model to its
// encoder. It is produced once by the trainer, persisted with the model and
// re-applied verbatim at inference time.
type Schema struct {
	columns []string
	index   map[string]int
}

// NewSchema validates a persisted column list: names must be unique and the
// Year, Month and Day columns must be present.
func NewSchema(columns []string) (*Schema, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: empty feature column list", ErrModelNotTrained)
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("%w: duplicate feature column %q", ErrModelNotTrained, c)
		}
		index[c] = i
	}
	for _, c := range temporalColumns {
		if _, ok := index[c]; !ok {
			return nil, fmt.Errorf("%w: feature column %q missing", ErrModelNotTrained, c)
		}
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Schema{columns: cols, index: index}, nil
}

// BuildSchema lays out the columns for the given categories: sorted crop
// indicators, sorted district indicators, then Year, Month, Day.
func BuildSchema(crops, districts []string) *Schema {
	cs := uniqueSorted(crops)
	ds := uniqueSorted(districts)

	columns := make([]string, 0, len(cs)+len(ds)+len(temporalColumns))
	for _, c := range cs {
		columns = append(columns, CropPrefix+c)
	}
	for _, d := range ds {
		columns = append(columns, DistrictPrefix+d)
	}
	columns = append(columns, temporalColumns...)

	s, err := NewSchema(columns)
	if err != nil {
		// Only reachable if a category name collides with a temporal column.
		panic(err)
	}
	return s
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Columns returns a copy of the ordered column list.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Len is the number of features.
func (s *Schema) Len() int {
	return len(s.columns)
}

// Encode builds the feature vector for a query. Crops and districts outside
// the closed sets, or never seen while training, are rejected with
// ErrUnknownCategory rather than silently encoded as all-zero indicators.
func (s *Schema) Encode(crop, district string, date time.Time) (FeatureVector, error) {
	if !datastore.IsValidCrop(crop) {
		return FeatureVector{}, fmt.Errorf("%w: crop %q", ErrUnknownCategory, crop)
	}
	if !datastore.IsValidDistrict(district) {
		return FeatureVector{}, fmt.Errorf("%w: district %q", ErrUnknownCategory, district)
	}
	if date.IsZero() {
		return FeatureVector{}, fmt.Errorf("%w: missing date", ErrEncoding)
	}
	values, err := s.encode(crop, district, date)
	if err != nil {
		return FeatureVector{}, err
	}
	return FeatureVector{Columns: s.Columns(), Values: values}, nil
}

// encode fills a zero vector over the schema. It does not check the closed
// category sets; the trainer filters rows before calling it.
func (s *Schema) encode(crop, district string, date time.Time) ([]float64, error) {
	values := make([]float64, len(s.columns))

	i, ok := s.index[CropPrefix+crop]
	if !ok {
		return nil, fmt.Errorf("%w: crop %q was not seen in training", ErrUnknownCategory, crop)
	}
	values[i] = 1

	i, ok = s.index[DistrictPrefix+district]
	if !ok {
		return nil, fmt.Errorf("%w: district %q was not seen in training", ErrUnknownCategory, district)
	}
	values[i] = 1

	y, m, d := date.Date()
	values[s.index[ColYear]] = float64(y)
	values[s.index[ColMonth]] = float64(m)
	values[s.index[ColDay]] = float64(d)
	return values, nil
}

// Reindex lays out v over the schema's columns in order, zero-filling any
// column v lacks. A column the schema does not know is an error: values are
// never dropped or shifted silently.
func (s *Schema) Reindex(v FeatureVector) ([]float64, error) {
	if len(v.Columns) != len(v.Values) {
		return nil, fmt.Errorf("%w: %d columns but %d values", ErrEncoding, len(v.Columns), len(v.Values))
	}
	out := make([]float64, len(s.columns))
	for i, c := range v.Columns {
		j, ok := s.index[c]
		if !ok {
			return nil, fmt.Errorf("%w: column %q is not part of the model", ErrEncoding, c)
		}
		out[j] = v.Values[i]
	}
	return out, nil
}
