package datastore

import (
	"hash/fnv"
	"math"
	"os"
	"time"

	"go.uber.org/zap"
)

// SampleHistoryDays is how far back generated sample data reaches.
const SampleHistoryDays = 730

// SeedIfMissing writes generated sample data when the price table does not
// exist yet. It reports whether data was written.
func (s *Store) SeedIfMissing() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	records := s.sampleRecords()
	if err := s.write(nil, records); err != nil {
		return false, err
	}
	s.logger.Info("Sample price data initialized", zap.Int("records", len(records)), zap.String("path", s.path))
	return true, nil
}

// sampleRecords generates roughly two years of monthly prices for every crop
// and district: base price with a seasonal factor, a stable per-district
// offset and ±15% noise, clamped to [0.7, 1.5] of the base price.
func (s *Store) sampleRecords() []PriceRecord {
	now := s.now()
	today := DateOf(now)
	start := today.AddDate(0, 0, -SampleHistoryDays)

	var records []PriceRecord
	for _, crop := range Crops {
		base := BasePrices[crop]
		for _, district := range Districts {
			for cur := start; cur.Before(today) || cur.Equal(today); cur = firstOfNextMonth(cur) {
				seasonal := seasonalFactor(cur.Month())
				noise := 1.0 + (s.rng.Float64()*2-1)*0.15
				price := base * seasonal * districtFactor(district) * noise
				price = math.Max(base*0.7, math.Min(base*1.5, price))

				records = append(records, PriceRecord{
					Date:     cur,
					Crop:     string(crop),
					District: district,
					Price:    RoundPrice(price),
				})
			}
		}
	}
	return records
}

func firstOfNextMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

func seasonalFactor(m time.Month) float64 {
	switch m {
	case time.October, time.November, time.December, time.January:
		return 1.1
	case time.June, time.July, time.August:
		return 0.95
	default:
		return 1.0
	}
}

// districtFactor is a deterministic ±10% offset derived from the name.
func districtFactor(district string) float64 {
	h := fnv.New32a()
	h.Write([]byte(district))
	return 1.0 + float64(int(h.Sum32()%20)-10)/100
}
