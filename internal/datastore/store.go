package datastore

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agri-forecast/crop-price/internal/csvwriter"
)

const (
	// RefreshWindowDays is the trailing window whose mean seeds a refreshed price.
	RefreshWindowDays = 30
	// RefreshJitter bounds the relative random variation of a refreshed price.
	RefreshJitter = 0.05
)

// RecordSink receives records after they have been committed to the price table.
type RecordSink interface {
	SavePriceRecords(records []PriceRecord)
}

// Store is the flat-file price table. All mutations rewrite the file through
// a temporary file and rename, so concurrent readers never observe a partial table.
type Store struct {
	path   string
	logger *zap.Logger
	sink   RecordSink
	now    func() time.Time

	mu  sync.RWMutex
	rng *rand.Rand
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for "today".
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRand sets the random source used for seeding and refresh jitter.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) { s.rng = r }
}

// WithSink registers a sink notified of every appended record.
func WithSink(sink RecordSink) Option {
	return func(s *Store) { s.sink = sink }
}

// NewStore creates a Store backed by the CSV file at path.
func NewStore(path string, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: logger,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the location of the CSV file.
func (s *Store) Path() string {
	return s.path
}

// Load returns every record in insertion order. A missing file is ErrNoData.
func (s *Store) Load() ([]PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

func (s *Store) load() ([]PriceRecord, error) {
	records, err := LoadPriceRecordsFromCSV(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoData, s.path)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	return records, nil
}

// Append adds records to the end of the table.
func (s *Store) Append(records ...PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		// Only a missing table may be created; an unreadable one is never overwritten.
		if _, statErr := os.Stat(s.path); !errors.Is(statErr, os.ErrNotExist) {
			return err
		}
		existing = nil
	}
	return s.write(existing, records)
}

// write rewrites the table as existing followed by added and notifies the sink.
func (s *Store) write(existing, added []PriceRecord) error {
	w, err := csvwriter.NewWriter(s.path, s.logger)
	if err != nil {
		return err
	}
	if err := w.Write(CSVHeader); err != nil {
		w.Abort()
		return err
	}
	for _, batch := range [][]PriceRecord{existing, added} {
		for _, rec := range batch {
			if err := w.Write(CSVRow(rec)); err != nil {
				w.Abort()
				return err
			}
		}
	}
	if err := w.Commit(); err != nil {
		return err
	}

	if s.sink != nil {
		s.sink.SavePriceRecords(added)
	}
	return nil
}

// LatestDate returns the most recent record date.
func (s *Store) LatestDate() (time.Time, error) {
	records, err := s.Load()
	if err != nil {
		return time.Time{}, err
	}
	if len(records) == 0 {
		return time.Time{}, ErrNoData
	}
	return latestDate(records), nil
}

func latestDate(records []PriceRecord) time.Time {
	var latest time.Time
	for _, r := range records {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest
}

// LastUpdated returns the latest record date as YYYY-MM-DD, or "N/A".
func (s *Store) LastUpdated() string {
	latest, err := s.LatestDate()
	if err != nil {
		return "N/A"
	}
	return latest.Format(DateLayout)
}

// IsStale reports whether the newest stored date is before today.
func (s *Store) IsStale() (bool, error) {
	latest, err := s.LatestDate()
	if err != nil {
		return false, err
	}
	return latest.Before(DateOf(s.now())), nil
}

// History returns the crop/district series within the last windowDays days,
// sorted by date. ErrNoData is returned when the pair has no records at all.
func (s *Store) History(crop, district string, windowDays int) ([]PricePoint, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}

	var matched []PriceRecord
	for _, r := range records {
		if r.Crop == crop && r.District == district {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("%w for %s in %s", ErrNoData, crop, district)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Date.Before(matched[j].Date)
	})

	cutoff := DateOf(s.now()).AddDate(0, 0, -windowDays)
	points := make([]PricePoint, 0, len(matched))
	for _, r := range matched {
		if r.Date.Before(cutoff) {
			continue
		}
		points = append(points, PricePoint{Date: r.Date, Price: r.Price})
	}
	return points, nil
}

type pairKey struct {
	crop, district string
}

// Refresh appends one record dated today for every (crop, district) pair in
// the table that has no record for today yet. The price is the pair's
// trailing 30-day mean, or the crop's overall mean when the pair has no recent
// history, varied by up to ±5%. It returns the number of records appended;
// a second call on the same day appends nothing.
func (s *Store) Refresh() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, ErrNoData
	}

	today := DateOf(s.now())
	windowStart := today.AddDate(0, 0, -RefreshWindowDays)

	var (
		crops     []string
		districts []string
		seenCrop  = map[string]bool{}
		seenDist  = map[string]bool{}
		hasToday  = map[pairKey]bool{}
		recentSum = map[pairKey]float64{}
		recentN   = map[pairKey]int{}
		cropSum   = map[string]float64{}
		cropN     = map[string]int{}
	)
	for _, r := range records {
		if !seenCrop[r.Crop] {
			seenCrop[r.Crop] = true
			crops = append(crops, r.Crop)
		}
		if !seenDist[r.District] {
			seenDist[r.District] = true
			districts = append(districts, r.District)
		}
		k := pairKey{r.Crop, r.District}
		if r.Date.Equal(today) {
			hasToday[k] = true
		}
		if !r.Date.Before(windowStart) {
			recentSum[k] += r.Price
			recentN[k]++
		}
		cropSum[r.Crop] += r.Price
		cropN[r.Crop]++
	}

	var added []PriceRecord
	for _, crop := range crops {
		for _, district := range districts {
			k := pairKey{crop, district}
			if hasToday[k] {
				continue
			}
			var base float64
			if n := recentN[k]; n > 0 {
				base = recentSum[k] / float64(n)
			} else {
				base = cropSum[crop] / float64(cropN[crop])
			}
			jitter := 1.0 + (s.rng.Float64()*2-1)*RefreshJitter
			added = append(added, PriceRecord{
				Date:     today,
				Crop:     crop,
				District: district,
				Price:    RoundPrice(base * jitter),
			})
		}
	}

	if len(added) == 0 {
		s.logger.Info("Price data is already up to date", zap.String("date", today.Format(DateLayout)))
		return 0, nil
	}
	if err := s.write(records, added); err != nil {
		return 0, err
	}
	s.logger.Info("Appended daily price records",
		zap.Int("count", len(added)),
		zap.String("date", today.Format(DateLayout)))
	return len(added), nil
}
