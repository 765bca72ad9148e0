package datastore

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]PriceRecord
}

func (s *recordingSink) SavePriceRecords(records []PriceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, records)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T, now time.Time, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "prices.csv")
	opts = append([]Option{WithClock(fixedClock(now)), WithRand(rand.New(rand.NewSource(1)))}, opts...)
	return NewStore(path, zap.NewNop(), opts...)
}

func TestStore_LoadMissingFileIsNoData(t *testing.T) {
	s := newTestStore(t, day(2024, 3, 10))
	_, err := s.Load()
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Equal(t, "N/A", s.LastUpdated())
}

func TestStore_AppendPreservesInsertionOrderAndDuplicates(t *testing.T) {
	s := newTestStore(t, day(2024, 3, 10))

	first := PriceRecord{Date: day(2024, 3, 1), Crop: "Pepper", District: "Udupi", Price: 45000.5}
	dup := PriceRecord{Date: day(2024, 3, 1), Crop: "Pepper", District: "Udupi", Price: 46000}
	older := PriceRecord{Date: day(2024, 1, 1), Crop: "Coconut", District: "Kolar", Price: 8000}

	require.NoError(t, s.Append(first))
	require.NoError(t, s.Append(dup, older))

	records, err := s.Load()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, first, records[0])
	assert.Equal(t, dup, records[1], "later duplicates are kept, not merged")
	assert.Equal(t, older, records[2])

	assert.Equal(t, "2024-03-01", s.LastUpdated())
}

func TestStore_LoadSkipsMalformedRows(t *testing.T) {
	s := newTestStore(t, day(2024, 3, 10))
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	content := "Date,District,Crop,Price\n" +
		"2024-01-01,Mysuru,Coconut,8100.00\n" +
		"not-a-date,Mysuru,Coconut,8100.00\n" +
		"2024-01-02,Mysuru,Coconut,\n" +
		"2024-01-03,Mysuru,Coconut,-5\n" +
		"2024-01-04,,Coconut,10\n" +
		"2024-01-05,Mysuru,Coconut,NaN\n" +
		"2024-01-06,Hassan,Pepper,44000\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	records, err := s.Load()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Coconut", records[0].Crop, "columns are matched by header name")
	assert.Equal(t, "Mysuru", records[0].District)
	assert.Equal(t, "Hassan", records[1].District)
}

func TestStore_LoadRejectsMissingColumns(t *testing.T) {
	s := newTestStore(t, day(2024, 3, 10))
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("Date,Crop,Price\n2024-01-01,Coconut,1\n"), 0o644))

	_, err := s.Load()
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestStore_RefreshTwiceSameDayIsNoop(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)
	sink := &recordingSink{}
	s := newTestStore(t, now, WithSink(sink))

	require.NoError(t, s.Append(
		PriceRecord{Date: day(2024, 3, 1), Crop: "Coconut", District: "Mysuru", Price: 8000},
		PriceRecord{Date: day(2024, 3, 2), Crop: "Pepper", District: "Hassan", Price: 45000},
	))

	n, err := s.Refresh()
	require.NoError(t, err)
	// Two crops x two districts seen in the data.
	assert.Equal(t, 4, n)

	n, err = s.Refresh()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	records, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, records, 6)

	todayCount := 0
	for _, r := range records {
		if r.Date.Equal(day(2024, 3, 10)) {
			todayCount++
		}
	}
	assert.Equal(t, 4, todayCount, "no duplicate same-day rows")

	require.Len(t, sink.batches, 2, "initial append plus one refresh")
	assert.Len(t, sink.batches[1], 4)
}

func TestStore_RefreshPricesStayWithinJitter(t *testing.T) {
	now := day(2024, 3, 10)
	s := newTestStore(t, now)

	require.NoError(t, s.Append(
		// Recent history for (Coconut, Mysuru): mean 9000.
		PriceRecord{Date: day(2024, 3, 1), Crop: "Coconut", District: "Mysuru", Price: 8000},
		PriceRecord{Date: day(2024, 3, 5), Crop: "Coconut", District: "Mysuru", Price: 10000},
		// Old history only for (Coconut, Kolar): falls back to the crop mean.
		PriceRecord{Date: day(2023, 1, 1), Crop: "Coconut", District: "Kolar", Price: 6000},
	))

	_, err := s.Refresh()
	require.NoError(t, err)

	records, err := s.Load()
	require.NoError(t, err)

	cropMean := (8000.0 + 10000 + 6000) / 3
	for _, r := range records {
		if !r.Date.Equal(now) {
			continue
		}
		switch r.District {
		case "Mysuru":
			assert.InDelta(t, 9000, r.Price, 9000*RefreshJitter+0.01)
		case "Kolar":
			assert.InDelta(t, cropMean, r.Price, cropMean*RefreshJitter+0.01)
		default:
			t.Fatalf("unexpected district %s", r.District)
		}
	}
}

func TestStore_RefreshWithoutDataIsNoData(t *testing.T) {
	s := newTestStore(t, day(2024, 3, 10))
	_, err := s.Refresh()
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestStore_History(t *testing.T) {
	s := newTestStore(t, day(2024, 3, 10))
	require.NoError(t, s.Append(
		PriceRecord{Date: day(2024, 3, 5), Crop: "Coconut", District: "Mysuru", Price: 8200},
		PriceRecord{Date: day(2023, 1, 1), Crop: "Coconut", District: "Mysuru", Price: 7000},
		PriceRecord{Date: day(2024, 2, 1), Crop: "Coconut", District: "Mysuru", Price: 8100},
		PriceRecord{Date: day(2024, 2, 1), Crop: "Pepper", District: "Mysuru", Price: 45000},
	))

	points, err := s.History("Coconut", "Mysuru", 365)
	require.NoError(t, err)
	require.Len(t, points, 2, "the 2023 record is outside the window")
	assert.Equal(t, day(2024, 2, 1), points[0].Date)
	assert.Equal(t, day(2024, 3, 5), points[1].Date)

	_, err = s.History("Arecanut", "Mysuru", 365)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestStore_IsStale(t *testing.T) {
	s := newTestStore(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))
	require.NoError(t, s.Append(PriceRecord{Date: day(2024, 3, 9), Crop: "Coconut", District: "Mysuru", Price: 1}))

	stale, err := s.IsStale()
	require.NoError(t, err)
	assert.True(t, stale)

	require.NoError(t, s.Append(PriceRecord{Date: day(2024, 3, 10), Crop: "Coconut", District: "Mysuru", Price: 1}))
	stale, err = s.IsStale()
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestStore_SeedIfMissing(t *testing.T) {
	now := day(2024, 6, 15)
	sink := &recordingSink{}
	s := newTestStore(t, now, WithSink(sink))

	seeded, err := s.SeedIfMissing()
	require.NoError(t, err)
	require.True(t, seeded)

	records, err := s.Load()
	require.NoError(t, err)

	// 730 days back from 2024-06-15 is 2022-06-16, then the first of each month
	// through 2024-06-01: 25 points per pair.
	assert.Len(t, records, 25*len(Crops)*len(Districts))
	for _, r := range records {
		base := BasePrices[Crop(r.Crop)]
		assert.GreaterOrEqual(t, r.Price, base*0.7-0.01)
		assert.LessOrEqual(t, r.Price, base*1.5+0.01)
		assert.True(t, IsValidDistrict(r.District))
	}
	require.Len(t, sink.batches, 1)

	seeded, err = s.SeedIfMissing()
	require.NoError(t, err)
	assert.False(t, seeded, "existing data is never overwritten")
}

func TestDistrictFactorIsStable(t *testing.T) {
	for _, d := range Districts {
		f := districtFactor(d)
		assert.Equal(t, f, districtFactor(d))
		assert.GreaterOrEqual(t, f, 0.9)
		assert.LessOrEqual(t, f, 1.09+1e-9)
	}
}

func TestValidCategories(t *testing.T) {
	assert.True(t, IsValidCrop("Arecanut"))
	assert.False(t, IsValidCrop("Rice"))
	assert.True(t, IsValidDistrict("Bengaluru Urban"))
	assert.False(t, IsValidDistrict("Atlantis"))
	assert.Len(t, Districts, 30)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "8000.00", FormatPrice(8000))
	assert.Equal(t, "1234.57", FormatPrice(1234.567))
	assert.Equal(t, 1234.57, RoundPrice(1234.5678))
}
