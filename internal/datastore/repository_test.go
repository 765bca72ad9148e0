package datastore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimescaleRepository_FetchPriceRecords(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTimescaleRepository(mock)
	from := day(2024, 6, 1)
	to := time.Date(2024, 6, 30, 18, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"date", "crop", "district", "price"}).
			AddRow(day(2024, 6, 1), "Coconut", "Mysuru", decimal.RequireFromString("8100.25")).
			AddRow(day(2024, 6, 2), "Pepper", "Kodagu", decimal.RequireFromString("45999.99"))

		mock.ExpectQuery(regexp.QuoteMeta(fetchPriceRecordsQuery)).
			WithArgs(day(2024, 6, 1), day(2024, 6, 30)).
			WillReturnRows(rows)

		records, err := repo.FetchPriceRecords(ctx, from, to)
		require.NoError(t, err)
		assert.Equal(t, []PriceRecord{
			{Date: day(2024, 6, 1), Crop: "Coconut", District: "Mysuru", Price: 8100.25},
			{Date: day(2024, 6, 2), Crop: "Pepper", District: "Kodagu", Price: 45999.99},
		}, records)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		mock.ExpectQuery(".*").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(assert.AnError)

		_, err := repo.FetchPriceRecords(ctx, from, to)
		assert.ErrorIs(t, err, assert.AnError)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSummarizeByCrop(t *testing.T) {
	records := []PriceRecord{
		{Date: day(2024, 1, 1), Crop: "Pepper", District: "Kodagu", Price: 45000},
		{Date: day(2024, 2, 1), Crop: "Coconut", District: "Mysuru", Price: 8000.10},
		{Date: day(2024, 1, 1), Crop: "Coconut", District: "Hassan", Price: 8000.20},
		{Date: day(2024, 3, 1), Crop: "Coconut", District: "Mysuru", Price: 8000.30},
	}

	summaries, err := SummarizeByCrop(records)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	c := summaries[0]
	assert.Equal(t, "Coconut", c.Crop)
	assert.Equal(t, 3, c.Records)
	assert.Equal(t, 2, c.Districts)
	assert.Equal(t, day(2024, 1, 1), c.First)
	assert.Equal(t, day(2024, 3, 1), c.Last)
	assert.Equal(t, "8000.1", c.Min.String())
	assert.Equal(t, "8000.3", c.Max.String())
	assert.Equal(t, "8000.2", c.Mean.String())

	assert.Equal(t, []string{"Coconut", "3", "2", "2024-01-01", "2024-03-01", "8000.10", "8000.30", "8000.20"}, c.CSVRow())
	assert.Len(t, SummaryCSVHeader, len(c.CSVRow()))

	assert.Equal(t, "Pepper", summaries[1].Crop)

	_, err = SummarizeByCrop(nil)
	assert.True(t, errors.Is(err, ErrNoData))
}
