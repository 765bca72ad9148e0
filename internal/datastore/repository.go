package datastore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Querier is the subset of pgxpool.Pool the archive repository needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository reads the Postgres archive of price records.
type Repository struct {
	db Querier
}

// NewTimescaleRepository creates a Repository over db.
func NewTimescaleRepository(db Querier) *Repository {
	return &Repository{db: db}
}

const fetchPriceRecordsQuery = `
        SELECT date, crop, district, price
        FROM price_records
        WHERE date >= $1 AND date <= $2
        ORDER BY date ASC, id ASC;
    `

// FetchPriceRecords returns archived records dated within [from, to].
func (r *Repository) FetchPriceRecords(ctx context.Context, from, to time.Time) ([]PriceRecord, error) {
	rows, err := r.db.Query(ctx, fetchPriceRecordsQuery, DateOf(from), DateOf(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query price records: %w", err)
	}
	defer rows.Close()

	var records []PriceRecord
	for rows.Next() {
		var (
			rec   PriceRecord
			price decimal.Decimal
		)
		if err := rows.Scan(&rec.Date, &rec.Crop, &rec.District, &price); err != nil {
			return nil, fmt.Errorf("failed to scan price record: %w", err)
		}
		rec.Date = DateOf(rec.Date)
		rec.Price = price.InexactFloat64()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CropSummary aggregates the prices of one crop.
type CropSummary struct {
	Crop      string          `json:"crop"`
	Records   int             `json:"records"`
	Districts int             `json:"districts"`
	First     time.Time       `json:"first"`
	Last      time.Time       `json:"last"`
	Min       decimal.Decimal `json:"min"`
	Max       decimal.Decimal `json:"max"`
	Mean      decimal.Decimal `json:"mean"`
}

// SummarizeByCrop aggregates records per crop, ordered by crop name. Means
// are computed in decimal and rounded to two places.
func SummarizeByCrop(records []PriceRecord) ([]CropSummary, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}

	type acc struct {
		summary   CropSummary
		total     decimal.Decimal
		districts map[string]struct{}
	}
	byCrop := map[string]*acc{}
	for _, r := range records {
		price := decimal.NewFromFloat(r.Price)
		a, ok := byCrop[r.Crop]
		if !ok {
			a = &acc{
				summary:   CropSummary{Crop: r.Crop, First: r.Date, Last: r.Date, Min: price, Max: price},
				districts: map[string]struct{}{},
			}
			byCrop[r.Crop] = a
		}
		a.summary.Records++
		a.total = a.total.Add(price)
		a.districts[r.District] = struct{}{}
		a.summary.Min = decimal.Min(a.summary.Min, price)
		a.summary.Max = decimal.Max(a.summary.Max, price)
		if r.Date.Before(a.summary.First) {
			a.summary.First = r.Date
		}
		if r.Date.After(a.summary.Last) {
			a.summary.Last = r.Date
		}
	}

	out := make([]CropSummary, 0, len(byCrop))
	for _, a := range byCrop {
		s := a.summary
		s.Districts = len(a.districts)
		s.Mean = a.total.Div(decimal.NewFromInt(int64(s.Records))).Round(2)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Crop < out[j].Crop })
	return out, nil
}

// CSVRow renders s in the column order of the export summary.
func (s CropSummary) CSVRow() []string {
	return []string{
		s.Crop,
		strconv.Itoa(s.Records),
		strconv.Itoa(s.Districts),
		s.First.Format(DateLayout),
		s.Last.Format(DateLayout),
		s.Min.StringFixed(2),
		s.Max.StringFixed(2),
		s.Mean.StringFixed(2),
	}
}

// SummaryCSVHeader names the columns of CropSummary.CSVRow.
var SummaryCSVHeader = []string{"Crop", "Records", "Districts", "First", "Last", "Min", "Max", "Mean"}
