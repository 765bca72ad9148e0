package datastore

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agri-forecast/crop-price/pkg/logger"
)

// CSVHeader is the column order of the price table.
var CSVHeader = []string{"Date", "Crop", "District", "Price"}

// LoadPriceRecordsFromCSV reads the whole price table into memory, in file order.
// Rows with a wrong column count, an unparsable date or a missing, unparsable
// or negative price are skipped with a warning.
// The CSV file is expected to have a header and the following columns:
// Date, Crop, District, Price
func LoadPriceRecordsFromCSV(filePath string) ([]PriceRecord, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	return readPriceRecords(file, filePath)
}

func readPriceRecords(r io.Reader, source string) ([]PriceRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []PriceRecord{}, nil // Empty file is okay
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var records []PriceRecord
	skipped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}

		rec, err := parseRow(row, idx)
		if err != nil {
			skipped++
			logger.Warnf("Skipping record in %s: %v", source, err)
			continue
		}
		records = append(records, rec)
	}

	if skipped > 0 {
		logger.Infof("Loaded %d records from %s (%d skipped)", len(records), source, skipped)
	}
	return records, nil
}

// columnIndex maps the header names to positions so that files written with
// a different column order (e.g. Date,District,Crop,Price) still load.
func columnIndex(header []string) ([4]int, error) {
	var idx [4]int
	for i, want := range CSVHeader {
		idx[i] = -1
		for j, got := range header {
			if strings.EqualFold(strings.TrimSpace(got), want) {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return idx, fmt.Errorf("csv header is missing column %q", want)
		}
	}
	return idx, nil
}

func parseRow(row []string, idx [4]int) (PriceRecord, error) {
	for _, i := range idx {
		if i >= len(row) {
			return PriceRecord{}, fmt.Errorf("invalid number of columns: got %d", len(row))
		}
	}

	date, err := time.Parse(DateLayout, strings.TrimSpace(row[idx[0]]))
	if err != nil {
		return PriceRecord{}, fmt.Errorf("date parse error: %w", err)
	}
	crop := strings.TrimSpace(row[idx[1]])
	district := strings.TrimSpace(row[idx[2]])
	if crop == "" || district == "" {
		return PriceRecord{}, fmt.Errorf("missing crop or district")
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(row[idx[3]]), 64)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("price parse error: %w", err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return PriceRecord{}, fmt.Errorf("invalid price %v", price)
	}

	return PriceRecord{Date: date, Crop: crop, District: district, Price: price}, nil
}

// CSVRow renders rec in CSVHeader order.
func CSVRow(rec PriceRecord) []string {
	return []string{
		rec.Date.Format(DateLayout),
		rec.Crop,
		rec.District,
		FormatPrice(rec.Price),
	}
}

// RoundPrice rounds a price to two decimal places.
func RoundPrice(p float64) float64 {
	f, _ := decimal.NewFromFloat(p).Round(2).Float64()
	return f
}

// FormatPrice renders a price with two decimals.
func FormatPrice(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(2)
}
