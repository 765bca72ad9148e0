package main

import (
	"context"
	"encoding/csv"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agri-forecast/crop-price/internal/config"
	"github.com/agri-forecast/crop-price/internal/datastore"
	"github.com/agri-forecast/crop-price/pkg/logger"
)

func main() {
	// --- Argument Parsing ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	startStr := flag.String("start", "", "First date of the export window (YYYY-MM-DD)")
	endStr := flag.String("end", "", "Last date of the export window (YYYY-MM-DD), inclusive")
	summary := flag.Bool("summary", false, "Print per-crop averages instead of raw records")
	flag.Parse()

	if *startStr == "" || *endStr == "" {
		logger.Fatal("Both --start and --end flags are required.")
	}
	start, err := time.Parse(datastore.DateLayout, *startStr)
	if err != nil {
		logger.Fatalf("Invalid --start: %v", err)
	}
	end, err := time.Parse(datastore.DateLayout, *endStr)
	if err != nil {
		logger.Fatalf("Invalid --end: %v", err)
	}

	// --- Config and Logger Setup ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration to get DB settings: %v", err)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)

	// --- Database Connection ---
	ctx := context.Background()
	dbpool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		logger.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()

	logger.Infof("Exporting archived prices from %s to %s...", *startStr, *endStr)

	repo := datastore.NewTimescaleRepository(dbpool)
	records, err := repo.FetchPriceRecords(ctx, start, end)
	if err != nil {
		logger.Fatalf("Failed to fetch price records: %v", err)
	}

	writer := csv.NewWriter(os.Stdout)
	defer writer.Flush()

	if *summary {
		summaries, err := datastore.SummarizeByCrop(records)
		if err != nil {
			logger.Fatalf("Failed to summarize records: %v", err)
		}
		writeOrDie(writer, datastore.SummaryCSVHeader)
		for _, s := range summaries {
			writeOrDie(writer, s.CSVRow())
		}
		logger.Infof("Summarized %d records into %d crops.", len(records), len(summaries))
		return
	}

	writeOrDie(writer, datastore.CSVHeader)
	for _, r := range records {
		writeOrDie(writer, datastore.CSVRow(r))
	}
	logger.Infof("Successfully exported %d rows.", len(records))
}

func writeOrDie(w *csv.Writer, record []string) {
	if err := w.Write(record); err != nil {
		logger.Fatalf("Failed to write CSV record: %v", err)
	}
}
