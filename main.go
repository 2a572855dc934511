package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/balance"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/config"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/grouper"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/logger"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/parsers"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/rates"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/services"
)

func main() {
	inputFile := flag.String("input", "", "CakeDeFi transaction export CSV (required)")
	outputDir := flag.String("output", "", "output directory (default from OUTPUT_DIR)")
	prefix := flag.String("prefix", "", "output file prefix (default from OUTPUT_PREFIX)")
	ratesFile := flag.String("rates", "", "USD/NOK exchange rate CSV (default from EXCHANGE_RATE_PATH)")
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintln(os.Stderr, "usage: cakedefi-kryptosekken-converter -input <export.csv> [-output dir] [-prefix name] [-rates file.csv]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	if *outputDir != "" {
		config.Cfg.OutputDir = *outputDir
	}
	if *prefix != "" {
		config.Cfg.OutputPrefix = *prefix
	}
	if *ratesFile != "" {
		config.Cfg.ExchangeRatePath = *ratesFile
	}

	ratesConverter, err := rates.NewConverter(config.Cfg.ExchangeRatePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load exchange rates: %v", err)
	}
	logger.L.Info("Exchange rates loaded", "observations", ratesConverter.Count())

	store, err := balance.OpenStore(config.Cfg.BalanceDBPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to open balance database: %v", err)
	}
	defer store.Close()
	tracker := balance.NewTracker(store)

	processor := services.NewProcessor(
		parsers.NewCakeCSVParser(),
		grouper.New(),
		grouper.NewConverter(ratesConverter, config.Cfg.MarketName),
		ratesConverter,
		tracker,
		config.Cfg.OutputDir,
		config.Cfg.OutputPrefix,
	)

	result, err := processor.ProcessFile(*inputFile)
	if err != nil {
		log.Fatalf("FATAL: Processing failed: %v", err)
	}

	fmt.Printf("Combined CSV:   %s\n", result.CombinedCSV)
	years := make([]int, 0, len(result.YearlyCSVs))
	for year := range result.YearlyCSVs {
		years = append(years, year)
	}
	sort.Ints(years)
	for _, year := range years {
		fmt.Printf("Year %d CSV:  %s\n", year, result.YearlyCSVs[year])
	}
	fmt.Printf("Summary:        %s\n", result.SummaryFile)
	fmt.Printf("Balance report: %s\n", result.BalanceReport)

	if !result.Success {
		fmt.Fprintf(os.Stderr, "completed with %d processing errors; see %s\n",
			len(result.Stats.ProcessingErrors), result.SummaryFile)
		os.Exit(1)
	}
}
