// Package services wires the conversion pipeline: parse, group, convert,
// validate, write, then replay each tax year against the balance ledger.
package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/balance"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/formatter"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/grouper"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/logger"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/models"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/parsers"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/rates"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/validator"
)

// RunStats carries the diagnostics accumulated across one run. It is
// threaded explicitly through the pipeline; nothing is dropped without an
// entry here.
type RunStats struct {
	RunID               string
	InputTransactions   int
	SkippedInternal     int
	GroupedTransactions int
	OutputTransactions  int
	ProcessingErrors    []string
	Warnings            []string
	ValidationErrors    []string
}

// RunResult is the outcome of one full pipeline run.
type RunResult struct {
	Success          bool
	Stats            RunStats
	ValidationResult validator.Result
	YearReports      map[int]balance.YearReport
	CombinedCSV      string
	YearlyCSVs       map[int]string
	SummaryFile      string
	BalanceReport    string
}

// Processor runs the CakeDeFi-to-kryptosekken pipeline.
type Processor struct {
	parser    parsers.Parser
	grouper   *grouper.Grouper
	converter *grouper.Converter
	rates     *rates.Converter
	tracker   *balance.Tracker
	outputDir string
	prefix    string
}

func NewProcessor(
	parser parsers.Parser,
	g *grouper.Grouper,
	converter *grouper.Converter,
	ratesConverter *rates.Converter,
	tracker *balance.Tracker,
	outputDir, prefix string,
) *Processor {
	return &Processor{
		parser:    parser,
		grouper:   g,
		converter: converter,
		rates:     ratesConverter,
		tracker:   tracker,
		outputDir: outputDir,
		prefix:    prefix,
	}
}

// ProcessFile runs the complete pipeline over one export file. The run
// always completes; classification, conversion and balance problems are
// collected, not raised.
func (p *Processor) ProcessFile(inputFile string) (*RunResult, error) {
	result := &RunResult{
		Stats:       RunStats{RunID: uuid.NewString()},
		YearReports: make(map[int]balance.YearReport),
	}
	logger.L.Info("Processing started", "runID", result.Stats.RunID, "input", inputFile)

	f, err := os.Open(inputFile)
	if err != nil {
		return nil, fmt.Errorf("opening input file: %w", err)
	}
	defer f.Close()

	cakeTxs, rowErrors, err := p.parser.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing input: %w", err)
	}
	result.Stats.InputTransactions = len(cakeTxs)
	result.Stats.ProcessingErrors = append(result.Stats.ProcessingErrors, rowErrors...)
	logger.L.Info("Loaded transactions", "count", len(cakeTxs), "rowErrors", len(rowErrors))

	// Export files are not always chronological; grouping and balance
	// replay both depend on order.
	if !sort.SliceIsSorted(cakeTxs, func(i, j int) bool { return cakeTxs[i].Date.Before(cakeTxs[j].Date) }) {
		logger.L.Info("Sorting transactions chronologically")
		sort.SliceStable(cakeTxs, func(i, j int) bool { return cakeTxs[i].Date.Before(cakeTxs[j].Date) })
	}

	groupResult := p.grouper.Group(cakeTxs)
	result.Stats.SkippedInternal = groupResult.SkippedInternal
	result.Stats.GroupedTransactions = len(groupResult.Groups)
	result.Stats.ProcessingErrors = append(result.Stats.ProcessingErrors, groupResult.Errors...)
	logger.L.Info("Grouped transactions", "groups", len(groupResult.Groups), "skipped", groupResult.SkippedInternal)

	var ksTxs []models.KryptosekkenTransaction
	for _, group := range groupResult.Groups {
		converted, warnings, err := p.converter.Convert(group)
		result.Stats.Warnings = append(result.Stats.Warnings, warnings...)
		if err != nil {
			result.Stats.ProcessingErrors = append(result.Stats.ProcessingErrors,
				fmt.Sprintf("failed to convert %s group: %v", group.Kind, err))
			continue
		}
		ksTxs = append(ksTxs, converted...)
	}
	result.Stats.OutputTransactions = len(ksTxs)
	logger.L.Info("Converted to kryptosekken format", "transactions", len(ksTxs))

	result.ValidationResult = validator.Validate(ksTxs, 0)
	result.Stats.ValidationErrors = result.ValidationResult.Errors()
	if !result.ValidationResult.Valid {
		logger.L.Warn("Validation found errors", "count", len(result.Stats.ValidationErrors))
	}

	result.CombinedCSV = filepath.Join(p.outputDir, fmt.Sprintf("%s_kryptosekken_import.csv", p.prefix))
	if err := formatter.WriteCSV(ksTxs, result.CombinedCSV); err != nil {
		return nil, err
	}
	result.YearlyCSVs, err = formatter.WriteCSVByYear(ksTxs, p.outputDir, p.prefix+"_kryptosekken")
	if err != nil {
		return nil, err
	}

	// Replay years in ascending order: year N seeds from year N-1.
	byYear := formatter.PartitionByYear(ksTxs)
	years := make([]int, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Ints(years)
	for _, year := range years {
		yearTxs := byYear[year]
		for i := range yearTxs {
			yearTxs[i].RowNum = i + 2 // mirror the yearly CSV row numbers
		}
		report := p.tracker.ProcessYear(year, yearTxs)
		result.YearReports[year] = report
		if report.Valid {
			logger.L.Info("Year balances validated", "year", year, "transactions", len(yearTxs))
		} else {
			logger.L.Warn("Year has balance problems", "year", year, "problems", len(report.Problems))
		}
	}

	if err := p.tracker.Save(); err != nil {
		result.Stats.Warnings = append(result.Stats.Warnings, fmt.Sprintf("could not save balance state: %v", err))
	}

	result.BalanceReport = filepath.Join(p.outputDir, fmt.Sprintf("%s_balance_report.txt", p.prefix))
	if err := os.WriteFile(result.BalanceReport, []byte(p.tracker.Report()), 0o644); err != nil {
		return nil, fmt.Errorf("writing balance report: %w", err)
	}

	result.SummaryFile = filepath.Join(p.outputDir, fmt.Sprintf("%s_summary.txt", p.prefix))
	if err := os.WriteFile(result.SummaryFile, []byte(p.buildSummary(result, ksTxs)), 0o644); err != nil {
		return nil, fmt.Errorf("writing summary: %w", err)
	}

	result.Success = len(result.Stats.ProcessingErrors) == 0
	logger.L.Info("Processing complete",
		"runID", result.Stats.RunID,
		"output", result.Stats.OutputTransactions,
		"processingErrors", len(result.Stats.ProcessingErrors),
		"warnings", len(result.Stats.Warnings))
	return result, nil
}

func (p *Processor) buildSummary(result *RunResult, ksTxs []models.KryptosekkenTransaction) string {
	var b strings.Builder
	line := strings.Repeat("=", 72)

	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "CAKEDEFI TO KRYPTOSEKKEN PROCESSING REPORT")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Run ID:    %s\n", result.Stats.RunID)
	fmt.Fprintf(&b, "Completed: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	fmt.Fprintln(&b, "PROCESSING STATISTICS:")
	fmt.Fprintf(&b, "  Input transactions:        %d\n", result.Stats.InputTransactions)
	fmt.Fprintf(&b, "  Skipped internal moves:    %d\n", result.Stats.SkippedInternal)
	fmt.Fprintf(&b, "  Transaction groups:        %d\n", result.Stats.GroupedTransactions)
	fmt.Fprintf(&b, "  Output transactions:       %d\n", result.Stats.OutputTransactions)
	fmt.Fprintf(&b, "  Processing errors:         %d\n", len(result.Stats.ProcessingErrors))
	fmt.Fprintf(&b, "  Warnings:                  %d\n", len(result.Stats.Warnings))
	fmt.Fprintf(&b, "  Validation errors:         %d\n\n", len(result.Stats.ValidationErrors))

	if len(result.Stats.ProcessingErrors) > 0 {
		fmt.Fprintln(&b, "PROCESSING ERRORS:")
		for _, e := range result.Stats.ProcessingErrors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
		fmt.Fprintln(&b)
	}
	if len(result.Stats.Warnings) > 0 {
		fmt.Fprintln(&b, "WARNINGS:")
		for _, w := range result.Stats.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
		fmt.Fprintln(&b)
	}
	if len(result.Stats.ValidationErrors) > 0 {
		fmt.Fprintln(&b, "VALIDATION ERRORS:")
		for _, e := range result.Stats.ValidationErrors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintln(&b, "TRANSACTIONS BY TYPE:")
	fmt.Fprint(&b, formatter.SummarizeByType(ksTxs))
	fmt.Fprintln(&b)

	years := make([]int, 0, len(result.YearReports))
	for year := range result.YearReports {
		years = append(years, year)
	}
	sort.Ints(years)
	fmt.Fprintln(&b, "MULTI-YEAR BALANCE VALIDATION:")
	for _, year := range years {
		report := result.YearReports[year]
		status := "OK"
		if !report.Valid {
			status = fmt.Sprintf("%d problems", len(report.Problems))
		}
		fmt.Fprintf(&b, "  %d: %s\n", year, status)
		for _, e := range report.Errors {
			fmt.Fprintf(&b, "    %s\n", e)
		}
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "    warning: %s\n", w)
		}
	}
	fmt.Fprintln(&b)

	if min, max, ok := p.rates.DateRange(); ok {
		fmt.Fprintln(&b, "EXCHANGE RATE DATA:")
		fmt.Fprintf(&b, "  Available date range: %s to %s\n", min.Format("2006-01-02"), max.Format("2006-01-02"))
		fmt.Fprintf(&b, "  Observations: %d\n\n", p.rates.Count())
	}

	fmt.Fprintln(&b, "Each tax year must be filed separately; use the per-year CSV files.")
	fmt.Fprintln(&b, line)
	return b.String()
}
