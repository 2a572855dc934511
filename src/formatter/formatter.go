// Package formatter writes kryptosekken transactions to the generic CSV
// import format, combined or split by tax year.
package formatter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/models"
)

// WriteCSV writes all transactions to a single CSV file with the
// kryptosekken header row.
func WriteCSV(txs []models.KryptosekkenTransaction, outputFile string) error {
	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputFile, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(models.CSVHeaders); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, tx := range txs {
		if err := w.Write(tx.CSVRow()); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteCSVByYear splits transactions by tax year and writes one
// chronologically sorted file per year. Norwegian tax reporting is filed
// annually, so each year gets its own import file. Transactions without a
// timestamp are ignored. Returns year -> file path.
func WriteCSVByYear(txs []models.KryptosekkenTransaction, outputDir, filePrefix string) (map[int]string, error) {
	if len(txs) == 0 {
		return map[int]string{}, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	byYear := make(map[int][]models.KryptosekkenTransaction)
	for _, tx := range txs {
		if tx.Tidspunkt.IsZero() {
			continue
		}
		byYear[tx.Tidspunkt.Year()] = append(byYear[tx.Tidspunkt.Year()], tx)
	}

	years := make([]int, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Ints(years)

	files := make(map[int]string, len(years))
	for _, year := range years {
		yearTxs := byYear[year]
		sort.SliceStable(yearTxs, func(i, j int) bool {
			return yearTxs[i].Tidspunkt.Before(yearTxs[j].Tidspunkt)
		})
		outputFile := filepath.Join(outputDir, fmt.Sprintf("%s_%d.csv", filePrefix, year))
		if err := WriteCSV(yearTxs, outputFile); err != nil {
			return nil, err
		}
		files[year] = outputFile
	}
	return files, nil
}

// PartitionByYear returns the transactions grouped by tax year, each year
// chronologically sorted, matching the per-year file contents.
func PartitionByYear(txs []models.KryptosekkenTransaction) map[int][]models.KryptosekkenTransaction {
	byYear := make(map[int][]models.KryptosekkenTransaction)
	for _, tx := range txs {
		if tx.Tidspunkt.IsZero() {
			continue
		}
		byYear[tx.Tidspunkt.Year()] = append(byYear[tx.Tidspunkt.Year()], tx)
	}
	for year := range byYear {
		yearTxs := byYear[year]
		sort.SliceStable(yearTxs, func(i, j int) bool {
			return yearTxs[i].Tidspunkt.Before(yearTxs[j].Tidspunkt)
		})
		byYear[year] = yearTxs
	}
	return byYear
}

// SummarizeByType formats a per-type transaction count block for the
// summary report.
func SummarizeByType(txs []models.KryptosekkenTransaction) string {
	counts := make(map[models.TransactionType]int)
	for _, tx := range txs {
		counts[tx.Type]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	var b strings.Builder
	for _, t := range types {
		fmt.Fprintf(&b, "  %-20s %6d\n", t, counts[models.TransactionType(t)])
	}
	return b.String()
}
