package factors

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadWeightsCSV reads a long-form factor-weight CSV with Ticker, Factor and
// Weight columns (case-insensitive headers). When normalize is true each
// ticker's weights are rescaled to sum to 1.0 on ingest. This is the only
// place normalization is allowed to happen; NewTable itself rejects
// off-by-more-than-tolerance sums.
func LoadWeightsCSV(path string, normalize bool) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open weights file %s: %w", path, err)
	}
	defer f.Close()

	rows, err := parseWeightsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse weights file %s: %w", path, err)
	}
	if normalize {
		rows = normalizeWeights(rows)
	}
	return NewTable(rows)
}

func parseWeightsCSV(r io.Reader) ([]Weight, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	tickerCol, factorCol, weightCol := -1, -1, -1
	for i, name := range header {
		switch normalizeHeader(name) {
		case "ticker", "symbol":
			tickerCol = i
		case "factor":
			factorCol = i
		case "weight":
			weightCol = i
		}
	}
	if tickerCol < 0 || factorCol < 0 || weightCol < 0 {
		return nil, fmt.Errorf("weights CSV must have Ticker, Factor and Weight columns, got %v", header)
	}

	var rows []Weight
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[weightCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid weight %q", line, record[weightCol])
		}
		rows = append(rows, Weight{
			Ticker: strings.TrimSpace(record[tickerCol]),
			Factor: strings.TrimSpace(record[factorCol]),
			Value:  value,
		})
	}
	return rows, nil
}

// normalizeHeader lowercases a header cell and strips BOM and padding.
func normalizeHeader(name string) string {
	name = strings.TrimPrefix(name, "\uFEFF")
	return strings.ToLower(strings.TrimSpace(name))
}

// normalizeWeights rescales each ticker's weights to sum to 1.0. Tickers
// whose weights sum to zero are left untouched and will be rejected by
// NewTable.
func normalizeWeights(rows []Weight) []Weight {
	sums := make(map[string]float64)
	for _, row := range rows {
		sums[row.Ticker] += row.Value
	}
	out := make([]Weight, len(rows))
	for i, row := range rows {
		out[i] = row
		if sum := sums[row.Ticker]; sum > 0 {
			out[i].Value = row.Value / sum
		}
	}
	return out
}
