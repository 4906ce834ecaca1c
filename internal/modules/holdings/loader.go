// Package holdings loads and consolidates brokerage CSV exports into the
// holdings table keyed by (ticker, account).
package holdings

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aristath/folio/internal/domain"
	"github.com/rs/zerolog"
)

// Loader parses brokerage CSV exports. Different brokers disagree on column
// names, so headers are matched case-insensitively against a set of aliases.
// Tickers on the ignore list are dropped; proxy substitutions map a held fund
// to the fund it should be analyzed as.
type Loader struct {
	ignore  map[string]bool
	proxies map[string]string
	log     zerolog.Logger
}

// NewLoader creates a loader with the given ignore list and proxy map.
func NewLoader(ignore []string, proxies map[string]string, log zerolog.Logger) *Loader {
	ignoreSet := make(map[string]bool, len(ignore))
	for _, ticker := range ignore {
		ignoreSet[strings.ToUpper(strings.TrimSpace(ticker))] = true
	}
	if proxies == nil {
		proxies = map[string]string{}
	}
	return &Loader{
		ignore:  ignoreSet,
		proxies: proxies,
		log:     log.With().Str("service", "holdings").Logger(),
	}
}

// LoadDir loads every *.csv file in dir and consolidates the result. Files
// without an Account column get their account name from the file base name.
func (l *Loader) LoadDir(dir string) (domain.Holdings, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read holdings directory %s: %w", dir, err)
	}

	var all domain.Holdings
	files := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		loaded, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		all = append(all, loaded...)
		files++
	}
	if files == 0 {
		return nil, fmt.Errorf("no CSV files found in holdings directory %s", dir)
	}

	consolidated := Consolidate(all)
	l.log.Info().
		Int("files", files).
		Int("positions", len(consolidated)).
		Int("accounts", len(consolidated.Accounts())).
		Msg("Loaded holdings")
	return consolidated, nil
}

// LoadFile loads one CSV export. The account for rows without an Account
// column is derived from the file name (base name without extension).
func (l *Loader) LoadFile(path string) (domain.Holdings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open holdings file %s: %w", path, err)
	}
	defer f.Close()

	base := filepath.Base(path)
	defaultAccount := strings.TrimSuffix(base, filepath.Ext(base))
	loaded, err := l.Parse(f, defaultAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse holdings file %s: %w", path, err)
	}
	return loaded, nil
}

// columnAliases maps a logical column to the header spellings brokers use.
var columnAliases = map[string][]string{
	"ticker":   {"ticker", "symbol"},
	"quantity": {"quantity", "shares", "qty"},
	"account":  {"account", "account name"},
	"value":    {"value", "current value", "market value"},
}

// Parse reads one CSV stream. Rows with an unparsable or empty ticker are
// skipped with a warning; a missing quantity column is a hard error because
// nothing downstream can be computed without quantities.
func (l *Loader) Parse(r io.Reader, defaultAccount string) (domain.Holdings, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := resolveColumns(header)
	if _, ok := cols["ticker"]; !ok {
		return nil, fmt.Errorf("no ticker column found in header %v", header)
	}
	if _, ok := cols["quantity"]; !ok {
		return nil, fmt.Errorf("no quantity column found in header %v", header)
	}

	var out domain.Holdings
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ticker := strings.ToUpper(strings.TrimSpace(field(record, cols["ticker"])))
		if ticker == "" {
			continue
		}
		quantity, err := parseNumber(field(record, cols["quantity"]))
		if err != nil {
			l.log.Warn().Int("line", line).Str("ticker", ticker).Msg("Skipping row with unparsable quantity")
			continue
		}

		if l.ignore[ticker] {
			l.log.Debug().Str("ticker", ticker).Msg("Ignoring ticker")
			continue
		}
		if proxy, ok := l.proxies[ticker]; ok {
			l.log.Debug().Str("ticker", ticker).Str("proxy", proxy).Msg("Substituting proxy fund")
			ticker = strings.ToUpper(proxy)
		}

		account := defaultAccount
		if idx, ok := cols["account"]; ok {
			if a := strings.TrimSpace(field(record, idx)); a != "" {
				account = a
			}
		}

		holding := domain.Holding{Ticker: ticker, Account: account, Quantity: quantity}
		if idx, ok := cols["value"]; ok {
			if v, err := parseNumber(field(record, idx)); err == nil {
				holding.SourceValue = &v
			}
		}
		out = append(out, holding)
	}
	return out, nil
}

// Consolidate merges duplicate (ticker, account) rows by summing quantities
// and returns a deterministic ordering.
func Consolidate(in domain.Holdings) domain.Holdings {
	type key struct{ ticker, account string }
	merged := make(map[key]*domain.Holding)
	var order []key
	for _, h := range in {
		k := key{h.Ticker, h.Account}
		if existing, ok := merged[k]; ok {
			existing.Quantity += h.Quantity
			if existing.SourceValue != nil && h.SourceValue != nil {
				sum := *existing.SourceValue + *h.SourceValue
				existing.SourceValue = &sum
			}
			continue
		}
		copied := h
		merged[k] = &copied
		order = append(order, k)
	}

	out := make(domain.Holdings, 0, len(order))
	for _, k := range order {
		out = append(out, *merged[k])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Account != out[j].Account {
			return out[i].Account < out[j].Account
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

// resolveColumns matches header cells against the alias table.
func resolveColumns(header []string) map[string]int {
	cols := make(map[string]int)
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(cell, "\uFEFF")))
		for logical, aliases := range columnAliases {
			if _, taken := cols[logical]; taken {
				continue
			}
			for _, alias := range aliases {
				if name == alias {
					cols[logical] = i
					break
				}
			}
		}
	}
	return cols
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

// parseNumber parses a numeric cell, tolerating currency symbols, thousands
// separators and parenthesized negatives.
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", "%", "").Replace(s)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if negative {
		v = -v
	}
	return v, nil
}
