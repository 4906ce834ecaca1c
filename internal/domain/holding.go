package domain

import "sort"

// Holding is one consolidated position: a quantity of one ticker held in one
// account. SourceValue carries the value column from the brokerage export when
// one was present; it is informational only, valuation always uses live
// prices.
type Holding struct {
	Ticker      string   `json:"ticker"`
	Account     string   `json:"account"`
	Quantity    float64  `json:"quantity"`
	SourceValue *float64 `json:"source_value,omitempty"`
}

// Holdings is a consolidated set of positions, unique per (ticker, account).
type Holdings []Holding

// Accounts returns the distinct account names, sorted.
func (h Holdings) Accounts() []string {
	seen := make(map[string]bool)
	var accounts []string
	for _, pos := range h {
		if !seen[pos.Account] {
			seen[pos.Account] = true
			accounts = append(accounts, pos.Account)
		}
	}
	sort.Strings(accounts)
	return accounts
}

// Tickers returns the distinct tickers across all accounts, sorted.
func (h Holdings) Tickers() []string {
	seen := make(map[string]bool)
	var tickers []string
	for _, pos := range h {
		if !seen[pos.Ticker] {
			seen[pos.Ticker] = true
			tickers = append(tickers, pos.Ticker)
		}
	}
	sort.Strings(tickers)
	return tickers
}

// ForAccount returns the positions held in one account.
func (h Holdings) ForAccount(account string) Holdings {
	var out Holdings
	for _, pos := range h {
		if pos.Account == account {
			out = append(out, pos)
		}
	}
	return out
}

// HasAccount reports whether any position belongs to account.
func (h Holdings) HasAccount(account string) bool {
	for _, pos := range h {
		if pos.Account == account {
			return true
		}
	}
	return false
}
