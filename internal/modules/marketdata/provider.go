// Package marketdata retrieves and caches market prices for tickers.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Provider fetches current prices for a set of tickers. Tickers the provider
// cannot quote are simply absent from the returned map; only a transport-level
// failure is an error.
type Provider interface {
	GetQuotes(ctx context.Context, tickers []string) (map[string]float64, error)
}

// HTTPProvider fetches quotes from a JSON quote API:
//
//	GET <base>/quote?symbols=VTI,VXUS
//	{"quotes": [{"symbol": "VTI", "price": 242.17}, ...]}
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPProvider creates a provider for the given quote API base URL.
func NewHTTPProvider(baseURL string, log zerolog.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("service", "quote_provider").Logger(),
	}
}

type quoteResponse struct {
	Quotes []struct {
		Symbol string   `json:"symbol"`
		Price  *float64 `json:"price"`
	} `json:"quotes"`
}

// GetQuotes fetches a batch of quotes in one request.
func (p *HTTPProvider) GetQuotes(ctx context.Context, tickers []string) (map[string]float64, error) {
	if len(tickers) == 0 {
		return map[string]float64{}, nil
	}

	endpoint := fmt.Sprintf("%s/quote?symbols=%s", p.baseURL, url.QueryEscape(strings.Join(tickers, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote API returned status %d", resp.StatusCode)
	}

	var parsed quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}

	quotes := make(map[string]float64, len(parsed.Quotes))
	for _, q := range parsed.Quotes {
		if q.Symbol == "" || q.Price == nil {
			continue
		}
		quotes[strings.ToUpper(q.Symbol)] = *q.Price
	}

	p.log.Debug().
		Int("requested", len(tickers)).
		Int("quoted", len(quotes)).
		Msg("Fetched batch quotes")
	return quotes, nil
}
