package marketdata

import (
	"context"

	"github.com/rs/zerolog"
)

// RefreshPricesJob periodically re-fetches quotes for the tickers currently
// held, keeping the cache warm so interactive queries stay fast.
type RefreshPricesJob struct {
	service *Service
	tickers func() []string
	log     zerolog.Logger
}

// NewRefreshPricesJob creates the job. tickers is called on each run so the
// set follows the holdings as they change.
func NewRefreshPricesJob(service *Service, tickers func() []string, log zerolog.Logger) *RefreshPricesJob {
	return &RefreshPricesJob{
		service: service,
		tickers: tickers,
		log:     log.With().Str("job", "refresh_prices").Logger(),
	}
}

// Name returns the job name.
func (j *RefreshPricesJob) Name() string {
	return "refresh_prices"
}

// Run fetches fresh quotes for all held tickers.
func (j *RefreshPricesJob) Run(ctx context.Context) error {
	tickers := j.tickers()
	if len(tickers) == 0 {
		j.log.Debug().Msg("No tickers to refresh")
		return nil
	}

	prices, err := j.service.GetPrices(ctx, tickers, true)
	if err != nil {
		return err
	}

	j.log.Info().Int("tickers", len(prices)).Msg("Refreshed prices")
	return nil
}
