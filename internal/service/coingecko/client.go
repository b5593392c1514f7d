package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"TrustBoard/internal/domain/models"
	drepo "TrustBoard/internal/domain/repository"
	"TrustBoard/internal/service/ratelimit"
	xhttp "TrustBoard/pkg/http"
	applogger "TrustBoard/pkg/logger"
)

// Config selects the market chart to pull.
type Config struct {
	BaseURL    string
	APIKey     string
	CoinID     string
	VsCurrency string
	Symbol     string // canonical symbol the chart is reported under
	Days       int
	Rate       float64 // requests per second
	Burst      int
}

// Client implements a Fetcher backed by the CoinGecko market_chart endpoint.
type Client struct {
	cfg     Config
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	now     func() time.Time
	l       *applogger.Logger
}

// New creates a new CoinGecko fetcher.
func New(cfg Config, httpc *xhttp.Client, limiter *ratelimit.Limiter) *Client {
	return &Client{cfg: cfg, http: httpc, limiter: limiter, now: time.Now, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (c *Client) SetLogger(l *applogger.Logger) { c.l = l }

func (c *Client) Source() models.Source { return models.SourceCoinGecko }

// marketChart pairs are [unix_ms, value].
type marketChart struct {
	Prices       [][]json.Number `json:"prices"`
	TotalVolumes [][]json.Number `json:"total_volumes"`
}

// Fetch returns one observation per price point, as delivered. Volumes are
// joined on the millisecond timestamp; a point without a volume keeps the
// field absent. Short points keep whatever fields they carry and repeated
// timestamps are passed through, leaving rejection and collapse to the
// transform where both are counted.
func (c *Client) Fetch(ctx context.Context) ([]models.RawObservation, error) {
	if err := c.limiter.Wait(ctx, string(models.SourceCoinGecko), float64(c.cfg.Burst), c.cfg.Rate); err != nil {
		return nil, &drepo.FetchError{Source: models.SourceCoinGecko, Err: err}
	}

	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["x-cg-demo-api-key"] = c.cfg.APIKey
	}
	var chart marketChart
	attempts, err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     fmt.Sprintf("%s/coins/%s/market_chart", c.cfg.BaseURL, c.cfg.CoinID),
		Headers: headers,
		QueryParams: map[string][]string{
			"vs_currency": {c.cfg.VsCurrency},
			"days":        {strconv.Itoa(c.cfg.Days)},
		},
	}, &chart)
	if err != nil {
		return nil, &drepo.FetchError{Source: models.SourceCoinGecko, Attempts: attempts, Err: err}
	}
	fetchedAt := c.now().UTC()

	volumes := make(map[string]string, len(chart.TotalVolumes))
	for _, v := range chart.TotalVolumes {
		if len(v) == 2 {
			volumes[v[0].String()] = v[1].String()
		}
	}

	out := make([]models.RawObservation, 0, len(chart.Prices))
	for _, p := range chart.Prices {
		fields := make(map[string]string, 3)
		if len(p) > 0 {
			fields["ts_ms"] = p[0].String()
			if v, ok := volumes[fields["ts_ms"]]; ok {
				fields["volume"] = v
			}
		}
		if len(p) > 1 {
			fields["price"] = p[1].String()
		}
		if len(p) != 2 {
			c.l.Debug("coingecko: malformed price point", applogger.Int("len", len(p)))
		}
		out = append(out, models.RawObservation{
			Source:    models.SourceCoinGecko,
			Symbol:    c.cfg.Symbol,
			FetchedAt: fetchedAt,
			Fields:    fields,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := strconv.ParseInt(out[i].Fields["ts_ms"], 10, 64)
		b, _ := strconv.ParseInt(out[j].Fields["ts_ms"], 10, 64)
		return a < b
	})

	c.l.Info("coingecko: fetched market chart",
		applogger.String("coin", c.cfg.CoinID),
		applogger.Int("points", len(out)),
		applogger.Int("attempts", attempts),
	)
	return out, nil
}
