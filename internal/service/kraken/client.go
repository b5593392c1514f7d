package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"TrustBoard/internal/domain/models"
	drepo "TrustBoard/internal/domain/repository"
	"TrustBoard/internal/service/ratelimit"
	xhttp "TrustBoard/pkg/http"
	applogger "TrustBoard/pkg/logger"
)

// Config selects the OHLC series to pull.
type Config struct {
	BaseURL         string
	APIKey          string
	Pair            string
	IntervalMinutes int
	Lookback        time.Duration // zero = Kraken default window
	Rate            float64
	Burst           int
}

// columns of one OHLC row, in Kraken's order
var columns = []string{"time", "open", "high", "low", "close", "vwap", "volume", "count"}

// Client implements a Fetcher backed by the Kraken public OHLC endpoint.
type Client struct {
	cfg     Config
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	now     func() time.Time
	l       *applogger.Logger
}

// New creates a new Kraken fetcher.
func New(cfg Config, httpc *xhttp.Client, limiter *ratelimit.Limiter) *Client {
	return &Client{cfg: cfg, http: httpc, limiter: limiter, now: time.Now, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (c *Client) SetLogger(l *applogger.Logger) { c.l = l }

func (c *Client) Source() models.Source { return models.SourceKraken }

type ohlcResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// Fetch returns one observation per OHLC row. Rows keep Kraken's textual
// values; the pair key of the result (e.g. XXBTZUSD) becomes the raw symbol.
func (c *Client) Fetch(ctx context.Context) ([]models.RawObservation, error) {
	fail := func(attempts int, err error) ([]models.RawObservation, error) {
		return nil, &drepo.FetchError{Source: models.SourceKraken, Attempts: attempts, Err: err}
	}
	if err := c.limiter.Wait(ctx, string(models.SourceKraken), float64(c.cfg.Burst), c.cfg.Rate); err != nil {
		return fail(0, err)
	}

	params := map[string][]string{
		"pair":     {c.cfg.Pair},
		"interval": {strconv.Itoa(c.cfg.IntervalMinutes)},
	}
	if c.cfg.Lookback > 0 {
		params["since"] = []string{strconv.FormatInt(c.now().Add(-c.cfg.Lookback).Unix(), 10)}
	}
	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["API-Key"] = c.cfg.APIKey
	}

	var resp ohlcResponse
	attempts, err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL + "/0/public/OHLC",
		Headers:     headers,
		QueryParams: params,
	}, &resp)
	if err != nil {
		return fail(attempts, err)
	}
	if len(resp.Error) > 0 {
		return fail(attempts, fmt.Errorf("kraken api: %s", strings.Join(resp.Error, "; ")))
	}
	fetchedAt := c.now().UTC()

	pairKey, raw, err := pairRows(resp.Result)
	if err != nil {
		return fail(attempts, err)
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return fail(attempts, fmt.Errorf("decode ohlc rows: %w", err))
	}

	out := make([]models.RawObservation, 0, len(rows))
	for _, row := range rows {
		fields := make(map[string]string, len(columns))
		for i, name := range columns {
			if i >= len(row) {
				break
			}
			fields[name] = scalar(row[i])
		}
		out = append(out, models.RawObservation{
			Source:    models.SourceKraken,
			Symbol:    pairKey,
			FetchedAt: fetchedAt,
			Fields:    fields,
		})
	}

	c.l.Info("kraken: fetched ohlc",
		applogger.String("pair", pairKey),
		applogger.Int("rows", len(out)),
		applogger.Int("attempts", attempts),
	)
	return out, nil
}

// pairRows picks the pair entry of the result object; "last" is a cursor.
func pairRows(result map[string]json.RawMessage) (string, json.RawMessage, error) {
	keys := make([]string, 0, len(result))
	for k := range result {
		if k != "last" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", nil, errors.New("kraken api: no pair data in result")
	}
	sort.Strings(keys)
	return keys[0], result[keys[0]], nil
}

// scalar renders a JSON string or number as its text, unquoted.
func scalar(m json.RawMessage) string {
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(m))
}
