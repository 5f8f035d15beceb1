package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"signal-screenerv1/internal/model"
)

const (
	defaultBaseURL = "https://api.bitget.com"
	productType    = "usdt-futures"
	fetchRetries   = 2
)

// granIntervals maps our granularities onto the exchange's interval codes.
var granIntervals = map[model.Granularity]string{
	model.Hourly:     "1H",
	model.FourHourly: "4H",
	model.Daily:      "1D",
}

// Bitget fetches USDT-margined perpetual market data from Bitget's public
// v2 REST API.
type Bitget struct {
	baseURL string
	client  *http.Client
}

// NewBitget creates a Bitget provider. baseURL may be empty to use the
// production endpoint.
func NewBitget(baseURL string) *Bitget {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Bitget{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiEnvelope is the common response wrapper: code "00000" means success.
type apiEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (b *Bitget) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	apiURL := b.baseURL + path
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("bitget: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("bitget: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bitget: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bitget: %s: status %d: %s", path, resp.StatusCode, body)
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("bitget: parse response: %w", err)
	}
	if env.Code != "00000" {
		return fmt.Errorf("bitget: %s: api error %s: %s", path, env.Code, env.Msg)
	}
	return json.Unmarshal(env.Data, out)
}

// Instruments lists all active USDT-margined perpetual contracts, sorted.
func (b *Bitget) Instruments(ctx context.Context) ([]string, error) {
	params := url.Values{}
	params.Set("productType", productType)

	var contracts []struct {
		Symbol       string `json:"symbol"`
		SymbolStatus string `json:"symbolStatus"`
	}
	if err := b.get(ctx, "/api/v2/mix/market/contracts", params, &contracts); err != nil {
		return nil, err
	}

	var symbols []string
	for _, c := range contracts {
		if c.SymbolStatus != "normal" {
			continue
		}
		if !strings.HasSuffix(c.Symbol, "USDT") {
			continue
		}
		symbols = append(symbols, c.Symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Candles fetches up to limit candles, oldest first. Transient fetch errors
// are retried once before giving up.
func (b *Bitget) Candles(ctx context.Context, symbol string, gran model.Granularity, limit int) ([]model.Candle, error) {
	interval, ok := granIntervals[gran]
	if !ok {
		return nil, fmt.Errorf("bitget: unsupported granularity %q", gran)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("productType", productType)
	params.Set("granularity", interval)
	params.Set("limit", strconv.Itoa(limit))

	var lastErr error
	for attempt := 0; attempt < fetchRetries; attempt++ {
		var rows [][]string
		if err := b.get(ctx, "/api/v2/mix/market/candles", params, &rows); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return parseCandles(symbol, rows)
	}
	return nil, lastErr
}

// parseCandles converts the exchange's row format
// [ts, open, high, low, close, baseVolume, quoteVolume] into candles,
// oldest first.
func parseCandles(symbol string, rows [][]string) ([]model.Candle, error) {
	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("bitget: %s: short candle row (%d fields)", symbol, len(row))
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bitget: %s: bad timestamp %q: %w", symbol, row[0], err)
		}
		var vals [5]float64
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("bitget: %s: bad field %q: %w", symbol, row[i+1], err)
			}
			vals[i] = v
		}
		candles = append(candles, model.Candle{
			TS:     time.UnixMilli(ms).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].TS.Before(candles[j].TS) })
	return candles, nil
}
