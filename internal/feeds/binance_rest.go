package feeds

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const futuresAPIBase = "https://fapi.binance.com"

var httpClient = &http.Client{Timeout: 10 * time.Second}

// Candle is one kline bar, used for chart display and backfill.
type Candle struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime time.Time
}

// FetchTickerPrice gets the current futures price for a symbol over REST.
func FetchTickerPrice(symbol string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/fapi/v1/ticker/price?symbol=%s", futuresAPIBase, symbol)

	resp, err := httpClient.Get(url)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, err
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("ticker request failed: %s", resp.Status)
	}

	var result struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(result.Price)
}

// FetchKlines returns up to limit historical candles for symbol at the given
// interval ("1m", "15m", "1h", ...). Binance encodes each kline as a
// heterogeneous JSON array.
func FetchKlines(symbol, interval string, limit int) ([]Candle, error) {
	url := fmt.Sprintf("%s/fapi/v1/klines?symbol=%s&interval=%s&limit=%d",
		futuresAPIBase, symbol, interval, limit)

	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines request failed: %s", resp.Status)
	}

	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 7 {
			continue
		}
		c, err := parseKline(k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseKline(k []json.RawMessage) (Candle, error) {
	var openMs, closeMs int64
	var o, h, l, cl, v string

	fields := []struct {
		raw json.RawMessage
		dst interface{}
	}{
		{k[0], &openMs}, {k[1], &o}, {k[2], &h}, {k[3], &l},
		{k[4], &cl}, {k[5], &v}, {k[6], &closeMs},
	}
	for _, f := range fields {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return Candle{}, err
		}
	}

	c := Candle{
		OpenTime:  time.UnixMilli(openMs).UTC(),
		CloseTime: time.UnixMilli(closeMs).UTC(),
	}
	var err error
	if c.Open, err = decimal.NewFromString(o); err != nil {
		return Candle{}, err
	}
	if c.High, err = decimal.NewFromString(h); err != nil {
		return Candle{}, err
	}
	if c.Low, err = decimal.NewFromString(l); err != nil {
		return Candle{}, err
	}
	if c.Close, err = decimal.NewFromString(cl); err != nil {
		return Candle{}, err
	}
	if c.Volume, err = decimal.NewFromString(v); err != nil {
		return Candle{}, err
	}
	return c, nil
}
