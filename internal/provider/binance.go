package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"signal-alert/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultBaseURL = "https://api.binance.com"

type BinanceProvider struct {
	baseURL string
	client  *http.Client
	tracer  trace.Tracer
}

func NewBinanceProvider(tracer trace.Tracer) *BinanceProvider {
	return NewBinanceProviderWithBaseURL(tracer, defaultBaseURL)
}

func NewBinanceProviderWithBaseURL(tracer trace.Tracer, baseURL string) *BinanceProvider {
	return &BinanceProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		tracer:  tracer,
	}
}

// FetchKlines returns up to limit closed candles for a pair, oldest first.
func (p *BinanceProvider) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-klines",
		trace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.String("interval", interval),
		))
	defer span.End()

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", p.baseURL, url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s/%s: %w", symbol, interval, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch klines %s/%s: unexpected status %d", symbol, interval, resp.StatusCode)
	}

	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode klines %s/%s: %w", symbol, interval, err)
	}

	candles := make([]*domain.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			continue
		}
		c, err := candleFromKline(symbol, interval, row)
		if err != nil {
			return nil, fmt.Errorf("parse kline %s/%s: %w", symbol, interval, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// FetchPrices returns the last traded price for each requested pair.
func (p *BinanceProvider) FetchPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	ctx, span := p.tracer.Start(ctx, "binance.fetch-prices",
		trace.WithAttributes(attribute.Int("symbols", len(symbols))))
	defer span.End()

	wanted, err := json.Marshal(symbols)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbols=%s", p.baseURL, url.QueryEscape(string(wanted)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch prices: unexpected status %d", resp.StatusCode)
	}

	var tickers []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return nil, fmt.Errorf("decode prices: %w", err)
	}

	out := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		price, err := strconv.ParseFloat(t.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		out[t.Symbol] = price
	}
	return out, nil
}

func candleFromKline(symbol, interval string, row []json.RawMessage) (*domain.Candle, error) {
	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return nil, err
	}

	fields := make([]float64, 5)
	for i := range fields {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}

	return &domain.Candle{
		Symbol:   symbol,
		Interval: interval,
		OpenTime: time.UnixMilli(openMs).UTC(),
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}
