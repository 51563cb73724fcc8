package service

import (
	"context"
	"fmt"
	"log"

	"signal-alert/internal/domain"
	"signal-alert/internal/signal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const candleLookback = 250

type PriceProvider interface {
	FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)
	FetchPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

type CandleRepository interface {
	UpsertCandles(ctx context.Context, candles []*domain.Candle) error
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)
}

type PriceCache interface {
	GetPrices(ctx context.Context, symbols []string) map[string]float64
	SetPrice(ctx context.Context, symbol string, price float64) error
}

// MarketDataService serves prices and indicator snapshots, fronting the
// exchange with the redis price cache and the candle table.
type MarketDataService struct {
	tracer     trace.Tracer
	provider   PriceProvider
	candleRepo CandleRepository
	cache      PriceCache
}

func NewMarketDataService(tracer trace.Tracer, provider PriceProvider, candleRepo CandleRepository, cache PriceCache) *MarketDataService {
	return &MarketDataService{
		tracer:     tracer,
		provider:   provider,
		candleRepo: candleRepo,
		cache:      cache,
	}
}

func (s *MarketDataService) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := s.GetLatestPrices(ctx, []string{symbol})
	if err != nil {
		return 0, err
	}
	price, ok := prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return price, nil
}

// GetLatestPrices serves from the cache and fetches only the misses.
func (s *MarketDataService) GetLatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	ctx, span := s.tracer.Start(ctx, "market-data.get-latest-prices",
		trace.WithAttributes(attribute.Int("symbols", len(symbols))))
	defer span.End()

	out := make(map[string]float64, len(symbols))
	if s.cache != nil {
		for symbol, price := range s.cache.GetPrices(ctx, symbols) {
			out[symbol] = price
		}
	}
	var misses []string
	for _, symbol := range symbols {
		if _, ok := out[symbol]; !ok {
			misses = append(misses, symbol)
		}
	}

	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := s.provider.FetchPrices(ctx, misses)
	if err != nil {
		if len(out) > 0 {
			log.Printf("price fetch failed, serving %d cached quotes: %v", len(out), err)
			return out, nil
		}
		return nil, err
	}
	for symbol, price := range fetched {
		out[symbol] = price
		if s.cache != nil {
			if err := s.cache.SetPrice(ctx, symbol, price); err != nil {
				log.Printf("failed to cache price for %s: %v", symbol, err)
			}
		}
	}
	return out, nil
}

// GetCandles reads from the candle table, backfilling from the exchange when
// history is too thin for indicator warmup.
func (s *MarketDataService) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	ctx, span := s.tracer.Start(ctx, "market-data.get-candles",
		trace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.String("interval", interval),
		))
	defer span.End()

	if s.candleRepo != nil {
		candles, err := s.candleRepo.GetCandles(ctx, symbol, interval, limit)
		if err != nil {
			return nil, err
		}
		if len(candles) >= signal.MinCandles {
			return candles, nil
		}
	}

	fetched, err := s.provider.FetchKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("backfill %s/%s: %w", symbol, interval, err)
	}
	if s.candleRepo != nil {
		if err := s.candleRepo.UpsertCandles(ctx, fetched); err != nil {
			log.Printf("failed to persist backfilled candles for %s/%s: %v", symbol, interval, err)
		}
	}
	return fetched, nil
}

func (s *MarketDataService) GetIndicatorSnapshot(ctx context.Context, symbol, interval string) (*domain.IndicatorSnapshot, error) {
	candles, err := s.GetCandles(ctx, symbol, interval, candleLookback)
	if err != nil {
		return nil, err
	}
	values := make([]domain.Candle, len(candles))
	for i, c := range candles {
		values[i] = *c
	}
	return signal.SnapshotFromCandles(values)
}

// RefreshCandles pulls the latest klines and upserts them into the table.
func (s *MarketDataService) RefreshCandles(ctx context.Context, symbol, interval string, limit int) error {
	ctx, span := s.tracer.Start(ctx, "market-data.refresh-candles")
	defer span.End()

	candles, err := s.provider.FetchKlines(ctx, symbol, interval, limit)
	if err != nil {
		return err
	}
	if s.candleRepo == nil {
		return nil
	}
	return s.candleRepo.UpsertCandles(ctx, candles)
}
