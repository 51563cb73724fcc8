package feed

import (
	"context"
	"strings"
	"testing"
	"time"

	"signal-alert/internal/domain"
)

type captureSink struct {
	candles []*domain.Candle
}

func (s *captureSink) UpsertCandles(ctx context.Context, candles []*domain.Candle) error {
	s.candles = append(s.candles, candles...)
	return nil
}

func TestStreamURLCombinesSubscriptions(t *testing.T) {
	feed := NewKlineFeed("wss://stream.binance.com:9443", []string{"BTCUSDT", "ETHUSDT"}, []string{"1h", "4h"}, nil, nil, nil)

	url := feed.streamURL()
	if !strings.HasPrefix(url, "wss://stream.binance.com:9443/stream?streams=") {
		t.Fatalf("unexpected url: %s", url)
	}
	for _, want := range []string{"btcusdt@kline_1h", "btcusdt@kline_4h", "ethusdt@kline_1h", "ethusdt@kline_4h"} {
		if !strings.Contains(url, want) {
			t.Errorf("url missing stream %s: %s", want, url)
		}
	}
}

func TestHandleMessageForwardsClosedCandle(t *testing.T) {
	sink := &captureSink{}
	var closed []*domain.Candle
	feed := NewKlineFeed("", nil, nil, sink, nil, func(ctx context.Context, c *domain.Candle) {
		closed = append(closed, c)
	})

	message := []byte(`{"stream":"btcusdt@kline_1h","data":{"e":"kline","k":{
		"t":1700000000000,"s":"BTCUSDT","i":"1h",
		"o":"100.0","h":"101.5","l":"99.0","c":"100.5","v":"12.3","x":true}}}`)
	feed.handleMessage(context.Background(), message)

	if len(sink.candles) != 1 {
		t.Fatalf("expected 1 persisted candle, got %d", len(sink.candles))
	}
	c := sink.candles[0]
	if c.Symbol != "BTCUSDT" || c.Interval != "1h" {
		t.Errorf("candle identity = %s/%s", c.Symbol, c.Interval)
	}
	if !c.OpenTime.Equal(time.UnixMilli(1700000000000).UTC()) {
		t.Errorf("open time = %v", c.OpenTime)
	}
	if c.Close != 100.5 || c.Volume != 12.3 {
		t.Errorf("unexpected candle values: %+v", c)
	}
	if len(closed) != 1 {
		t.Fatalf("expected close callback, got %d", len(closed))
	}
}

func TestHandleMessageIgnoresOpenCandle(t *testing.T) {
	sink := &captureSink{}
	feed := NewKlineFeed("", nil, nil, sink, nil, nil)

	message := []byte(`{"data":{"k":{"t":1700000000000,"s":"BTCUSDT","i":"1h",
		"o":"100.0","h":"101.5","l":"99.0","c":"100.5","v":"12.3","x":false}}}`)
	feed.handleMessage(context.Background(), message)

	if len(sink.candles) != 0 {
		t.Fatalf("open candle should be ignored, got %d", len(sink.candles))
	}
}

type captureWarmer struct {
	pairs []string
}

func (w *captureWarmer) RefreshCandles(ctx context.Context, symbol, interval string, limit int) error {
	w.pairs = append(w.pairs, symbol+"/"+interval)
	return nil
}

func TestWarmupBackfillsEveryStream(t *testing.T) {
	warmer := &captureWarmer{}
	feed := NewKlineFeed("", []string{"BTCUSDT", "ETHUSDT"}, []string{"1h", "4h"}, nil, warmer, nil)

	feed.warmup(context.Background())

	want := []string{"BTCUSDT/1h", "BTCUSDT/4h", "ETHUSDT/1h", "ETHUSDT/4h"}
	if len(warmer.pairs) != len(want) {
		t.Fatalf("expected %d warmup calls, got %d", len(want), len(warmer.pairs))
	}
	for i, pair := range want {
		if warmer.pairs[i] != pair {
			t.Errorf("warmup %d = %s, want %s", i, warmer.pairs[i], pair)
		}
	}
}

func TestWarmupStopsOnCancelledContext(t *testing.T) {
	warmer := &captureWarmer{}
	feed := NewKlineFeed("", []string{"BTCUSDT"}, []string{"1h"}, nil, warmer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	feed.warmup(ctx)

	if len(warmer.pairs) != 0 {
		t.Fatalf("expected no warmup calls after cancel, got %d", len(warmer.pairs))
	}
}

func TestHandleMessageIgnoresGarbage(t *testing.T) {
	sink := &captureSink{}
	feed := NewKlineFeed("", nil, nil, sink, nil, nil)

	feed.handleMessage(context.Background(), []byte("not json"))
	if len(sink.candles) != 0 {
		t.Fatal("garbage should not produce candles")
	}
}
